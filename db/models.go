package db

import (
	"time"

	"gorm.io/datatypes"
)

type Setting struct {
	ID        uint
	Key       string `gorm:"unique;not null"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Payment struct {
	ID              uint
	PaymentHash     string `validate:"required" gorm:"unique;not null"`
	TrackingHandle  string `gorm:"unique;not null"`
	State           string
	AmountSat       uint64 `gorm:"column:amount_sat"`
	BaseAmountSat   uint64 `gorm:"column:base_amount_sat"`
	TipAmountSat    uint64 `gorm:"column:tip_amount_sat"`
	MerchantAccount string
	InvoiceRef      string
	Memo            string
	DisplayCurrency string
	DisplayAmount   string
	Metadata        datatypes.JSON
	FailureReason   string
	TipLegs         []TipLeg `gorm:"constraint:OnDelete:CASCADE;"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       *time.Time
	SettledAt       *time.Time
	ProcessedAt     *time.Time
}

// TipLeg is one transfer within a split. The merchant leg is stored here too
// (LegIndex 0, Type merchant) so every outgoing transfer has an audit row.
type TipLeg struct {
	ID            uint
	PaymentId     uint    `validate:"required"`
	Payment       Payment `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	LegIndex      uint
	Type          string
	Destination   string `validate:"required"`
	AmountSat     uint64 `gorm:"column:amount_sat"`
	Percent       uint
	State         string
	TransferId    string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	SettledAt     *time.Time
}

// PaymentEvent rows are append-only; they are never updated or deleted.
type PaymentEvent struct {
	ID          uint
	PaymentHash string `validate:"required" gorm:"index;not null"`
	Type        string
	Status      string
	Payload     datatypes.JSON
	CreatedAt   time.Time
}

// Forward is a compact per-completed-payment summary row written by the
// forward consumer, kept separate from payments for cheap reporting scans.
type Forward struct {
	ID                  uint
	PaymentHash         string `gorm:"unique;not null"`
	ForwardedAmountSat  uint64 `gorm:"column:forwarded_amount_sat"`
	TipAmountSat        uint64 `gorm:"column:tip_amount_sat"`
	SettledLegCount     uint
	FailedLegCount      uint
	CompletedWithErrors bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
