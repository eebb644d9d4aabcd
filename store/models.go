package store

import (
	"context"
	"time"

	"github.com/opentip/funnelhub/db"
)

// PaymentStore is the hybrid system of record: durable relational cold
// storage plus a TTL-bounded cache projection. ClaimForProcessing is the
// only concurrency guard in the whole engine.
type PaymentStore interface {
	CreatePending(ctx context.Context, params *CreatePendingParams) (*db.Payment, error)
	Get(ctx context.Context, paymentHash string) (*db.Payment, error)
	GetByTrackingHandle(ctx context.Context, trackingHandle string) (*db.Payment, error)
	ListPayments(ctx context.Context, states []string, limit uint64, offset uint64) ([]db.Payment, uint64, error)
	ListPendingUnexpired(ctx context.Context) ([]db.Payment, error)
	ListSettledUnforwarded(ctx context.Context, cutoff time.Time) ([]db.Payment, error)
	ListEvents(ctx context.Context, paymentHash string) ([]db.PaymentEvent, error)

	// ClaimForProcessing atomically transitions PENDING -> PROCESSING in
	// cold storage. Exactly one caller per payment hash ever observes true.
	ClaimForProcessing(ctx context.Context, paymentHash string) (bool, error)

	MarkSettled(ctx context.Context, paymentHash string, amountSat uint64, settledAt time.Time) (*db.Payment, error)
	RecordEvent(ctx context.Context, paymentHash string, eventType string, eventStatus string, payload map[string]interface{}) error
	MarkLegSettled(ctx context.Context, paymentHash string, leg *db.TipLeg, attempt uint, transferId string) error
	MarkLegFailed(ctx context.Context, paymentHash string, leg *db.TipLeg, attempt uint, reason string, final bool) error
	MarkTerminal(ctx context.Context, paymentHash string, state string, failureReason string, payload map[string]interface{}) (*db.Payment, error)
	MarkExpired(ctx context.Context, paymentHash string) (bool, error)
	MarkCancelled(ctx context.Context, paymentHash string) (bool, error)

	ListExpiredPending(ctx context.Context, now time.Time) ([]db.Payment, error)
	ListExceptionsBefore(ctx context.Context, cutoff time.Time) ([]db.Payment, error)
	ListStalledProcessing(ctx context.Context, cutoff time.Time) ([]db.Payment, error)

	EvictCache(ctx context.Context, paymentHash string)
	Shutdown()
}

type CreatePendingParams struct {
	PaymentHash     string
	TrackingHandle  string
	InvoiceRef      string
	AmountSat       uint64
	BaseAmountSat   uint64
	TipAmountSat    uint64
	MerchantAccount string
	TipLegs         []LegParams
	Memo            string
	DisplayCurrency string
	DisplayAmount   string
	Metadata        map[string]interface{}
	ExpiresAt       time.Time
}

// LegParams is one tip recipient of the split, in payout order. The first
// entry absorbs any rounding remainder from percentage math.
type LegParams struct {
	Destination string
	AmountSat   uint64
	Percent     uint
}
