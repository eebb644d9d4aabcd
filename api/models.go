package api

import (
	"context"
	"time"

	"github.com/opentip/funnelhub/config"
	"github.com/opentip/funnelhub/rates"
)

type API interface {
	CreatePayment(ctx context.Context, createPaymentRequest *CreatePaymentRequest) (*CreatePaymentResponse, error)
	GetPayment(ctx context.Context, paymentHash string) (*Payment, error)
	GetPaymentByTrackingHandle(ctx context.Context, trackingHandle string) (*Payment, error)
	ListPayments(ctx context.Context, states []string, limit uint64, offset uint64) (*ListPaymentsResponse, error)
	ListPaymentEvents(ctx context.Context, paymentHash string) ([]PaymentEvent, error)
	CancelPayment(ctx context.Context, paymentHash string) (*Payment, error)
	ResolveStalledPayment(ctx context.Context, resolveStalledPaymentRequest *ResolveStalledPaymentRequest) (*Payment, error)
	GetSummary(ctx context.Context, since time.Time) (*SummaryResponse, error)
	GetInfo(ctx context.Context) (*InfoResponse, error)
	UpdateSettings(updateSettingsRequest *UpdateSettingsRequest) error
	GetCurrencies(ctx context.Context) (map[string]rates.Currency, error)
	GetLogOutput(ctx context.Context, getLogRequest *GetLogOutputRequest) (*GetLogOutputResponse, error)
	Health(ctx context.Context) (*HealthResponse, error)
}

type CreatePaymentRequest struct {
	AmountSat     uint64            `json:"amountSat"`
	TipAmountSat  uint64            `json:"tipAmountSat"`
	TipSplits     []config.TipShare `json:"tipSplits,omitempty"`
	Memo          string            `json:"memo"`
	Metadata      Metadata          `json:"metadata,omitempty"`
	ExpirySeconds *uint64           `json:"expirySeconds,omitempty"`
}

type CreatePaymentResponse struct {
	PaymentHash    string `json:"paymentHash"`
	TrackingHandle string `json:"trackingHandle"`
	InvoiceRef     string `json:"invoiceRef"`
	AmountSat      uint64 `json:"amountSat"`
	ExpiresAt      string `json:"expiresAt"`
}

type ListPaymentsResponse struct {
	TotalCount uint64    `json:"totalCount"`
	Payments   []Payment `json:"payments"`
}

type Payment struct {
	PaymentHash     string   `json:"paymentHash"`
	TrackingHandle  string   `json:"trackingHandle"`
	State           string   `json:"state"`
	AmountSat       uint64   `json:"amountSat"`
	BaseAmountSat   uint64   `json:"baseAmountSat"`
	TipAmountSat    uint64   `json:"tipAmountSat"`
	MerchantAccount string   `json:"merchantAccount"`
	InvoiceRef      string   `json:"invoiceRef"`
	Memo            string   `json:"memo"`
	DisplayCurrency string   `json:"displayCurrency,omitempty"`
	DisplayAmount   string   `json:"displayAmount,omitempty"`
	Metadata        Metadata `json:"metadata,omitempty"`
	FailureReason   string   `json:"failureReason"`
	Legs            []TipLeg `json:"legs"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
	ExpiresAt       *string  `json:"expiresAt"`
	SettledAt       *string  `json:"settledAt"`
	ProcessedAt     *string  `json:"processedAt"`
}

type TipLeg struct {
	LegIndex      uint    `json:"legIndex"`
	Type          string  `json:"type"`
	Destination   string  `json:"destination"`
	AmountSat     uint64  `json:"amountSat"`
	Percent       uint    `json:"percent"`
	State         string  `json:"state"`
	TransferId    string  `json:"transferId,omitempty"`
	FailureReason string  `json:"failureReason,omitempty"`
	SettledAt     *string `json:"settledAt"`
}

type PaymentEvent struct {
	Type      string   `json:"type"`
	Status    string   `json:"status"`
	Payload   Metadata `json:"payload,omitempty"`
	CreatedAt string   `json:"createdAt"`
}

type Metadata = map[string]interface{}

type ResolveStalledPaymentRequest struct {
	PaymentHash string `json:"paymentHash"`
	Reason      string `json:"reason"`
}

type SummaryResponse struct {
	TotalCount         int64  `json:"totalCount"`
	PendingCount       int64  `json:"pendingCount"`
	CompletedCount     int64  `json:"completedCount"`
	ExceptionCount     int64  `json:"exceptionCount"`
	FailedCount        int64  `json:"failedCount"`
	ExpiredCount       int64  `json:"expiredCount"`
	ForwardedAmountSat uint64 `json:"forwardedAmountSat"`
	TipAmountSat       uint64 `json:"tipAmountSat"`
}

type InfoResponse struct {
	Version         string `json:"version"`
	Network         string `json:"network"`
	NodeAlias       string `json:"nodeAlias"`
	FunnelAccount   string `json:"funnelAccount"`
	BlockHeight     uint32 `json:"blockHeight"`
	Currency        string `json:"currency"`
	MerchantAccount string `json:"merchantAccount"`
}

type UpdateSettingsRequest struct {
	Currency        string            `json:"currency"`
	MerchantAccount string            `json:"merchantAccount"`
	RatesApiUrl     *string           `json:"ratesApiUrl"`
	DefaultTipSplit []config.TipShare `json:"defaultTipSplit,omitempty"`
}

type GetLogOutputRequest struct {
	MaxLen int `query:"maxLen"`
}

type GetLogOutputResponse struct {
	Log string `json:"logs"`
}

type HealthAlarmKind string

const (
	HealthAlarmKindHubUnreachable       HealthAlarmKind = "hub_unreachable"
	HealthAlarmKindPaymentsStalled      HealthAlarmKind = "payments_stalled"
	HealthAlarmKindExceptionsUnresolved HealthAlarmKind = "exceptions_unresolved"
)

type HealthAlarm struct {
	Kind       HealthAlarmKind `json:"kind"`
	RawDetails any             `json:"rawDetails,omitempty"`
}

func NewHealthAlarm(kind HealthAlarmKind, rawDetails any) HealthAlarm {
	return HealthAlarm{
		Kind:       kind,
		RawDetails: rawDetails,
	}
}

type HealthResponse struct {
	Alarms []HealthAlarm `json:"alarms,omitempty"`
}
