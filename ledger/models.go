package ledger

import (
	"context"
	"time"
)

// Client is the narrow capability surface of the external custodial ledger
// provider. Everything the engine does upstream (issuing invoices on the
// funnel account, watching settlements, moving balances between accounts)
// goes through this interface so tests can substitute a fake.
type Client interface {
	CreateInvoice(ctx context.Context, amountSat uint64, memo string, expiry time.Duration) (*Invoice, error)
	// SubscribeSettlements opens a settlement stream scoped by the filter
	// (nil = every settlement on the funnel account). The returned function
	// closes the stream; after transport failure the channel is closed and
	// the caller decides whether to resubscribe.
	SubscribeSettlements(ctx context.Context, filter *SettlementFilter) (<-chan SettlementEvent, func(), error)
	Transfer(ctx context.Context, transferRequest *TransferRequest) (*TransferResponse, error)
	GetInfo(ctx context.Context) (*Info, error)
	Shutdown() error
}

type Invoice struct {
	InvoiceRef  string    `json:"invoiceRef"`
	PaymentHash string    `json:"paymentHash"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type SettlementFilter struct {
	PaymentHashes []string `json:"paymentHashes,omitempty"`
}

type SettlementEvent struct {
	NotificationId string    `json:"notificationId"`
	PaymentHash    string    `json:"paymentHash"`
	AmountSat      uint64    `json:"amountSat"`
	SettledAt      time.Time `json:"settledAt"`
}

type TransferRequest struct {
	From           string `json:"from"`
	To             string `json:"to"`
	AmountSat      uint64 `json:"amountSat"`
	Memo           string `json:"memo,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type TransferResponse struct {
	TransferId string `json:"transferId"`
}

type Info struct {
	Alias         string `json:"alias"`
	Network       string `json:"network"`
	FunnelAccount string `json:"funnelAccount"`
	BlockHeight   uint32 `json:"blockHeight"`
}
