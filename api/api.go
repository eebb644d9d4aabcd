package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opentip/funnelhub/config"
	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/db"
	"github.com/opentip/funnelhub/db/queries"
	"github.com/opentip/funnelhub/forwarding"
	"github.com/opentip/funnelhub/logger"
	"github.com/opentip/funnelhub/pkg/version"
	"github.com/opentip/funnelhub/rates"
	"github.com/opentip/funnelhub/service"
	"github.com/opentip/funnelhub/store"
	"github.com/opentip/funnelhub/utils"
)

type api struct {
	db       *gorm.DB
	cfg      config.Config
	svc      service.Service
	ratesSvc rates.RatesService
}

func NewAPI(svc service.Service, gormDB *gorm.DB, config config.Config, ratesSvc rates.RatesService) *api {
	return &api{
		db:       gormDB,
		cfg:      config,
		svc:      svc,
		ratesSvc: ratesSvc,
	}
}

func (api *api) CreatePayment(ctx context.Context, createPaymentRequest *CreatePaymentRequest) (*CreatePaymentResponse, error) {
	if createPaymentRequest.AmountSat == 0 {
		return nil, store.NewValidationError("amountSat must be greater than 0")
	}
	if createPaymentRequest.TipAmountSat > createPaymentRequest.AmountSat {
		return nil, store.NewValidationError("tipAmountSat cannot exceed amountSat")
	}
	if len(createPaymentRequest.Memo) > constants.PAYMENT_MEMO_MAX_LENGTH {
		return nil, store.NewValidationError(fmt.Sprintf("memo exceeds %d characters", constants.PAYMENT_MEMO_MAX_LENGTH))
	}

	merchantAccount := api.cfg.GetMerchantAccount()
	if merchantAccount == "" {
		return nil, errors.New("no merchant account configured")
	}

	// resolve the split before touching the ledger so a bad request never
	// leaves an orphaned invoice upstream
	var tipLegs []store.LegParams
	if createPaymentRequest.TipAmountSat > 0 {
		tipSplits := createPaymentRequest.TipSplits
		if len(tipSplits) == 0 {
			tipSplits = api.cfg.GetDefaultTipSplit()
		}
		var err error
		tipLegs, err = forwarding.SplitTip(createPaymentRequest.TipAmountSat, tipSplits)
		if err != nil {
			return nil, err
		}
	}

	expiry := api.cfg.GetEnv().InvoiceExpiry
	if createPaymentRequest.ExpirySeconds != nil {
		if *createPaymentRequest.ExpirySeconds == 0 {
			return nil, store.NewValidationError("expirySeconds must be greater than 0")
		}
		expiry = time.Duration(*createPaymentRequest.ExpirySeconds) * time.Second
	}

	displayCurrency, displayAmount := api.displayQuote(ctx, createPaymentRequest.AmountSat)

	ledgerClient := api.svc.GetLedgerClient()
	if ledgerClient == nil {
		return nil, errors.New("ledger client not available")
	}
	invoice, err := ledgerClient.CreateInvoice(ctx, createPaymentRequest.AmountSat, createPaymentRequest.Memo, expiry)
	if err != nil {
		logger.Logger.Error().Err(err).
			Uint64("amount_sat", createPaymentRequest.AmountSat).
			Msg("Failed to create invoice on funnel account")
		return nil, err
	}

	payment, err := api.svc.GetPaymentStore().CreatePending(ctx, &store.CreatePendingParams{
		PaymentHash:     invoice.PaymentHash,
		TrackingHandle:  uuid.New().String(),
		InvoiceRef:      invoice.InvoiceRef,
		AmountSat:       createPaymentRequest.AmountSat,
		BaseAmountSat:   createPaymentRequest.AmountSat - createPaymentRequest.TipAmountSat,
		TipAmountSat:    createPaymentRequest.TipAmountSat,
		MerchantAccount: merchantAccount,
		TipLegs:         tipLegs,
		Memo:            createPaymentRequest.Memo,
		DisplayCurrency: displayCurrency,
		DisplayAmount:   displayAmount,
		Metadata:        createPaymentRequest.Metadata,
		ExpiresAt:       invoice.ExpiresAt,
	})
	if err != nil {
		logger.Logger.Error().Err(err).
			Str("payment_hash", invoice.PaymentHash).
			Msg("Failed to persist pending payment")
		return nil, err
	}

	return &CreatePaymentResponse{
		PaymentHash:    payment.PaymentHash,
		TrackingHandle: payment.TrackingHandle,
		InvoiceRef:     payment.InvoiceRef,
		AmountSat:      payment.AmountSat,
		ExpiresAt:      invoice.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// displayQuote freezes the fiat value of the invoice at creation time. A
// missing or failing rates backend only disables the quote, never the payment.
func (api *api) displayQuote(ctx context.Context, amountSat uint64) (string, string) {
	if api.cfg.GetRatesApiUrl() == "" {
		return "", ""
	}
	currency := api.cfg.GetCurrency()
	rate, err := api.ratesSvc.GetRate(ctx, currency)
	if err != nil {
		logger.Logger.Warn().Err(err).
			Str("currency", currency).
			Msg("Failed to fetch display rate, creating payment without quote")
		return "", ""
	}
	fiat := float64(amountSat) / constants.SATS_PER_COIN * rate.RateFloat
	return rate.Code, fmt.Sprintf("%.2f", fiat)
}

func (api *api) GetPayment(ctx context.Context, paymentHash string) (*Payment, error) {
	payment, err := api.svc.GetPaymentStore().Get(ctx, paymentHash)
	if err != nil {
		return nil, err
	}
	return toApiPayment(payment), nil
}

func (api *api) GetPaymentByTrackingHandle(ctx context.Context, trackingHandle string) (*Payment, error) {
	payment, err := api.svc.GetPaymentStore().GetByTrackingHandle(ctx, trackingHandle)
	if err != nil {
		return nil, err
	}
	return toApiPayment(payment), nil
}

func (api *api) ListPayments(ctx context.Context, states []string, limit uint64, offset uint64) (*ListPaymentsResponse, error) {
	for _, state := range states {
		if !slices.Contains(paymentStates, state) {
			return nil, store.NewValidationError(fmt.Sprintf("unknown payment state %s", state))
		}
	}
	if limit == 0 {
		limit = 100
	}

	payments, totalCount, err := api.svc.GetPaymentStore().ListPayments(ctx, states, limit, offset)
	if err != nil {
		return nil, err
	}

	apiPayments := []Payment{}
	for _, payment := range payments {
		apiPayments = append(apiPayments, *toApiPayment(&payment))
	}

	return &ListPaymentsResponse{
		TotalCount: totalCount,
		Payments:   apiPayments,
	}, nil
}

func (api *api) ListPaymentEvents(ctx context.Context, paymentHash string) ([]PaymentEvent, error) {
	if _, err := api.svc.GetPaymentStore().Get(ctx, paymentHash); err != nil {
		return nil, err
	}

	events, err := api.svc.GetPaymentStore().ListEvents(ctx, paymentHash)
	if err != nil {
		return nil, err
	}

	apiEvents := []PaymentEvent{}
	for _, event := range events {
		apiEvents = append(apiEvents, *toApiPaymentEvent(&event))
	}
	return apiEvents, nil
}

func (api *api) CancelPayment(ctx context.Context, paymentHash string) (*Payment, error) {
	cancelled, err := api.svc.GetPaymentStore().MarkCancelled(ctx, paymentHash)
	if err != nil {
		return nil, err
	}

	payment, err := api.svc.GetPaymentStore().Get(ctx, paymentHash)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, store.NewValidationError(fmt.Sprintf("payment in state %s cannot be cancelled", payment.State))
	}
	return toApiPayment(payment), nil
}

func (api *api) ResolveStalledPayment(ctx context.Context, resolveStalledPaymentRequest *ResolveStalledPaymentRequest) (*Payment, error) {
	if resolveStalledPaymentRequest.Reason == "" {
		return nil, store.NewValidationError("a reason is required to resolve a stalled payment")
	}

	payment, err := api.svc.GetPaymentStore().Get(ctx, resolveStalledPaymentRequest.PaymentHash)
	if err != nil {
		return nil, err
	}
	if payment.State != constants.PAYMENT_STATE_PROCESSING {
		return nil, store.NewValidationError(fmt.Sprintf("payment in state %s is not stalled", payment.State))
	}

	updated, err := api.svc.GetPaymentStore().MarkTerminal(ctx,
		resolveStalledPaymentRequest.PaymentHash,
		constants.PAYMENT_STATE_FAILED,
		fmt.Sprintf("manually resolved: %s", resolveStalledPaymentRequest.Reason),
		map[string]interface{}{
			"reason":            resolveStalledPaymentRequest.Reason,
			"resolved_manually": true,
		})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info().
		Str("payment_hash", updated.PaymentHash).
		Str("reason", resolveStalledPaymentRequest.Reason).
		Msg("Stalled payment manually resolved")

	return toApiPayment(updated), nil
}

func (api *api) GetSummary(ctx context.Context, since time.Time) (*SummaryResponse, error) {
	summary := queries.GetPaymentSummary(api.db, since)
	return &SummaryResponse{
		TotalCount:         summary.TotalCount,
		PendingCount:       summary.PendingCount,
		CompletedCount:     summary.CompletedCount,
		ExceptionCount:     summary.ExceptionCount,
		FailedCount:        summary.FailedCount,
		ExpiredCount:       summary.ExpiredCount,
		ForwardedAmountSat: summary.ForwardedAmountSat,
		TipAmountSat:       summary.TipAmountSat,
	}, nil
}

func (api *api) GetInfo(ctx context.Context) (*InfoResponse, error) {
	info := InfoResponse{}
	info.Version = version.Tag
	info.Currency = api.cfg.GetCurrency()
	info.MerchantAccount = api.cfg.GetMerchantAccount()

	ledgerClient := api.svc.GetLedgerClient()
	if ledgerClient != nil {
		ledgerInfo, err := ledgerClient.GetInfo(ctx)
		if err != nil {
			logger.Logger.Error().Err(err).Msg("Failed to get ledger info")
			return nil, err
		}
		info.Network = ledgerInfo.Network
		info.NodeAlias = ledgerInfo.Alias
		info.FunnelAccount = ledgerInfo.FunnelAccount
		info.BlockHeight = ledgerInfo.BlockHeight
	}

	return &info, nil
}

func (api *api) UpdateSettings(updateSettingsRequest *UpdateSettingsRequest) error {
	if updateSettingsRequest.Currency != "" {
		err := api.cfg.SetCurrency(updateSettingsRequest.Currency)
		if err != nil {
			return fmt.Errorf("failed to set currency: %w", err)
		}
	}

	if updateSettingsRequest.MerchantAccount != "" {
		err := api.cfg.SetMerchantAccount(updateSettingsRequest.MerchantAccount)
		if err != nil {
			return fmt.Errorf("failed to set merchant account: %w", err)
		}
	}

	if updateSettingsRequest.RatesApiUrl != nil {
		if *updateSettingsRequest.RatesApiUrl != "" {
			if err := utils.ValidateHTTPURL(*updateSettingsRequest.RatesApiUrl); err != nil {
				return store.NewValidationError(fmt.Sprintf("invalid rates API URL: %s", err))
			}
		}
		err := api.cfg.SetRatesApiUrl(*updateSettingsRequest.RatesApiUrl)
		if err != nil {
			return fmt.Errorf("failed to set rates API URL: %w", err)
		}
	}

	if len(updateSettingsRequest.DefaultTipSplit) > 0 {
		if err := forwarding.ValidateTipShares(updateSettingsRequest.DefaultTipSplit); err != nil {
			return err
		}
		err := api.cfg.SetDefaultTipSplit(updateSettingsRequest.DefaultTipSplit)
		if err != nil {
			return fmt.Errorf("failed to set default tip split: %w", err)
		}
	}

	return nil
}

func (api *api) GetCurrencies(ctx context.Context) (map[string]rates.Currency, error) {
	return api.ratesSvc.GetCurrencies(ctx)
}

func (api *api) GetLogOutput(ctx context.Context, getLogRequest *GetLogOutputRequest) (*GetLogOutputResponse, error) {
	var logData []byte

	logFileName := logger.GetLogFilePath()
	if logFileName == "" {
		logData = []byte("file log is disabled")
	} else {
		var err error
		logData, err = utils.ReadFileTail(logFileName, getLogRequest.MaxLen)
		if err != nil {
			return nil, err
		}
	}

	return &GetLogOutputResponse{Log: string(logData)}, nil
}

// Health reports operational alarms: an unreachable hub, payments stuck in
// processing, and exception payments past the reconciliation grace period.
func (api *api) Health(ctx context.Context) (*HealthResponse, error) {
	var alarms []HealthAlarm
	now := time.Now()

	ledgerClient := api.svc.GetLedgerClient()
	if ledgerClient != nil {
		infoCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := ledgerClient.GetInfo(infoCtx)
		cancel()
		if err != nil {
			alarms = append(alarms, NewHealthAlarm(HealthAlarmKindHubUnreachable, err.Error()))
		}
	}

	stalled, err := api.svc.GetPaymentStore().ListStalledProcessing(ctx, now.Add(-api.cfg.GetEnv().StallThreshold))
	if err != nil {
		return nil, err
	}
	if len(stalled) > 0 {
		alarms = append(alarms, NewHealthAlarm(HealthAlarmKindPaymentsStalled, paymentHashes(stalled)))
	}

	exceptions, err := api.svc.GetPaymentStore().ListExceptionsBefore(ctx, now.Add(-api.cfg.GetEnv().ExceptionGracePeriod))
	if err != nil {
		return nil, err
	}
	if len(exceptions) > 0 {
		alarms = append(alarms, NewHealthAlarm(HealthAlarmKindExceptionsUnresolved, paymentHashes(exceptions)))
	}

	return &HealthResponse{Alarms: alarms}, nil
}

func paymentHashes(payments []db.Payment) []string {
	hashes := make([]string, 0, len(payments))
	for _, payment := range payments {
		hashes = append(hashes, payment.PaymentHash)
	}
	return hashes
}

var paymentStates = append([]string{
	constants.PAYMENT_STATE_PENDING,
	constants.PAYMENT_STATE_PROCESSING,
}, constants.GetTerminalPaymentStates()...)

func toApiPayment(payment *db.Payment) *Payment {
	legs := []TipLeg{}
	for _, leg := range payment.TipLegs {
		legs = append(legs, *toApiTipLeg(&leg))
	}

	apiPayment := &Payment{
		PaymentHash:     payment.PaymentHash,
		TrackingHandle:  payment.TrackingHandle,
		State:           payment.State,
		AmountSat:       payment.AmountSat,
		BaseAmountSat:   payment.BaseAmountSat,
		TipAmountSat:    payment.TipAmountSat,
		MerchantAccount: payment.MerchantAccount,
		InvoiceRef:      payment.InvoiceRef,
		Memo:            payment.Memo,
		DisplayCurrency: payment.DisplayCurrency,
		DisplayAmount:   payment.DisplayAmount,
		FailureReason:   payment.FailureReason,
		Legs:            legs,
		CreatedAt:       payment.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       payment.UpdatedAt.Format(time.RFC3339),
		ExpiresAt:       formatOptionalTime(payment.ExpiresAt),
		SettledAt:       formatOptionalTime(payment.SettledAt),
		ProcessedAt:     formatOptionalTime(payment.ProcessedAt),
	}

	if payment.Metadata != nil {
		metadata := Metadata{}
		if err := json.Unmarshal(payment.Metadata, &metadata); err != nil {
			logger.Logger.Error().Err(err).
				Str("payment_hash", payment.PaymentHash).
				Msg("Failed to decode payment metadata")
		} else {
			apiPayment.Metadata = metadata
		}
	}

	return apiPayment
}

func toApiTipLeg(leg *db.TipLeg) *TipLeg {
	return &TipLeg{
		LegIndex:      leg.LegIndex,
		Type:          leg.Type,
		Destination:   leg.Destination,
		AmountSat:     leg.AmountSat,
		Percent:       leg.Percent,
		State:         leg.State,
		TransferId:    leg.TransferId,
		FailureReason: leg.FailureReason,
		SettledAt:     formatOptionalTime(leg.SettledAt),
	}
}

func toApiPaymentEvent(event *db.PaymentEvent) *PaymentEvent {
	apiEvent := &PaymentEvent{
		Type:      event.Type,
		Status:    event.Status,
		CreatedAt: event.CreatedAt.Format(time.RFC3339),
	}
	if event.Payload != nil {
		payload := Metadata{}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			logger.Logger.Error().Err(err).
				Str("payment_hash", event.PaymentHash).
				Msg("Failed to decode payment event payload")
		} else {
			apiEvent.Payload = payload
		}
	}
	return apiEvent
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(time.RFC3339)
	return &formatted
}
