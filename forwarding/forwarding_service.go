package forwarding

import (
	"context"
	"fmt"
	"time"

	"github.com/opentip/funnelhub/config"
	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/db"
	"github.com/opentip/funnelhub/ledger"
	"github.com/opentip/funnelhub/logger"
	"github.com/opentip/funnelhub/store"
)

const transferRetryInterval = 1 * time.Second

type forwardingService struct {
	store           store.PaymentStore
	ledgerClient    ledger.Client
	funnelAccount   string
	transferTimeout time.Duration
	transferRetries uint
}

type ForwardingService interface {
	HandleSettlement(ctx context.Context, settlement *ledger.SettlementEvent) error
	ForwardSettled(ctx context.Context, paymentHash string) error
}

func NewForwardingService(paymentStore store.PaymentStore, ledgerClient ledger.Client, funnelAccount string, cfg config.Config) *forwardingService {
	return &forwardingService{
		store:           paymentStore,
		ledgerClient:    ledgerClient,
		funnelAccount:   funnelAccount,
		transferTimeout: cfg.GetEnv().TransferTimeout,
		transferRetries: cfg.GetEnv().TransferRetries,
	}
}

func (svc *forwardingService) HandleSettlement(ctx context.Context, settlement *ledger.SettlementEvent) error {
	payment, err := svc.store.MarkSettled(ctx, settlement.PaymentHash, settlement.AmountSat, settlement.SettledAt)
	if err != nil {
		if store.IsNotFoundError(err) {
			logger.Logger.Debug().
				Str("payment_hash", settlement.PaymentHash).
				Msg("Received settlement for unknown payment")
			return nil
		}
		return err
	}

	return svc.ForwardSettled(ctx, payment.PaymentHash)
}

// ForwardSettled executes the split for a settled payment. The claim decides
// ownership: whoever loses it stops without touching the record. Amounts are
// the ones frozen at creation time, never re-derived.
func (svc *forwardingService) ForwardSettled(ctx context.Context, paymentHash string) error {
	claimed, err := svc.store.ClaimForProcessing(ctx, paymentHash)
	if err != nil {
		return err
	}
	if !claimed {
		logger.Logger.Debug().
			Str("payment_hash", paymentHash).
			Msg("Payment already claimed, nothing to forward")
		return nil
	}

	payment, err := svc.store.Get(ctx, paymentHash)
	if err != nil {
		return err
	}

	err = svc.store.RecordEvent(ctx, paymentHash, constants.PAYMENT_EVENT_FORWARDING_STARTED, constants.PAYMENT_EVENT_STATUS_SUCCESS, map[string]interface{}{
		"amount_sat":     payment.AmountSat,
		"tip_amount_sat": payment.TipAmountSat,
		"leg_count":      len(payment.TipLegs),
	})
	if err != nil {
		// do not move funds if the audit trail cannot be written; the record
		// stays in processing and surfaces through the stall report
		return err
	}

	merchantLeg, tipLegs := partitionLegs(payment.TipLegs)
	if merchantLeg == nil {
		_, err = svc.store.MarkTerminal(ctx, paymentHash, constants.PAYMENT_STATE_FAILED, "payment record has no merchant leg", nil)
		return err
	}

	transferId, attempt, err := svc.executeTransfer(ctx, payment, merchantLeg)
	if err != nil {
		logger.Logger.Error().Err(err).
			Str("payment_hash", paymentHash).
			Msg("Merchant leg exhausted retries, aborting forwarding")
		// tip legs are never attempted when the merchant was not paid
		_, terminalErr := svc.store.MarkTerminal(ctx, paymentHash, constants.PAYMENT_STATE_FAILED, fmt.Sprintf("merchant transfer failed: %s", err.Error()), map[string]interface{}{
			"failed_leg_indexes": []uint{merchantLeg.LegIndex},
		})
		return terminalErr
	}
	if err := svc.store.MarkLegSettled(ctx, paymentHash, merchantLeg, attempt, transferId); err != nil {
		return err
	}

	failedLegs := []map[string]interface{}{}
	for i := range tipLegs {
		leg := &tipLegs[i]
		if leg.State == constants.LEG_STATE_SETTLED {
			continue
		}

		transferId, attempt, err := svc.executeTransfer(ctx, payment, leg)
		if err != nil {
			failedLegs = append(failedLegs, map[string]interface{}{
				"leg_index":   leg.LegIndex,
				"destination": leg.Destination,
				"amount_sat":  leg.AmountSat,
				"error":       err.Error(),
			})
			continue
		}
		if err := svc.store.MarkLegSettled(ctx, paymentHash, leg, attempt, transferId); err != nil {
			return err
		}
	}

	if len(failedLegs) == 0 {
		_, err = svc.store.MarkTerminal(ctx, paymentHash, constants.PAYMENT_STATE_COMPLETED, "", nil)
		return err
	}

	logger.Logger.Warn().
		Str("payment_hash", paymentHash).
		Int("failed_legs", len(failedLegs)).
		Msg("Forwarding completed with failed tip legs")
	_, err = svc.store.MarkTerminal(ctx, paymentHash, constants.PAYMENT_STATE_COMPLETED_WITH_EXCEPTIONS, fmt.Sprintf("%d tip leg(s) exhausted retries", len(failedLegs)), map[string]interface{}{
		"failed_legs": failedLegs,
	})
	return err
}

// executeTransfer issues one leg with a bounded per-attempt timeout and a
// fixed retry budget. Rejections are permanent and stop the retries early;
// every failed attempt leaves a leg_failed event behind.
func (svc *forwardingService) executeTransfer(ctx context.Context, payment *db.Payment, leg *db.TipLeg) (string, uint, error) {
	if leg.AmountSat == 0 {
		// zero allocations from rounding settle without a transfer
		return "", 0, nil
	}

	idempotencyKey := fmt.Sprintf("%s:%d", payment.PaymentHash, leg.LegIndex)

	var lastErr error
	for attempt := uint(1); attempt <= svc.transferRetries; attempt++ {
		transferCtx, cancel := context.WithTimeout(ctx, svc.transferTimeout)
		transferResponse, err := svc.ledgerClient.Transfer(transferCtx, &ledger.TransferRequest{
			From:           svc.funnelAccount,
			To:             leg.Destination,
			AmountSat:      leg.AmountSat,
			Memo:           payment.Memo,
			IdempotencyKey: idempotencyKey,
		})
		cancel()
		if err == nil {
			return transferResponse.TransferId, attempt, nil
		}
		lastErr = err

		final := attempt == svc.transferRetries || ledger.IsTransferRejectedError(err)
		if markErr := svc.store.MarkLegFailed(ctx, payment.PaymentHash, leg, attempt, err.Error(), final); markErr != nil {
			return "", 0, markErr
		}
		logger.Logger.Warn().Err(err).
			Str("payment_hash", payment.PaymentHash).
			Uint("leg_index", leg.LegIndex).
			Uint("attempt", attempt).
			Bool("final", final).
			Msg("Transfer attempt failed")
		if final {
			break
		}

		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-time.After(time.Duration(attempt) * transferRetryInterval):
		}
	}

	return "", 0, lastErr
}

func partitionLegs(legs []db.TipLeg) (*db.TipLeg, []db.TipLeg) {
	var merchantLeg *db.TipLeg
	tipLegs := []db.TipLeg{}
	for i := range legs {
		if legs[i].Type == constants.LEG_TYPE_MERCHANT && merchantLeg == nil {
			merchantLeg = &legs[i]
			continue
		}
		tipLegs = append(tipLegs, legs[i])
	}
	return merchantLeg, tipLegs
}
