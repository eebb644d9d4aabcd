package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/opentip/funnelhub/config"
	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/db"
	"github.com/opentip/funnelhub/events"
	"github.com/opentip/funnelhub/forwarding"
	"github.com/opentip/funnelhub/logger"
	"github.com/opentip/funnelhub/store"
	"github.com/opentip/funnelhub/utils"
)

type sweeperService struct {
	store          store.PaymentStore
	forwarder      forwarding.ForwardingService
	eventPublisher events.EventPublisher
	interval       time.Duration
	gracePeriod    time.Duration
	stallThreshold time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type SweeperService interface {
	Shutdown()
}

// ExceptionReport lists payments that completed with failed tip legs and
// stayed unresolved past the grace period. It is published for operator
// attention; nothing in it is retried automatically.
type ExceptionReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Entries     []ExceptionEntry `json:"entries"`
}

type ExceptionEntry struct {
	PaymentHash     string     `json:"payment_hash"`
	ProcessedAt     *time.Time `json:"processed_at"`
	FailedLegCount  uint       `json:"failed_leg_count"`
	FailedAmountSat uint64     `json:"failed_amount_sat"`
}

func NewSweeperService(ctx context.Context, paymentStore store.PaymentStore, forwarder forwarding.ForwardingService, eventPublisher events.EventPublisher, cfg config.Config) *sweeperService {
	ctx, cancel := context.WithCancel(ctx)
	svc := &sweeperService{
		store:          paymentStore,
		forwarder:      forwarder,
		eventPublisher: eventPublisher,
		interval:       cfg.GetEnv().SweepInterval,
		gracePeriod:    cfg.GetEnv().ExceptionGracePeriod,
		stallThreshold: cfg.GetEnv().StallThreshold,
		cancel:         cancel,
	}

	svc.wg.Add(1)
	go svc.run(ctx)

	return svc
}

func (svc *sweeperService) run(ctx context.Context) {
	defer svc.wg.Done()

	// Run immediately once
	svc.sweep(ctx)

	ticker := time.NewTicker(svc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.sweep(ctx)
		}
	}
}

func (svc *sweeperService) sweep(ctx context.Context) {
	now := time.Now()
	svc.expirePending(ctx, now)
	svc.redriveSettled(ctx, now)
	svc.reportExceptions(ctx, now)
	svc.reportStalled(ctx, now)
}

func (svc *sweeperService) expirePending(ctx context.Context, now time.Time) {
	payments, err := svc.store.ListExpiredPending(ctx, now)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to list expired pending payments")
		return
	}

	expired := 0
	for i := range payments {
		ok, err := svc.store.MarkExpired(ctx, payments[i].PaymentHash)
		if err != nil {
			logger.Logger.Error().Err(err).
				Str("payment_hash", payments[i].PaymentHash).
				Msg("Failed to expire payment")
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		logger.Logger.Info().Int("count", expired).Msg("Expired stale pending payments")
	}
}

// redriveSettled picks up records whose settlement was recorded but whose
// claim never happened, e.g. after a crash. The claim makes a concurrent
// re-drive harmless.
func (svc *sweeperService) redriveSettled(ctx context.Context, now time.Time) {
	payments, err := svc.store.ListSettledUnforwarded(ctx, now.Add(-svc.stallThreshold))
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to list settled unforwarded payments")
		return
	}

	for i := range payments {
		payment := &payments[i]
		logger.Logger.Warn().
			Str("payment_hash", payment.PaymentHash).
			Msg("Re-driving forwarding for settled payment without a claim")
		if err := svc.forwarder.ForwardSettled(ctx, payment.PaymentHash); err != nil {
			logger.Logger.Error().Err(err).
				Str("payment_hash", payment.PaymentHash).
				Msg("Failed to re-drive forwarding")
		}
	}
}

func (svc *sweeperService) reportExceptions(ctx context.Context, now time.Time) {
	payments, err := svc.store.ListExceptionsBefore(ctx, now.Add(-svc.gracePeriod))
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to list payments completed with exceptions")
		return
	}
	if len(payments) == 0 {
		return
	}

	entries := make([]ExceptionEntry, 0, len(payments))
	for i := range payments {
		payment := &payments[i]

		failedLegs := utils.Filter(payment.TipLegs, func(leg db.TipLeg) bool {
			return leg.State == constants.LEG_STATE_FAILED
		})
		failedLegCount := uint(len(failedLegs))
		var failedAmountSat uint64
		for _, leg := range failedLegs {
			failedAmountSat += leg.AmountSat
		}

		logger.Logger.Warn().
			Str("payment_hash", payment.PaymentHash).
			Uint("failed_leg_count", failedLegCount).
			Uint64("failed_amount_sat", failedAmountSat).
			Msg("Payment completed with exceptions awaiting manual reconciliation")

		entries = append(entries, ExceptionEntry{
			PaymentHash:     payment.PaymentHash,
			ProcessedAt:     payment.ProcessedAt,
			FailedLegCount:  failedLegCount,
			FailedAmountSat: failedAmountSat,
		})
	}

	svc.eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_PAYMENT_EXCEPTION_REPORT,
		Properties: &ExceptionReport{
			GeneratedAt: now,
			Entries:     entries,
		},
	})
}

func (svc *sweeperService) reportStalled(ctx context.Context, now time.Time) {
	payments, err := svc.store.ListStalledProcessing(ctx, now.Add(-svc.stallThreshold))
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to list stalled payments")
		return
	}

	for i := range payments {
		payment := &payments[i]
		logger.Logger.Warn().
			Str("payment_hash", payment.PaymentHash).
			Time("updated_at", payment.UpdatedAt).
			Msg("Payment stuck in processing state")
		svc.eventPublisher.Publish(&events.Event{
			Event:      constants.EVENT_PAYMENT_STALLED,
			Properties: payment,
		})
	}
}

func (svc *sweeperService) Shutdown() {
	logger.Logger.Info().Msg("Shutting down sweeper")
	svc.cancel()
	svc.wg.Wait()
}
