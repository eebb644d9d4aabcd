package listener

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/opentip/funnelhub/config"
	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/db"
	"github.com/opentip/funnelhub/events"
	"github.com/opentip/funnelhub/forwarding"
	"github.com/opentip/funnelhub/ledger"
	"github.com/opentip/funnelhub/logger"
	"github.com/opentip/funnelhub/store"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 1 * time.Minute
	enqueueRetryInterval  = 1 * time.Second
	settlementQueueSize   = 1024
	dedupWindowSize       = 512
	// subscriptions outlive the invoice expiry briefly so a settlement racing
	// the expiry sweep still comes through
	subscriptionExpiryGrace = 1 * time.Minute
)

type listenerService struct {
	store        store.PaymentStore
	ledgerClient ledger.Client
	forwarder    forwarding.ForwardingService

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subscriptions     map[string]context.CancelFunc
	subscriptionsLock sync.Mutex

	queue  *settlementQueue
	window *notificationWindow
}

type ListenerService interface {
	events.EventSubscriber
	Shutdown()
}

func NewListenerService(ctx context.Context, paymentStore store.PaymentStore, ledgerClient ledger.Client, forwarder forwarding.ForwardingService, cfg config.Config) *listenerService {
	ctx, cancel := context.WithCancel(ctx)
	svc := &listenerService{
		store:         paymentStore,
		ledgerClient:  ledgerClient,
		forwarder:     forwarder,
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]context.CancelFunc),
		queue:         newSettlementQueue(settlementQueueSize),
		window:        newNotificationWindow(dedupWindowSize),
	}

	workers := cfg.GetEnv().ForwardingWorkers
	if workers == 0 {
		workers = 1
	}
	for i := uint(0); i < workers; i++ {
		svc.wg.Add(1)
		go svc.forwardingWorker()
	}

	svc.wg.Add(1)
	go svc.subscribePendingPayments()

	return svc
}

func (svc *listenerService) ConsumeEvent(ctx context.Context, event *events.Event, globalProperties map[string]interface{}) {
	switch event.Event {
	case constants.EVENT_PAYMENT_CREATED:
		payment, ok := event.Properties.(*db.Payment)
		if !ok {
			logger.Logger.Error().Str("event", event.Event).Msg("Unexpected event properties type")
			return
		}
		svc.openSubscription(payment)
	case constants.EVENT_PAYMENT_COMPLETED,
		constants.EVENT_PAYMENT_FORWARDING_FAILED,
		constants.EVENT_PAYMENT_EXPIRED,
		constants.EVENT_PAYMENT_CANCELLED:
		payment, ok := event.Properties.(*db.Payment)
		if !ok {
			logger.Logger.Error().Str("event", event.Event).Msg("Unexpected event properties type")
			return
		}
		svc.closeSubscription(payment.PaymentHash)
	}
}

func (svc *listenerService) openSubscription(payment *db.Payment) {
	if payment.ExpiresAt == nil || !payment.ExpiresAt.After(time.Now()) {
		return
	}

	svc.subscriptionsLock.Lock()
	if _, exists := svc.subscriptions[payment.PaymentHash]; exists {
		svc.subscriptionsLock.Unlock()
		return
	}
	subCtx, cancel := context.WithDeadline(svc.ctx, payment.ExpiresAt.Add(subscriptionExpiryGrace))
	svc.subscriptions[payment.PaymentHash] = cancel
	svc.subscriptionsLock.Unlock()

	svc.wg.Add(1)
	go svc.subscribeSettlements(subCtx, payment.PaymentHash)
}

func (svc *listenerService) closeSubscription(paymentHash string) {
	svc.subscriptionsLock.Lock()
	cancel, ok := svc.subscriptions[paymentHash]
	if ok {
		delete(svc.subscriptions, paymentHash)
	}
	svc.subscriptionsLock.Unlock()

	if ok {
		cancel()
	}
}

// subscribeSettlements holds one scoped subscription open for the lifetime of
// a single invoice. Transport failures reconnect with exponential backoff and
// jitter; they never terminate the payment itself.
func (svc *listenerService) subscribeSettlements(ctx context.Context, paymentHash string) {
	defer svc.wg.Done()
	defer svc.closeSubscription(paymentHash)

	delay := initialReconnectDelay
	for ctx.Err() == nil {
		settlementCh, closeFn, err := svc.ledgerClient.SubscribeSettlements(ctx, &ledger.SettlementFilter{
			PaymentHashes: []string{paymentHash},
		})
		if err != nil {
			logger.Logger.Warn().Err(err).
				Str("payment_hash", paymentHash).
				Dur("retry_in", delay).
				Msg("Failed to subscribe to settlement stream")
			if !sleepWithContext(ctx, withJitter(delay)) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		logger.Logger.Debug().
			Str("payment_hash", paymentHash).
			Msg("Subscribed to settlement stream")
		delay = initialReconnectDelay

		done := svc.consumeStream(ctx, settlementCh)
		closeFn()
		if done {
			return
		}

		logger.Logger.Warn().
			Str("payment_hash", paymentHash).
			Dur("retry_in", delay).
			Msg("Settlement stream interrupted, reconnecting")
		if !sleepWithContext(ctx, withJitter(delay)) {
			return
		}
		delay = nextDelay(delay)
	}
}

// consumeStream reads until the stream drops or the subscription context
// ends. It reports whether the subscription is finished for good.
func (svc *listenerService) consumeStream(ctx context.Context, settlementCh <-chan ledger.SettlementEvent) bool {
	for {
		select {
		case settlement, ok := <-settlementCh:
			if !ok {
				return false
			}
			svc.handleNotification(ctx, &settlement)
		case <-ctx.Done():
			return true
		}
	}
}

func (svc *listenerService) handleNotification(ctx context.Context, settlement *ledger.SettlementEvent) {
	if svc.window.Observe(settlement.NotificationId) {
		logger.Logger.Debug().
			Str("payment_hash", settlement.PaymentHash).
			Str("notification_id", settlement.NotificationId).
			Msg("Skipping duplicate settlement notification")
		return
	}

	logger.Logger.Info().
		Str("payment_hash", settlement.PaymentHash).
		Uint64("amount_sat", settlement.AmountSat).
		Msg("Received settlement notification")

	for !svc.queue.Enqueue(settlement) {
		logger.Logger.Warn().
			Str("payment_hash", settlement.PaymentHash).
			Msg("Settlement queue full, retrying enqueue")
		if !sleepWithContext(ctx, enqueueRetryInterval) {
			return
		}
	}
}

func (svc *listenerService) forwardingWorker() {
	defer svc.wg.Done()
	for {
		settlement, err := svc.queue.Next(svc.ctx)
		if err != nil {
			return
		}
		if err := svc.forwarder.HandleSettlement(svc.ctx, settlement); err != nil {
			logger.Logger.Error().Err(err).
				Str("payment_hash", settlement.PaymentHash).
				Msg("Failed to process settlement")
			// let a redelivery of the same notification through
			svc.window.Forget(settlement.NotificationId)
		}
	}
}

// subscribePendingPayments restores listener state after a restart: settled
// records whose claim never happened are re-driven directly (their
// notification will not be redelivered), everything still pending gets its
// subscription back.
func (svc *listenerService) subscribePendingPayments() {
	defer svc.wg.Done()

	settledPayments, err := svc.store.ListSettledUnforwarded(svc.ctx, time.Now())
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to load settled unforwarded payments")
	}
	for i := range settledPayments {
		payment := &settledPayments[i]
		logger.Logger.Info().
			Str("payment_hash", payment.PaymentHash).
			Msg("Re-driving forwarding for settled payment")
		if err := svc.forwarder.ForwardSettled(svc.ctx, payment.PaymentHash); err != nil {
			logger.Logger.Error().Err(err).
				Str("payment_hash", payment.PaymentHash).
				Msg("Failed to re-drive forwarding")
		}
	}

	pendingPayments, err := svc.store.ListPendingUnexpired(svc.ctx)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to load pending payments")
		return
	}
	if len(pendingPayments) == 0 {
		return
	}
	for i := range pendingPayments {
		svc.openSubscription(&pendingPayments[i])
	}
	logger.Logger.Info().
		Int("count", len(pendingPayments)).
		Msg("Resumed settlement subscriptions for pending payments")
}

func (svc *listenerService) Shutdown() {
	logger.Logger.Info().Msg("Shutting down settlement listener")
	svc.cancel()
	svc.wg.Wait()

	for _, settlement := range svc.queue.GetAndClearPending() {
		logger.Logger.Warn().
			Str("payment_hash", settlement.PaymentHash).
			Msg("Settlement not processed before shutdown")
	}
	svc.queue.Close()
}

func sleepWithContext(ctx context.Context, duration time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(duration):
		return true
	}
}

func nextDelay(delay time.Duration) time.Duration {
	delay *= 2
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	return delay
}

func withJitter(delay time.Duration) time.Duration {
	return delay + time.Duration(rand.Int63n(int64(delay/2+1)))
}
