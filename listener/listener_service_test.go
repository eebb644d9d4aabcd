package listener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/events"
	"github.com/opentip/funnelhub/ledger"
	"github.com/opentip/funnelhub/store"
	"github.com/opentip/funnelhub/tests"
)

type fakeSubscription struct {
	filter      *ledger.SettlementFilter
	settlements chan ledger.SettlementEvent
}

type fakeLedgerClient struct {
	mu             sync.Mutex
	failSubscribes int
	subscriptions  []*fakeSubscription
	closedCount    int
}

func (f *fakeLedgerClient) CreateInvoice(ctx context.Context, amountSat uint64, memo string, expiry time.Duration) (*ledger.Invoice, error) {
	return nil, ledger.NewUpstreamUnavailableError("not implemented")
}

func (f *fakeLedgerClient) SubscribeSettlements(ctx context.Context, filter *ledger.SettlementFilter) (<-chan ledger.SettlementEvent, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSubscribes > 0 {
		f.failSubscribes--
		return nil, nil, ledger.NewUpstreamUnavailableError("connection refused")
	}

	subscription := &fakeSubscription{
		filter:      filter,
		settlements: make(chan ledger.SettlementEvent, 8),
	}
	f.subscriptions = append(f.subscriptions, subscription)
	return subscription.settlements, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.closedCount++
	}, nil
}

func (f *fakeLedgerClient) Transfer(ctx context.Context, transferRequest *ledger.TransferRequest) (*ledger.TransferResponse, error) {
	return nil, ledger.NewUpstreamUnavailableError("not implemented")
}

func (f *fakeLedgerClient) GetInfo(ctx context.Context) (*ledger.Info, error) {
	return &ledger.Info{FunnelAccount: tests.MockFunnelAccount}, nil
}

func (f *fakeLedgerClient) Shutdown() error {
	return nil
}

func (f *fakeLedgerClient) subscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscriptions)
}

func (f *fakeLedgerClient) lastSubscription() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subscriptions) == 0 {
		return nil
	}
	return f.subscriptions[len(f.subscriptions)-1]
}

type fakeForwarder struct {
	mu          sync.Mutex
	settlements []*ledger.SettlementEvent
	forwarded   []string
}

func (f *fakeForwarder) HandleSettlement(ctx context.Context, settlement *ledger.SettlementEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settlements = append(f.settlements, settlement)
	return nil
}

func (f *fakeForwarder) ForwardSettled(ctx context.Context, paymentHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwarded = append(f.forwarded, paymentHash)
	return nil
}

func (f *fakeForwarder) handledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.settlements)
}

func (f *fakeForwarder) forwardedHashes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.forwarded...)
}

func createListenerTestPayment(t *testing.T, svc *tests.TestService) store.PaymentStore {
	paymentStore := store.NewPaymentStore(svc.DB, store.NewNoopCache(), svc.EventPublisher)
	_, err := paymentStore.CreatePending(context.TODO(), &store.CreatePendingParams{
		PaymentHash:     tests.MockPaymentHash,
		TrackingHandle:  tests.MockTrackingHandle,
		AmountSat:       1100,
		BaseAmountSat:   1000,
		TipAmountSat:    100,
		MerchantAccount: tests.MockMerchantAccount,
		TipLegs: []store.LegParams{
			{Destination: tests.MockTipDestinations[0], AmountSat: 100, Percent: 100},
		},
		ExpiresAt: time.Now().Add(15 * time.Minute),
	})
	require.NoError(t, err)
	return paymentStore
}

func TestListener_SettlementHandoff(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := createListenerTestPayment(t, svc)
	ledgerClient := &fakeLedgerClient{}
	forwarder := &fakeForwarder{}

	listenerSvc := NewListenerService(context.Background(), paymentStore, ledgerClient, forwarder, svc.Cfg)
	defer listenerSvc.Shutdown()

	// the resume pass subscribes to the pending payment
	require.Eventually(t, func() bool {
		return ledgerClient.subscriptionCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	subscription := ledgerClient.lastSubscription()
	require.NotNil(t, subscription)
	require.Equal(t, []string{tests.MockPaymentHash}, subscription.filter.PaymentHashes)

	subscription.settlements <- tests.MockSettlementEvent

	require.Eventually(t, func() bool {
		return forwarder.handledCount() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestListener_DuplicateNotificationSkipped(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := createListenerTestPayment(t, svc)
	ledgerClient := &fakeLedgerClient{}
	forwarder := &fakeForwarder{}

	listenerSvc := NewListenerService(context.Background(), paymentStore, ledgerClient, forwarder, svc.Cfg)
	defer listenerSvc.Shutdown()

	require.Eventually(t, func() bool {
		return ledgerClient.subscriptionCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	subscription := ledgerClient.lastSubscription()
	subscription.settlements <- tests.MockSettlementEvent
	subscription.settlements <- tests.MockSettlementEvent

	require.Eventually(t, func() bool {
		return forwarder.handledCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	// the redelivered notification never reaches the forwarder
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, forwarder.handledCount())
}

func TestListener_RedrivesSettledUnforwardedOnStartup(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := createListenerTestPayment(t, svc)

	// settled before the restart, claim never happened
	_, err = paymentStore.MarkSettled(context.TODO(), tests.MockPaymentHash, 1100, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	ledgerClient := &fakeLedgerClient{}
	forwarder := &fakeForwarder{}

	listenerSvc := NewListenerService(context.Background(), paymentStore, ledgerClient, forwarder, svc.Cfg)
	defer listenerSvc.Shutdown()

	require.Eventually(t, func() bool {
		forwarded := forwarder.forwardedHashes()
		return len(forwarded) == 1 && forwarded[0] == tests.MockPaymentHash
	}, 3*time.Second, 10*time.Millisecond)
}

func TestListener_ReconnectsAfterStreamDrop(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := createListenerTestPayment(t, svc)
	ledgerClient := &fakeLedgerClient{failSubscribes: 1}
	forwarder := &fakeForwarder{}

	listenerSvc := NewListenerService(context.Background(), paymentStore, ledgerClient, forwarder, svc.Cfg)
	defer listenerSvc.Shutdown()

	// first attempt fails, the backoff retry lands the subscription
	require.Eventually(t, func() bool {
		return ledgerClient.subscriptionCount() == 1
	}, 5*time.Second, 25*time.Millisecond)

	// dropping the stream reconnects without losing the scope
	subscription := ledgerClient.lastSubscription()
	close(subscription.settlements)

	require.Eventually(t, func() bool {
		return ledgerClient.subscriptionCount() == 2
	}, 5*time.Second, 25*time.Millisecond)

	resubscription := ledgerClient.lastSubscription()
	assert.Equal(t, []string{tests.MockPaymentHash}, resubscription.filter.PaymentHashes)
}

func TestListener_ClosesSubscriptionOnTerminalEvent(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := createListenerTestPayment(t, svc)
	ledgerClient := &fakeLedgerClient{}
	forwarder := &fakeForwarder{}

	listenerSvc := NewListenerService(context.Background(), paymentStore, ledgerClient, forwarder, svc.Cfg)
	defer listenerSvc.Shutdown()

	require.Eventually(t, func() bool {
		return ledgerClient.subscriptionCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	payment, err := paymentStore.Get(context.TODO(), tests.MockPaymentHash)
	require.NoError(t, err)

	listenerSvc.ConsumeEvent(context.TODO(), &events.Event{
		Event:      constants.EVENT_PAYMENT_CANCELLED,
		Properties: payment,
	}, map[string]interface{}{})

	require.Eventually(t, func() bool {
		ledgerClient.mu.Lock()
		defer ledgerClient.mu.Unlock()
		return ledgerClient.closedCount == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestListener_ShutdownStopsWorkers(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := createListenerTestPayment(t, svc)
	ledgerClient := &fakeLedgerClient{}
	forwarder := &fakeForwarder{}

	listenerSvc := NewListenerService(context.Background(), paymentStore, ledgerClient, forwarder, svc.Cfg)

	require.Eventually(t, func() bool {
		return ledgerClient.subscriptionCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		listenerSvc.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}
