package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/tests"
)

func createPendingParams() *CreatePendingParams {
	return &CreatePendingParams{
		PaymentHash:     tests.MockPaymentHash,
		TrackingHandle:  tests.MockTrackingHandle,
		InvoiceRef:      tests.MockInvoiceRef,
		AmountSat:       1100,
		BaseAmountSat:   1000,
		TipAmountSat:    100,
		MerchantAccount: tests.MockMerchantAccount,
		TipLegs: []LegParams{
			{Destination: tests.MockTipDestinations[0], AmountSat: 50, Percent: 50},
			{Destination: tests.MockTipDestinations[1], AmountSat: 50, Percent: 50},
		},
		Memo:      "table 12",
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
}

func TestCreatePending(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)

	payment, err := paymentStore.CreatePending(ctx, createPendingParams())
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_PENDING, payment.State)

	// merchant leg at index 0, then tips in payout order
	require.Len(t, payment.TipLegs, 3)
	assert.Equal(t, constants.LEG_TYPE_MERCHANT, payment.TipLegs[0].Type)
	assert.Equal(t, uint(0), payment.TipLegs[0].LegIndex)
	assert.Equal(t, tests.MockMerchantAccount, payment.TipLegs[0].Destination)
	assert.Equal(t, uint64(1000), payment.TipLegs[0].AmountSat)
	assert.Equal(t, constants.LEG_TYPE_TIP, payment.TipLegs[1].Type)
	assert.Equal(t, uint(1), payment.TipLegs[1].LegIndex)

	paymentEvents, err := paymentStore.ListEvents(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	require.Len(t, paymentEvents, 1)
	assert.Equal(t, constants.PAYMENT_EVENT_CREATED, paymentEvents[0].Type)
}

func TestCreatePending_Validation(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)

	params := createPendingParams()
	params.PaymentHash = ""
	_, err = paymentStore.CreatePending(ctx, params)
	assert.True(t, IsValidationError(err))

	params = createPendingParams()
	params.BaseAmountSat = 999
	_, err = paymentStore.CreatePending(ctx, params)
	assert.True(t, IsValidationError(err), "base + tip must sum to total")

	params = createPendingParams()
	params.TipLegs[0].AmountSat = 49
	_, err = paymentStore.CreatePending(ctx, params)
	assert.True(t, IsValidationError(err), "legs must sum to the tip amount")

	params = createPendingParams()
	params.TipLegs = nil
	_, err = paymentStore.CreatePending(ctx, params)
	assert.True(t, IsValidationError(err), "a tip amount requires recipients")

	params = createPendingParams()
	params.ExpiresAt = time.Now().Add(-time.Minute)
	_, err = paymentStore.CreatePending(ctx, params)
	assert.True(t, IsValidationError(err), "expiry must be in the future")

	// nothing was persisted for any of the rejected inputs
	payments, totalCount, err := paymentStore.ListPayments(ctx, nil, 100, 0)
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.Equal(t, uint64(0), totalCount)
}

func TestCreatePending_DuplicateHash(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)

	_, err = paymentStore.CreatePending(ctx, createPendingParams())
	require.NoError(t, err)

	params := createPendingParams()
	params.TrackingHandle = "trk_other"
	_, err = paymentStore.CreatePending(ctx, params)
	assert.True(t, IsValidationError(err))
}

func TestGet_ReadThroughCache(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	cache := newTestCache()
	paymentStore := NewPaymentStore(svc.DB, cache, svc.EventPublisher)

	_, err = paymentStore.CreatePending(ctx, createPendingParams())
	require.NoError(t, err)

	// creation projected the pending record into the cache
	_, found, err := cache.Get(ctx, cacheKey(tests.MockPaymentHash))
	require.NoError(t, err)
	assert.True(t, found)

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, tests.MockPaymentHash, payment.PaymentHash)
	assert.Equal(t, 0, cache.missCount, "pending lookup must be served hot")

	// claiming evicts; the next read falls through to cold storage
	claimed, err := paymentStore.ClaimForProcessing(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	require.True(t, claimed)

	payment, err = paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_PROCESSING, payment.State)
	assert.Equal(t, 1, cache.missCount)

	// processing records are never projected back
	_, found, err = cache.Get(ctx, cacheKey(tests.MockPaymentHash))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGet_CacheFailureFallsBack(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	cache := newTestCache()
	cache.failing = true
	paymentStore := NewPaymentStore(svc.DB, cache, svc.EventPublisher)

	_, err = paymentStore.CreatePending(ctx, createPendingParams())
	require.NoError(t, err)

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, tests.MockPaymentHash, payment.PaymentHash)
}

func TestGet_NotFound(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)

	_, err = paymentStore.Get(ctx, tests.MockPaymentHash)
	assert.True(t, IsNotFoundError(err))
}

func TestClaimForProcessing_SingleWinner(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)
	_, err = paymentStore.CreatePending(ctx, createPendingParams())
	require.NoError(t, err)

	const claimers = 10
	winners := make(chan bool, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := paymentStore.ClaimForProcessing(ctx, tests.MockPaymentHash)
			assert.NoError(t, err)
			if claimed {
				winners <- true
			}
		}()
	}
	wg.Wait()
	close(winners)

	winnerCount := 0
	for range winners {
		winnerCount++
	}
	assert.Equal(t, 1, winnerCount, "exactly one claimer may win")
}

func TestClaimForProcessing_OnlyPendingIsClaimable(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)

	claimed, err := paymentStore.ClaimForProcessing(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.False(t, claimed, "claiming an unknown hash is a lost claim, not an error")

	_, err = paymentStore.CreatePending(ctx, createPendingParams())
	require.NoError(t, err)
	cancelled, err := paymentStore.MarkCancelled(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	require.True(t, cancelled)

	claimed, err = paymentStore.ClaimForProcessing(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestMarkSettled_Idempotent(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)
	_, err = paymentStore.CreatePending(ctx, createPendingParams())
	require.NoError(t, err)

	settledAt := time.Now()
	payment, err := paymentStore.MarkSettled(ctx, tests.MockPaymentHash, 1100, settledAt)
	require.NoError(t, err)
	require.NotNil(t, payment.SettledAt)

	// a redelivered settlement leaves the stored timestamp untouched
	_, err = paymentStore.MarkSettled(ctx, tests.MockPaymentHash, 1100, settledAt.Add(time.Hour))
	require.NoError(t, err)

	payment, err = paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, settledAt.Unix(), payment.SettledAt.Unix())

	paidEvents := 0
	paymentEvents, err := paymentStore.ListEvents(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	for _, paymentEvent := range paymentEvents {
		if paymentEvent.Type == constants.PAYMENT_EVENT_PAID {
			paidEvents++
		}
	}
	assert.Equal(t, 1, paidEvents)
}

func TestMarkTerminal_RequiresProcessing(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)
	_, err = paymentStore.CreatePending(ctx, createPendingParams())
	require.NoError(t, err)

	_, err = paymentStore.MarkTerminal(ctx, tests.MockPaymentHash, constants.PAYMENT_STATE_COMPLETED, "", nil)
	assert.True(t, IsInvalidTransitionError(err), "terminal states are only reachable from processing")

	claimed, err := paymentStore.ClaimForProcessing(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	require.True(t, claimed)

	payment, err := paymentStore.MarkTerminal(ctx, tests.MockPaymentHash, constants.PAYMENT_STATE_COMPLETED, "", nil)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_COMPLETED, payment.State)

	// repeating the same terminal transition is accepted without a second event
	_, err = paymentStore.MarkTerminal(ctx, tests.MockPaymentHash, constants.PAYMENT_STATE_COMPLETED, "", nil)
	require.NoError(t, err)

	completedEvents := 0
	paymentEvents, err := paymentStore.ListEvents(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	for _, paymentEvent := range paymentEvents {
		if paymentEvent.Type == constants.PAYMENT_EVENT_COMPLETED {
			completedEvents++
		}
	}
	assert.Equal(t, 1, completedEvents)
}

func TestMarkTerminal_RejectsNonTerminalState(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)

	_, err = paymentStore.MarkTerminal(ctx, tests.MockPaymentHash, constants.PAYMENT_STATE_PENDING, "", nil)
	assert.Error(t, err)
}

func TestMarkExpired(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)

	params := createPendingParams()
	params.ExpiresAt = time.Now().Add(50 * time.Millisecond)
	_, err = paymentStore.CreatePending(ctx, params)
	require.NoError(t, err)

	// not yet past expiry
	expired, err := paymentStore.MarkExpired(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.False(t, expired)

	time.Sleep(60 * time.Millisecond)

	expired, err = paymentStore.MarkExpired(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.True(t, expired)

	// second sweep over the same record is a no-op
	expired, err = paymentStore.MarkExpired(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.False(t, expired)

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_EXPIRED, payment.State)

	expiredEvents := 0
	paymentEvents, err := paymentStore.ListEvents(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	for _, paymentEvent := range paymentEvents {
		if paymentEvent.Type == constants.PAYMENT_EVENT_EXPIRED {
			expiredEvents++
		}
	}
	assert.Equal(t, 1, expiredEvents)
}

func TestMarkExpired_SettledPaymentIsNotExpired(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)

	params := createPendingParams()
	params.ExpiresAt = time.Now().Add(50 * time.Millisecond)
	_, err = paymentStore.CreatePending(ctx, params)
	require.NoError(t, err)

	// funds landed right before expiry
	_, err = paymentStore.MarkSettled(ctx, tests.MockPaymentHash, 1100, time.Now())
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	expired, err := paymentStore.MarkExpired(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.False(t, expired, "settled funds must be forwarded, never expired")

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_PENDING, payment.State)
}

func TestMarkCancelled_OnlyPending(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)
	_, err = paymentStore.CreatePending(ctx, createPendingParams())
	require.NoError(t, err)

	claimed, err := paymentStore.ClaimForProcessing(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	require.True(t, claimed)

	cancelled, err := paymentStore.MarkCancelled(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.False(t, cancelled, "a claimed payment can no longer be cancelled")

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_PROCESSING, payment.State)
}

func TestListSettledUnforwarded(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := NewPaymentStore(svc.DB, NewNoopCache(), svc.EventPublisher)
	_, err = paymentStore.CreatePending(ctx, createPendingParams())
	require.NoError(t, err)

	payments, err := paymentStore.ListSettledUnforwarded(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, payments)

	_, err = paymentStore.MarkSettled(ctx, tests.MockPaymentHash, 1100, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	payments, err = paymentStore.ListSettledUnforwarded(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, tests.MockPaymentHash, payments[0].PaymentHash)

	// once claimed the record is owned by a forwarding run and drops out
	claimed, err := paymentStore.ClaimForProcessing(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	require.True(t, claimed)

	payments, err = paymentStore.ListSettledUnforwarded(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, payments)
}

// testCache is an in-memory Cache with hit/miss accounting.
type testCache struct {
	mutex     sync.Mutex
	entries   map[string]string
	missCount int
	failing   bool
}

func newTestCache() *testCache {
	return &testCache{entries: map[string]string{}}
}

func (c *testCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.failing {
		return "", false, context.DeadlineExceeded
	}
	value, found := c.entries[key]
	if !found {
		c.missCount++
	}
	return value, found, nil
}

func (c *testCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.failing {
		return context.DeadlineExceeded
	}
	if ttl <= 0 {
		return nil
	}
	c.entries[key] = value
	return nil
}

func (c *testCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.failing {
		return context.DeadlineExceeded
	}
	delete(c.entries, key)
	return nil
}

func (c *testCache) Shutdown() error {
	return nil
}
