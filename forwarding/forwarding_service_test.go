package forwarding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/db"
	"github.com/opentip/funnelhub/ledger"
	"github.com/opentip/funnelhub/store"
	"github.com/opentip/funnelhub/tests"
)

func createSettledPayment(t *testing.T, paymentStore store.PaymentStore) *db.Payment {
	ctx := context.TODO()

	expiresAt := time.Now().Add(15 * time.Minute)
	_, err := paymentStore.CreatePending(ctx, &store.CreatePendingParams{
		PaymentHash:     tests.MockPaymentHash,
		TrackingHandle:  tests.MockTrackingHandle,
		InvoiceRef:      tests.MockInvoiceRef,
		AmountSat:       110,
		BaseAmountSat:   100,
		TipAmountSat:    10,
		MerchantAccount: tests.MockMerchantAccount,
		TipLegs: []store.LegParams{
			{Destination: tests.MockTipDestinations[0], AmountSat: 4, Percent: 34},
			{Destination: tests.MockTipDestinations[1], AmountSat: 3, Percent: 33},
			{Destination: tests.MockTipDestinations[2], AmountSat: 3, Percent: 33},
		},
		Memo:      "table 12",
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)

	payment, err := paymentStore.MarkSettled(ctx, tests.MockPaymentHash, 110, tests.MockSettlementEvent.SettledAt)
	require.NoError(t, err)
	return payment
}

func countEvents(t *testing.T, paymentStore store.PaymentStore, eventType string) int {
	paymentEvents, err := paymentStore.ListEvents(context.TODO(), tests.MockPaymentHash)
	require.NoError(t, err)
	count := 0
	for _, paymentEvent := range paymentEvents {
		if paymentEvent.Type == eventType {
			count++
		}
	}
	return count
}

func TestForwardSettled_AllLegsSucceed(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := store.NewPaymentStore(svc.DB, store.NewNoopCache(), svc.EventPublisher)
	createSettledPayment(t, paymentStore)

	var requestsMutex sync.Mutex
	transferRequests := []*ledger.TransferRequest{}
	svc.LedgerClient.EXPECT().Transfer(mock.Anything, mock.Anything).RunAndReturn(func(ctx context.Context, transferRequest *ledger.TransferRequest) (*ledger.TransferResponse, error) {
		requestsMutex.Lock()
		defer requestsMutex.Unlock()
		transferRequests = append(transferRequests, transferRequest)
		return &ledger.TransferResponse{TransferId: "tr_" + transferRequest.To}, nil
	})

	forwardingService := NewForwardingService(paymentStore, svc.LedgerClient, tests.MockFunnelAccount, svc.Cfg)
	err = forwardingService.ForwardSettled(ctx, tests.MockPaymentHash)
	require.NoError(t, err)

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_COMPLETED, payment.State)
	require.NotNil(t, payment.ProcessedAt)

	var forwardedTotal uint64
	for _, leg := range payment.TipLegs {
		assert.Equal(t, constants.LEG_STATE_SETTLED, leg.State)
		assert.Equal(t, "tr_"+leg.Destination, leg.TransferId)
		forwardedTotal += leg.AmountSat
	}
	assert.Equal(t, payment.AmountSat, forwardedTotal)

	// the merchant is always paid before any tip recipient
	require.Len(t, transferRequests, 4)
	assert.Equal(t, tests.MockMerchantAccount, transferRequests[0].To)
	assert.Equal(t, uint64(100), transferRequests[0].AmountSat)
	assert.Equal(t, tests.MockFunnelAccount, transferRequests[0].From)
	assert.Equal(t, tests.MockPaymentHash+":0", transferRequests[0].IdempotencyKey)
	assert.Equal(t, tests.MockPaymentHash+":1", transferRequests[1].IdempotencyKey)

	assert.Equal(t, 1, countEvents(t, paymentStore, constants.PAYMENT_EVENT_FORWARDING_STARTED))
	assert.Equal(t, 4, countEvents(t, paymentStore, constants.PAYMENT_EVENT_LEG_SUCCEEDED))
	assert.Equal(t, 1, countEvents(t, paymentStore, constants.PAYMENT_EVENT_COMPLETED))
}

func TestForwardSettled_TipLegRejected(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := store.NewPaymentStore(svc.DB, store.NewNoopCache(), svc.EventPublisher)
	createSettledPayment(t, paymentStore)

	rejectedDestination := tests.MockTipDestinations[1]
	svc.LedgerClient.EXPECT().Transfer(mock.Anything, mock.Anything).RunAndReturn(func(ctx context.Context, transferRequest *ledger.TransferRequest) (*ledger.TransferResponse, error) {
		if transferRequest.To == rejectedDestination {
			return nil, ledger.NewTransferRejectedError("unknown destination account")
		}
		return &ledger.TransferResponse{TransferId: "tr_" + transferRequest.To}, nil
	})

	forwardingService := NewForwardingService(paymentStore, svc.LedgerClient, tests.MockFunnelAccount, svc.Cfg)
	err = forwardingService.ForwardSettled(ctx, tests.MockPaymentHash)
	require.NoError(t, err)

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_COMPLETED_WITH_EXCEPTIONS, payment.State)
	assert.Equal(t, "1 tip leg(s) exhausted retries", payment.FailureReason)

	for _, leg := range payment.TipLegs {
		if leg.Destination == rejectedDestination {
			assert.Equal(t, constants.LEG_STATE_FAILED, leg.State)
			assert.NotEmpty(t, leg.FailureReason)
		} else {
			assert.Equal(t, constants.LEG_STATE_SETTLED, leg.State)
		}
	}

	// a rejection is permanent: one attempt, one leg_failed event
	assert.Equal(t, 1, countEvents(t, paymentStore, constants.PAYMENT_EVENT_LEG_FAILED))
}

func TestForwardSettled_TipLegRetriesThenSucceeds(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := store.NewPaymentStore(svc.DB, store.NewNoopCache(), svc.EventPublisher)
	createSettledPayment(t, paymentStore)

	flakyDestination := tests.MockTipDestinations[0]
	var attemptsMutex sync.Mutex
	flakyAttempts := 0
	svc.LedgerClient.EXPECT().Transfer(mock.Anything, mock.Anything).RunAndReturn(func(ctx context.Context, transferRequest *ledger.TransferRequest) (*ledger.TransferResponse, error) {
		if transferRequest.To == flakyDestination {
			attemptsMutex.Lock()
			flakyAttempts++
			attempts := flakyAttempts
			attemptsMutex.Unlock()
			if attempts == 1 {
				return nil, ledger.NewUpstreamUnavailableError("connection reset")
			}
		}
		return &ledger.TransferResponse{TransferId: "tr_" + transferRequest.To}, nil
	})

	forwardingService := NewForwardingService(paymentStore, svc.LedgerClient, tests.MockFunnelAccount, svc.Cfg)
	err = forwardingService.ForwardSettled(ctx, tests.MockPaymentHash)
	require.NoError(t, err)

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_COMPLETED, payment.State)
	assert.Equal(t, 2, flakyAttempts)

	// the transient failure still left an audit event behind
	assert.Equal(t, 1, countEvents(t, paymentStore, constants.PAYMENT_EVENT_LEG_FAILED))
	assert.Equal(t, 4, countEvents(t, paymentStore, constants.PAYMENT_EVENT_LEG_SUCCEEDED))
}

func TestForwardSettled_MerchantLegFails(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := store.NewPaymentStore(svc.DB, store.NewNoopCache(), svc.EventPublisher)
	createSettledPayment(t, paymentStore)

	svc.LedgerClient.EXPECT().Transfer(mock.Anything, mock.Anything).RunAndReturn(func(ctx context.Context, transferRequest *ledger.TransferRequest) (*ledger.TransferResponse, error) {
		require.Equal(t, tests.MockMerchantAccount, transferRequest.To, "no tip leg may be attempted when the merchant leg fails")
		return nil, ledger.NewTransferRejectedError("funnel account frozen")
	})

	forwardingService := NewForwardingService(paymentStore, svc.LedgerClient, tests.MockFunnelAccount, svc.Cfg)
	err = forwardingService.ForwardSettled(ctx, tests.MockPaymentHash)
	require.NoError(t, err)

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_FAILED, payment.State)
	assert.Contains(t, payment.FailureReason, "merchant transfer failed")

	for _, leg := range payment.TipLegs {
		switch leg.Type {
		case constants.LEG_TYPE_MERCHANT:
			assert.Equal(t, constants.LEG_STATE_FAILED, leg.State)
		default:
			assert.Equal(t, constants.LEG_STATE_PENDING, leg.State)
		}
	}
}

func TestForwardSettled_LostClaimIsNoop(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := store.NewPaymentStore(svc.DB, store.NewNoopCache(), svc.EventPublisher)
	createSettledPayment(t, paymentStore)

	claimed, err := paymentStore.ClaimForProcessing(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	require.True(t, claimed)

	// no Transfer expectation is registered: any transfer attempt fails the test
	forwardingService := NewForwardingService(paymentStore, svc.LedgerClient, tests.MockFunnelAccount, svc.Cfg)
	err = forwardingService.ForwardSettled(ctx, tests.MockPaymentHash)
	require.NoError(t, err)

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_PROCESSING, payment.State)
}

func TestForwardSettled_ZeroAmountLegSkipsTransfer(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := store.NewPaymentStore(svc.DB, store.NewNoopCache(), svc.EventPublisher)

	expiresAt := time.Now().Add(15 * time.Minute)
	_, err = paymentStore.CreatePending(ctx, &store.CreatePendingParams{
		PaymentHash:     tests.MockPaymentHash,
		TrackingHandle:  tests.MockTrackingHandle,
		AmountSat:       101,
		BaseAmountSat:   100,
		TipAmountSat:    1,
		MerchantAccount: tests.MockMerchantAccount,
		TipLegs: []store.LegParams{
			{Destination: tests.MockTipDestinations[0], AmountSat: 1, Percent: 50},
			{Destination: tests.MockTipDestinations[1], AmountSat: 0, Percent: 50},
		},
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)
	_, err = paymentStore.MarkSettled(ctx, tests.MockPaymentHash, 101, time.Now())
	require.NoError(t, err)

	var requestsMutex sync.Mutex
	transferredTo := []string{}
	svc.LedgerClient.EXPECT().Transfer(mock.Anything, mock.Anything).RunAndReturn(func(ctx context.Context, transferRequest *ledger.TransferRequest) (*ledger.TransferResponse, error) {
		requestsMutex.Lock()
		defer requestsMutex.Unlock()
		transferredTo = append(transferredTo, transferRequest.To)
		return &ledger.TransferResponse{TransferId: "tr_" + transferRequest.To}, nil
	})

	forwardingService := NewForwardingService(paymentStore, svc.LedgerClient, tests.MockFunnelAccount, svc.Cfg)
	err = forwardingService.ForwardSettled(ctx, tests.MockPaymentHash)
	require.NoError(t, err)

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_COMPLETED, payment.State)

	// the zero-sat rounding leg settled without touching the ledger
	assert.Equal(t, []string{tests.MockMerchantAccount, tests.MockTipDestinations[0]}, transferredTo)
	for _, leg := range payment.TipLegs {
		assert.Equal(t, constants.LEG_STATE_SETTLED, leg.State)
	}
}

func TestHandleSettlement_UnknownPaymentIgnored(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := store.NewPaymentStore(svc.DB, store.NewNoopCache(), svc.EventPublisher)
	forwardingService := NewForwardingService(paymentStore, svc.LedgerClient, tests.MockFunnelAccount, svc.Cfg)

	settlement := tests.MockSettlementEvent
	err = forwardingService.HandleSettlement(ctx, &settlement)
	assert.NoError(t, err)
}

func TestHandleSettlement_DrivesForwarding(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	paymentStore := store.NewPaymentStore(svc.DB, store.NewNoopCache(), svc.EventPublisher)

	expiresAt := time.Now().Add(15 * time.Minute)
	_, err = paymentStore.CreatePending(ctx, &store.CreatePendingParams{
		PaymentHash:     tests.MockPaymentHash,
		TrackingHandle:  tests.MockTrackingHandle,
		AmountSat:       1100,
		BaseAmountSat:   1000,
		TipAmountSat:    100,
		MerchantAccount: tests.MockMerchantAccount,
		TipLegs: []store.LegParams{
			{Destination: tests.MockTipDestinations[0], AmountSat: 100, Percent: 100},
		},
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)

	svc.LedgerClient.EXPECT().Transfer(mock.Anything, mock.Anything).RunAndReturn(func(ctx context.Context, transferRequest *ledger.TransferRequest) (*ledger.TransferResponse, error) {
		return &ledger.TransferResponse{TransferId: "tr_" + transferRequest.To}, nil
	})

	forwardingService := NewForwardingService(paymentStore, svc.LedgerClient, tests.MockFunnelAccount, svc.Cfg)
	settlement := tests.MockSettlementEvent
	settlement.AmountSat = 1100
	err = forwardingService.HandleSettlement(ctx, &settlement)
	require.NoError(t, err)

	payment, err := paymentStore.Get(ctx, tests.MockPaymentHash)
	require.NoError(t, err)
	assert.Equal(t, constants.PAYMENT_STATE_COMPLETED, payment.State)
	require.NotNil(t, payment.SettledAt)
}
