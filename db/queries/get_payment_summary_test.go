package queries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/db"
	"github.com/opentip/funnelhub/tests"
)

func TestGetPaymentSummary(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	svc.DB.Create(&db.Payment{
		PaymentHash:    "hash_completed",
		TrackingHandle: "trk_completed",
		State:          constants.PAYMENT_STATE_COMPLETED,
		AmountSat:      1100,
		BaseAmountSat:  1000,
		TipAmountSat:   100,
		TipLegs: []db.TipLeg{
			{LegIndex: 0, Type: constants.LEG_TYPE_MERCHANT, Destination: tests.MockMerchantAccount, AmountSat: 1000, State: constants.LEG_STATE_SETTLED},
			{LegIndex: 1, Type: constants.LEG_TYPE_TIP, Destination: tests.MockTipDestinations[0], AmountSat: 100, State: constants.LEG_STATE_SETTLED},
		},
	})
	svc.DB.Create(&db.Payment{
		PaymentHash:    "hash_exceptions",
		TrackingHandle: "trk_exceptions",
		State:          constants.PAYMENT_STATE_COMPLETED_WITH_EXCEPTIONS,
		AmountSat:      500,
		BaseAmountSat:  400,
		TipAmountSat:   100,
		TipLegs: []db.TipLeg{
			{LegIndex: 0, Type: constants.LEG_TYPE_MERCHANT, Destination: tests.MockMerchantAccount, AmountSat: 400, State: constants.LEG_STATE_SETTLED},
			{LegIndex: 1, Type: constants.LEG_TYPE_TIP, Destination: tests.MockTipDestinations[0], AmountSat: 100, State: constants.LEG_STATE_FAILED},
		},
	})
	svc.DB.Create(&db.Payment{
		PaymentHash:    "hash_pending",
		TrackingHandle: "trk_pending",
		State:          constants.PAYMENT_STATE_PENDING,
		AmountSat:      200,
		BaseAmountSat:  200,
	})
	svc.DB.Create(&db.Payment{
		PaymentHash:    "hash_expired",
		TrackingHandle: "trk_expired",
		State:          constants.PAYMENT_STATE_EXPIRED,
		AmountSat:      300,
		BaseAmountSat:  300,
	})

	summary := GetPaymentSummary(svc.DB, time.Time{})

	assert.Equal(t, int64(4), summary.TotalCount)
	assert.Equal(t, int64(1), summary.PendingCount)
	assert.Equal(t, int64(1), summary.CompletedCount)
	assert.Equal(t, int64(1), summary.ExceptionCount)
	assert.Equal(t, int64(0), summary.FailedCount)
	assert.Equal(t, int64(1), summary.ExpiredCount)

	// only settled legs count: 1000 + 100 + 400 moved, the failed 100 did not
	assert.Equal(t, uint64(1500), summary.ForwardedAmountSat)
	assert.Equal(t, uint64(100), summary.TipAmountSat)
}

func TestGetPaymentSummary_SinceCutoff(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	svc.DB.Create(&db.Payment{
		PaymentHash:    "hash_recent",
		TrackingHandle: "trk_recent",
		State:          constants.PAYMENT_STATE_COMPLETED,
		AmountSat:      100,
		BaseAmountSat:  100,
	})

	summary := GetPaymentSummary(svc.DB, time.Now().Add(-time.Hour))
	assert.Equal(t, int64(1), summary.TotalCount)

	// records created before the window are excluded
	summary = GetPaymentSummary(svc.DB, time.Now().Add(time.Hour))
	assert.Equal(t, int64(0), summary.TotalCount)
}
