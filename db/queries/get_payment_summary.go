package queries

import (
	"time"

	"gorm.io/gorm"

	"github.com/opentip/funnelhub/constants"
)

type PaymentSummary struct {
	TotalCount         int64
	PendingCount       int64
	CompletedCount     int64
	ExceptionCount     int64
	FailedCount        int64
	ExpiredCount       int64
	ForwardedAmountSat uint64
	TipAmountSat       uint64
}

// GetPaymentSummary aggregates payment activity since the given cutoff.
// Forwarded and tip totals only count settled legs so partially forwarded
// payments report what actually moved.
func GetPaymentSummary(tx *gorm.DB, since time.Time) PaymentSummary {
	summary := PaymentSummary{}

	countByState := func(states ...string) int64 {
		var count int64
		tx.
			Table("payments").
			Where("created_at >= ? AND state IN ?", since, states).
			Count(&count)
		return count
	}

	summary.TotalCount = countByState(
		constants.PAYMENT_STATE_PENDING,
		constants.PAYMENT_STATE_PROCESSING,
		constants.PAYMENT_STATE_COMPLETED,
		constants.PAYMENT_STATE_COMPLETED_WITH_EXCEPTIONS,
		constants.PAYMENT_STATE_FAILED,
		constants.PAYMENT_STATE_EXPIRED,
		constants.PAYMENT_STATE_CANCELLED,
	)
	summary.PendingCount = countByState(constants.PAYMENT_STATE_PENDING, constants.PAYMENT_STATE_PROCESSING)
	summary.CompletedCount = countByState(constants.PAYMENT_STATE_COMPLETED)
	summary.ExceptionCount = countByState(constants.PAYMENT_STATE_COMPLETED_WITH_EXCEPTIONS)
	summary.FailedCount = countByState(constants.PAYMENT_STATE_FAILED)
	summary.ExpiredCount = countByState(constants.PAYMENT_STATE_EXPIRED)

	var forwarded struct {
		Sum uint64
	}
	tx.
		Table("tip_legs").
		Select("COALESCE(SUM(amount_sat), 0) as sum").
		Where("state = ? AND created_at >= ?", constants.LEG_STATE_SETTLED, since).
		Scan(&forwarded)
	summary.ForwardedAmountSat = forwarded.Sum

	var tips struct {
		Sum uint64
	}
	tx.
		Table("tip_legs").
		Select("COALESCE(SUM(amount_sat), 0) as sum").
		Where("state = ? AND type = ? AND created_at >= ?", constants.LEG_STATE_SETTLED, constants.LEG_TYPE_TIP, since).
		Scan(&tips)
	summary.TipAmountSat = tips.Sum

	return summary
}
