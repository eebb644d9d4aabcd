package service

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/db"
	"github.com/opentip/funnelhub/events"
	"github.com/opentip/funnelhub/logger"
)

type forwardConsumer struct {
	events.EventSubscriber
	db *gorm.DB
}

// When a payment finishes forwarding, write a compact Forward row so
// reporting queries don't need to walk the leg table.
func (c *forwardConsumer) ConsumeEvent(ctx context.Context, event *events.Event, globalProperties map[string]interface{}) {
	if event.Event != constants.EVENT_PAYMENT_COMPLETED {
		return
	}

	payment, ok := event.Properties.(*db.Payment)
	if !ok {
		logger.Logger.Error().Interface("event", event).Msg("Failed to cast event.Properties to payment")
		return
	}

	var forwardedAmountSat uint64
	var tipAmountSat uint64
	var settledLegCount uint
	var failedLegCount uint
	for _, leg := range payment.TipLegs {
		switch leg.State {
		case constants.LEG_STATE_SETTLED:
			settledLegCount++
			forwardedAmountSat += leg.AmountSat
			if leg.Type == constants.LEG_TYPE_TIP {
				tipAmountSat += leg.AmountSat
			}
		case constants.LEG_STATE_FAILED:
			failedLegCount++
		}
	}

	forward := &db.Forward{
		PaymentHash:         payment.PaymentHash,
		ForwardedAmountSat:  forwardedAmountSat,
		TipAmountSat:        tipAmountSat,
		SettledLegCount:     settledLegCount,
		FailedLegCount:      failedLegCount,
		CompletedWithErrors: payment.State == constants.PAYMENT_STATE_COMPLETED_WITH_EXCEPTIONS,
	}
	// terminal transitions publish once, but a redelivered event must not error
	err := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_hash"}},
		DoNothing: true,
	}).Create(forward).Error
	if err != nil {
		logger.Logger.Error().Err(err).
			Str("payment_hash", payment.PaymentHash).
			Msg("failed to save forward to db")
	}
}
