package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/db"
	"github.com/opentip/funnelhub/events"
	"github.com/opentip/funnelhub/logger"
)

type paymentStore struct {
	db             *gorm.DB
	cache          Cache
	eventPublisher events.EventPublisher
}

type Payment = db.Payment
type PaymentEvent = db.PaymentEvent

func NewPaymentStore(gormDB *gorm.DB, cache Cache, eventPublisher events.EventPublisher) *paymentStore {
	return &paymentStore{
		db:             gormDB,
		cache:          cache,
		eventPublisher: eventPublisher,
	}
}

func (svc *paymentStore) CreatePending(ctx context.Context, params *CreatePendingParams) (*db.Payment, error) {
	if err := validateCreatePendingParams(params); err != nil {
		return nil, err
	}

	var metadataBytes []byte
	if params.Metadata != nil {
		var err error
		metadataBytes, err = json.Marshal(params.Metadata)
		if err != nil {
			logger.Logger.Error().Err(err).Msg("Failed to serialize metadata")
			return nil, err
		}
		if len(metadataBytes) > constants.PAYMENT_METADATA_MAX_LENGTH {
			return nil, NewValidationError(fmt.Sprintf("encoded payment metadata provided is too large. Limit: %d Received: %d", constants.PAYMENT_METADATA_MAX_LENGTH, len(metadataBytes)))
		}
	}

	expiresAt := params.ExpiresAt
	payment := db.Payment{}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existingPayment db.Payment
		if tx.Limit(1).Find(&existingPayment, &db.Payment{PaymentHash: params.PaymentHash}).RowsAffected > 0 {
			return NewValidationError(fmt.Sprintf("payment with hash %s already exists", params.PaymentHash))
		}

		payment = db.Payment{
			PaymentHash:     params.PaymentHash,
			TrackingHandle:  params.TrackingHandle,
			State:           constants.PAYMENT_STATE_PENDING,
			AmountSat:       params.AmountSat,
			BaseAmountSat:   params.BaseAmountSat,
			TipAmountSat:    params.TipAmountSat,
			MerchantAccount: params.MerchantAccount,
			InvoiceRef:      params.InvoiceRef,
			Memo:            params.Memo,
			DisplayCurrency: params.DisplayCurrency,
			DisplayAmount:   params.DisplayAmount,
			Metadata:        datatypes.JSON(metadataBytes),
			ExpiresAt:       &expiresAt,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		legs := []db.TipLeg{
			{
				PaymentId:   payment.ID,
				LegIndex:    0,
				Type:        constants.LEG_TYPE_MERCHANT,
				Destination: params.MerchantAccount,
				AmountSat:   params.BaseAmountSat,
				State:       constants.LEG_STATE_PENDING,
			},
		}
		for i, tipLeg := range params.TipLegs {
			legs = append(legs, db.TipLeg{
				PaymentId:   payment.ID,
				LegIndex:    uint(i + 1),
				Type:        constants.LEG_TYPE_TIP,
				Destination: tipLeg.Destination,
				AmountSat:   tipLeg.AmountSat,
				Percent:     tipLeg.Percent,
				State:       constants.LEG_STATE_PENDING,
			})
		}
		if err := tx.Create(&legs).Error; err != nil {
			return err
		}
		payment.TipLegs = legs

		return recordPaymentEvent(tx, params.PaymentHash, constants.PAYMENT_EVENT_CREATED, constants.PAYMENT_EVENT_STATUS_SUCCESS, map[string]interface{}{
			"amount_sat":      params.AmountSat,
			"base_amount_sat": params.BaseAmountSat,
			"tip_amount_sat":  params.TipAmountSat,
			"tip_legs":        len(params.TipLegs),
			"expires_at":      expiresAt,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info().
		Str("payment_hash", payment.PaymentHash).
		Uint64("amount_sat", payment.AmountSat).
		Uint64("tip_amount_sat", payment.TipAmountSat).
		Int("tip_legs", len(params.TipLegs)).
		Msg("Created pending payment")

	svc.projectToCache(ctx, &payment)

	svc.eventPublisher.Publish(&events.Event{
		Event:      constants.EVENT_PAYMENT_CREATED,
		Properties: &payment,
	})

	return &payment, nil
}

func validateCreatePendingParams(params *CreatePendingParams) error {
	if params.PaymentHash == "" {
		return NewValidationError("payment hash is required")
	}
	if params.MerchantAccount == "" {
		return NewValidationError("merchant account is required")
	}
	if params.AmountSat == 0 {
		return NewValidationError("payment amount must be positive")
	}
	if params.BaseAmountSat+params.TipAmountSat != params.AmountSat {
		return NewValidationError("base and tip amounts must sum to the total amount")
	}
	var tipSum uint64
	for _, tipLeg := range params.TipLegs {
		if tipLeg.Destination == "" {
			return NewValidationError("tip recipient destination is required")
		}
		tipSum += tipLeg.AmountSat
	}
	if tipSum != params.TipAmountSat {
		return NewValidationError("tip leg amounts must sum to the tip amount")
	}
	if params.TipAmountSat > 0 && len(params.TipLegs) == 0 {
		return NewValidationError("tip amount requires at least one tip recipient")
	}
	if len(params.Memo) > constants.PAYMENT_MEMO_MAX_LENGTH {
		return NewValidationError(fmt.Sprintf("memo exceeds maximum length of %d", constants.PAYMENT_MEMO_MAX_LENGTH))
	}
	if params.ExpiresAt.IsZero() || !params.ExpiresAt.After(time.Now()) {
		return NewValidationError("payment expiry must be in the future")
	}
	return nil
}

// Get reads through the cache. Cache failures and stale entries degrade
// transparently to cold storage, which always wins on disagreement.
func (svc *paymentStore) Get(ctx context.Context, paymentHash string) (*db.Payment, error) {
	key := cacheKey(paymentHash)

	snapshot, found, err := svc.cache.Get(ctx, key)
	if err != nil {
		logger.Logger.Warn().Err(err).Str("payment_hash", paymentHash).Msg("Cache read failed, falling back to cold store")
	} else if found {
		payment := &db.Payment{}
		if err := json.Unmarshal([]byte(snapshot), payment); err == nil &&
			payment.State == constants.PAYMENT_STATE_PENDING &&
			payment.ExpiresAt != nil && time.Now().Before(*payment.ExpiresAt) {
			return payment, nil
		}
		// undecodable, non-pending or expired entries are never trusted
		svc.EvictCache(ctx, paymentHash)
	}

	payment, err := svc.getCold(ctx, paymentHash)
	if err != nil {
		return nil, err
	}

	svc.projectToCache(ctx, payment)
	return payment, nil
}

func (svc *paymentStore) getCold(ctx context.Context, paymentHash string) (*db.Payment, error) {
	payment := db.Payment{}
	result := svc.db.WithContext(ctx).
		Preload("TipLegs", func(tx *gorm.DB) *gorm.DB { return tx.Order("leg_index ASC") }).
		Limit(1).
		Find(&payment, &db.Payment{PaymentHash: paymentHash})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, NewNotFoundError()
	}
	return &payment, nil
}

func (svc *paymentStore) GetByTrackingHandle(ctx context.Context, trackingHandle string) (*db.Payment, error) {
	payment := db.Payment{}
	result := svc.db.WithContext(ctx).
		Preload("TipLegs", func(tx *gorm.DB) *gorm.DB { return tx.Order("leg_index ASC") }).
		Limit(1).
		Find(&payment, &db.Payment{TrackingHandle: trackingHandle})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, NewNotFoundError()
	}
	return &payment, nil
}

func (svc *paymentStore) ListPayments(ctx context.Context, states []string, limit uint64, offset uint64) ([]db.Payment, uint64, error) {
	query := svc.db.WithContext(ctx).Model(&db.Payment{})
	if len(states) > 0 {
		query = query.Where("state IN ?", states)
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	payments := []db.Payment{}
	err := query.
		Preload("TipLegs", func(tx *gorm.DB) *gorm.DB { return tx.Order("leg_index ASC") }).
		Order("created_at DESC").
		Limit(int(limit)).
		Offset(int(offset)).
		Find(&payments).Error
	if err != nil {
		return nil, 0, err
	}
	return payments, uint64(totalCount), nil
}

func (svc *paymentStore) ListPendingUnexpired(ctx context.Context) ([]db.Payment, error) {
	payments := []db.Payment{}
	err := svc.db.WithContext(ctx).
		Preload("TipLegs", func(tx *gorm.DB) *gorm.DB { return tx.Order("leg_index ASC") }).
		Where("state = ? AND settled_at IS NULL AND expires_at > ?", constants.PAYMENT_STATE_PENDING, time.Now()).
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// ListSettledUnforwarded returns records settled no later than cutoff whose
// claim never happened, typically after a crash between the two. The
// settlement notification will not be redelivered, so these must be re-driven.
func (svc *paymentStore) ListSettledUnforwarded(ctx context.Context, cutoff time.Time) ([]db.Payment, error) {
	payments := []db.Payment{}
	err := svc.db.WithContext(ctx).
		Where("state = ? AND settled_at IS NOT NULL AND settled_at <= ?", constants.PAYMENT_STATE_PENDING, cutoff).
		Order("settled_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (svc *paymentStore) ListEvents(ctx context.Context, paymentHash string) ([]db.PaymentEvent, error) {
	paymentEvents := []db.PaymentEvent{}
	err := svc.db.WithContext(ctx).
		Where(&db.PaymentEvent{PaymentHash: paymentHash}).
		Order("created_at ASC, id ASC").
		Find(&paymentEvents).Error
	if err != nil {
		return nil, err
	}
	return paymentEvents, nil
}

// ClaimForProcessing is a single conditional update against cold storage,
// never the cache. Losing the claim is a no-op for the caller, not a fault.
func (svc *paymentStore) ClaimForProcessing(ctx context.Context, paymentHash string) (bool, error) {
	result := svc.db.WithContext(ctx).
		Model(&db.Payment{}).
		Where("payment_hash = ? AND state = ?", paymentHash, constants.PAYMENT_STATE_PENDING).
		Update("state", constants.PAYMENT_STATE_PROCESSING)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		logger.Logger.Debug().
			Str("payment_hash", paymentHash).
			Msg("Payment already claimed or not claimable")
		return false, nil
	}

	svc.EvictCache(ctx, paymentHash)

	logger.Logger.Info().
		Str("payment_hash", paymentHash).
		Msg("Claimed payment for processing")
	return true, nil
}

func (svc *paymentStore) MarkSettled(ctx context.Context, paymentHash string, amountSat uint64, settledAt time.Time) (*db.Payment, error) {
	payment := db.Payment{}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			// lock based on payment hash so duplicate settlement recordings
			// serialize (in sqlite transactions are serializable by default)
			paymentsWithHash := []db.Payment{}
			tx.Where(&db.Payment{PaymentHash: paymentHash}).Clauses(clause.Locking{Strength: "UPDATE"}).Find(&paymentsWithHash)
		}

		result := tx.Limit(1).Find(&payment, &db.Payment{PaymentHash: paymentHash})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return NewNotFoundError()
		}

		if payment.SettledAt != nil {
			logger.Logger.Debug().Str("payment_hash", paymentHash).Msg("payment already marked as settled")
			return nil
		}

		if amountSat != payment.AmountSat {
			logger.Logger.Warn().
				Str("payment_hash", paymentHash).
				Uint64("expected_amount_sat", payment.AmountSat).
				Uint64("settled_amount_sat", amountSat).
				Msg("Settled amount differs from invoiced amount")
		}

		err := tx.Model(&payment).Updates(map[string]interface{}{
			"SettledAt": &settledAt,
		}).Error
		if err != nil {
			return err
		}

		return recordPaymentEvent(tx, paymentHash, constants.PAYMENT_EVENT_PAID, constants.PAYMENT_EVENT_STATUS_SUCCESS, map[string]interface{}{
			"amount_sat": amountSat,
			"settled_at": settledAt,
		})
	})
	if err != nil {
		logger.Logger.Error().Err(err).
			Str("payment_hash", paymentHash).
			Msg("Failed to mark payment settled")
		return nil, err
	}

	logger.Logger.Info().
		Str("payment_hash", paymentHash).
		Uint64("amount_sat", amountSat).
		Msg("Marked payment as settled")

	svc.EvictCache(ctx, paymentHash)

	svc.eventPublisher.Publish(&events.Event{
		Event:      constants.EVENT_PAYMENT_SETTLED,
		Properties: &payment,
	})

	return &payment, nil
}

func (svc *paymentStore) RecordEvent(ctx context.Context, paymentHash string, eventType string, eventStatus string, payload map[string]interface{}) error {
	return recordPaymentEvent(svc.db.WithContext(ctx), paymentHash, eventType, eventStatus, payload)
}

func (svc *paymentStore) MarkLegSettled(ctx context.Context, paymentHash string, leg *db.TipLeg, attempt uint, transferId string) error {
	now := time.Now()
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(leg).Updates(map[string]interface{}{
			"State":         constants.LEG_STATE_SETTLED,
			"TransferId":    transferId,
			"FailureReason": "",
			"SettledAt":     &now,
		}).Error
		if err != nil {
			return err
		}

		return recordPaymentEvent(tx, paymentHash, constants.PAYMENT_EVENT_LEG_SUCCEEDED, constants.PAYMENT_EVENT_STATUS_SUCCESS, map[string]interface{}{
			"leg_index":   leg.LegIndex,
			"type":        leg.Type,
			"destination": leg.Destination,
			"amount_sat":  leg.AmountSat,
			"attempt":     attempt,
			"transfer_id": transferId,
		})
	})
	if err != nil {
		logger.Logger.Error().Err(err).
			Str("payment_hash", paymentHash).
			Uint("leg_index", leg.LegIndex).
			Msg("Failed to mark leg settled")
		return err
	}
	return nil
}

// MarkLegFailed records one failed attempt. The leg row only moves to
// FAILED when the attempt was final; earlier attempts keep it PENDING so
// the retry loop still owns it.
func (svc *paymentStore) MarkLegFailed(ctx context.Context, paymentHash string, leg *db.TipLeg, attempt uint, reason string, final bool) error {
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		legUpdates := map[string]interface{}{
			"FailureReason": reason,
		}
		if final {
			legUpdates["State"] = constants.LEG_STATE_FAILED
		}
		if err := tx.Model(leg).Updates(legUpdates).Error; err != nil {
			return err
		}

		return recordPaymentEvent(tx, paymentHash, constants.PAYMENT_EVENT_LEG_FAILED, constants.PAYMENT_EVENT_STATUS_ERROR, map[string]interface{}{
			"leg_index":   leg.LegIndex,
			"type":        leg.Type,
			"destination": leg.Destination,
			"amount_sat":  leg.AmountSat,
			"attempt":     attempt,
			"error":       reason,
			"final":       final,
		})
	})
	if err != nil {
		logger.Logger.Error().Err(err).
			Str("payment_hash", paymentHash).
			Uint("leg_index", leg.LegIndex).
			Msg("Failed to mark leg failed")
		return err
	}
	return nil
}

func (svc *paymentStore) MarkTerminal(ctx context.Context, paymentHash string, state string, failureReason string, payload map[string]interface{}) (*db.Payment, error) {
	if state != constants.PAYMENT_STATE_COMPLETED &&
		state != constants.PAYMENT_STATE_COMPLETED_WITH_EXCEPTIONS &&
		state != constants.PAYMENT_STATE_FAILED {
		return nil, fmt.Errorf("unsupported terminal state: %s", state)
	}

	payment := db.Payment{}
	alreadyTerminal := false
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// legs are preloaded so event consumers see the final leg states
		result := tx.
			Preload("TipLegs", func(tx *gorm.DB) *gorm.DB { return tx.Order("leg_index ASC") }).
			Limit(1).
			Find(&payment, &db.Payment{PaymentHash: paymentHash})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return NewNotFoundError()
		}

		if payment.State == state {
			logger.Logger.Debug().
				Str("payment_hash", paymentHash).
				Str("state", state).
				Msg("payment already in terminal state")
			alreadyTerminal = true
			return nil
		}
		if payment.State != constants.PAYMENT_STATE_PROCESSING {
			return NewInvalidTransitionError(paymentHash, payment.State, state)
		}

		now := time.Now()
		err := tx.Model(&payment).Updates(map[string]interface{}{
			"State":         state,
			"FailureReason": failureReason,
			"ProcessedAt":   &now,
		}).Error
		if err != nil {
			return err
		}

		eventStatus := constants.PAYMENT_EVENT_STATUS_SUCCESS
		if state == constants.PAYMENT_STATE_FAILED {
			eventStatus = constants.PAYMENT_EVENT_STATUS_ERROR
		}
		eventPayload := map[string]interface{}{
			"state": state,
		}
		if failureReason != "" {
			eventPayload["failure_reason"] = failureReason
		}
		for key, value := range payload {
			eventPayload[key] = value
		}
		return recordPaymentEvent(tx, paymentHash, constants.PAYMENT_EVENT_COMPLETED, eventStatus, eventPayload)
	})
	if err != nil {
		logger.Logger.Error().Err(err).
			Str("payment_hash", paymentHash).
			Str("state", state).
			Msg("Failed to mark payment terminal")
		return nil, err
	}
	if alreadyTerminal {
		return &payment, nil
	}

	logger.Logger.Info().
		Str("payment_hash", paymentHash).
		Str("state", state).
		Msg("Marked payment terminal")

	svc.EvictCache(ctx, paymentHash)

	event := constants.EVENT_PAYMENT_COMPLETED
	if state == constants.PAYMENT_STATE_FAILED {
		event = constants.EVENT_PAYMENT_FORWARDING_FAILED
	}
	svc.eventPublisher.Publish(&events.Event{
		Event:      event,
		Properties: &payment,
	})

	return &payment, nil
}

// MarkExpired is idempotent: the conditional update only fires for records
// still pending and past expiry, so a second sweep is a no-op.
func (svc *paymentStore) MarkExpired(ctx context.Context, paymentHash string) (bool, error) {
	expired := false
	payment := db.Payment{}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		// settled records are excluded: funds that landed before the sweep
		// must be forwarded, not expired
		result := tx.Model(&db.Payment{}).
			Where("payment_hash = ? AND state = ? AND expires_at <= ? AND settled_at IS NULL", paymentHash, constants.PAYMENT_STATE_PENDING, now).
			Updates(map[string]interface{}{
				"State":       constants.PAYMENT_STATE_EXPIRED,
				"ProcessedAt": &now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		expired = true

		tx.Limit(1).Find(&payment, &db.Payment{PaymentHash: paymentHash})

		return recordPaymentEvent(tx, paymentHash, constants.PAYMENT_EVENT_EXPIRED, constants.PAYMENT_EVENT_STATUS_SUCCESS, map[string]interface{}{
			"expired_at": now,
		})
	})
	if err != nil {
		logger.Logger.Error().Err(err).
			Str("payment_hash", paymentHash).
			Msg("Failed to mark payment expired")
		return false, err
	}
	if !expired {
		return false, nil
	}

	logger.Logger.Info().
		Str("payment_hash", paymentHash).
		Msg("Marked payment as expired")

	svc.EvictCache(ctx, paymentHash)

	svc.eventPublisher.Publish(&events.Event{
		Event:      constants.EVENT_PAYMENT_EXPIRED,
		Properties: &payment,
	})

	return true, nil
}

// MarkCancelled accepts cancellation only while the payment is pending.
func (svc *paymentStore) MarkCancelled(ctx context.Context, paymentHash string) (bool, error) {
	cancelled := false
	payment := db.Payment{}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&db.Payment{}).
			Where("payment_hash = ? AND state = ?", paymentHash, constants.PAYMENT_STATE_PENDING).
			Updates(map[string]interface{}{
				"State":       constants.PAYMENT_STATE_CANCELLED,
				"ProcessedAt": &now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		cancelled = true

		tx.Limit(1).Find(&payment, &db.Payment{PaymentHash: paymentHash})

		return recordPaymentEvent(tx, paymentHash, constants.PAYMENT_EVENT_CANCELLED, constants.PAYMENT_EVENT_STATUS_SUCCESS, map[string]interface{}{
			"cancelled_at": now,
		})
	})
	if err != nil {
		logger.Logger.Error().Err(err).
			Str("payment_hash", paymentHash).
			Msg("Failed to mark payment cancelled")
		return false, err
	}
	if !cancelled {
		return false, nil
	}

	logger.Logger.Info().
		Str("payment_hash", paymentHash).
		Msg("Marked payment as cancelled")

	svc.EvictCache(ctx, paymentHash)

	svc.eventPublisher.Publish(&events.Event{
		Event:      constants.EVENT_PAYMENT_CANCELLED,
		Properties: &payment,
	})

	return true, nil
}

func (svc *paymentStore) ListExpiredPending(ctx context.Context, now time.Time) ([]db.Payment, error) {
	payments := []db.Payment{}
	err := svc.db.WithContext(ctx).
		Where("state = ? AND expires_at <= ? AND settled_at IS NULL", constants.PAYMENT_STATE_PENDING, now).
		Order("expires_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (svc *paymentStore) ListExceptionsBefore(ctx context.Context, cutoff time.Time) ([]db.Payment, error) {
	payments := []db.Payment{}
	err := svc.db.WithContext(ctx).
		Preload("TipLegs", func(tx *gorm.DB) *gorm.DB { return tx.Order("leg_index ASC") }).
		Where("state = ? AND processed_at <= ?", constants.PAYMENT_STATE_COMPLETED_WITH_EXCEPTIONS, cutoff).
		Order("processed_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (svc *paymentStore) ListStalledProcessing(ctx context.Context, cutoff time.Time) ([]db.Payment, error) {
	payments := []db.Payment{}
	err := svc.db.WithContext(ctx).
		Where("state = ? AND updated_at <= ?", constants.PAYMENT_STATE_PROCESSING, cutoff).
		Order("updated_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (svc *paymentStore) EvictCache(ctx context.Context, paymentHash string) {
	if err := svc.cache.Delete(ctx, cacheKey(paymentHash)); err != nil {
		logger.Logger.Warn().Err(err).
			Str("payment_hash", paymentHash).
			Msg("Failed to evict payment from cache")
	}
}

func (svc *paymentStore) Shutdown() {
	if err := svc.cache.Shutdown(); err != nil {
		logger.Logger.Warn().Err(err).Msg("Failed to shut down cache")
	}
}

// projectToCache writes a best-effort snapshot with TTL equal to the
// record's remaining validity window. Only pending records are projected;
// processing and terminal records always read from cold storage.
func (svc *paymentStore) projectToCache(ctx context.Context, payment *db.Payment) {
	if payment.State != constants.PAYMENT_STATE_PENDING || payment.ExpiresAt == nil {
		return
	}
	ttl := time.Until(*payment.ExpiresAt)
	if ttl <= 0 {
		return
	}

	snapshot, err := json.Marshal(payment)
	if err != nil {
		logger.Logger.Warn().Err(err).
			Str("payment_hash", payment.PaymentHash).
			Msg("Failed to encode payment for cache")
		return
	}
	if err := svc.cache.Set(ctx, cacheKey(payment.PaymentHash), string(snapshot), ttl); err != nil {
		logger.Logger.Warn().Err(err).
			Str("payment_hash", payment.PaymentHash).
			Msg("Failed to project payment into cache")
	}
}

func recordPaymentEvent(tx *gorm.DB, paymentHash string, eventType string, eventStatus string, payload map[string]interface{}) error {
	var payloadBytes []byte
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}
	return tx.Create(&db.PaymentEvent{
		PaymentHash: paymentHash,
		Type:        eventType,
		Status:      eventStatus,
		Payload:     datatypes.JSON(payloadBytes),
	}).Error
}

func cacheKey(paymentHash string) string {
	return "payment:" + paymentHash
}
