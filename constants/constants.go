package constants

import "time"

// shared constants used by multiple packages

const (
	PAYMENT_STATE_PENDING                   = "PENDING"
	PAYMENT_STATE_PROCESSING                = "PROCESSING"
	PAYMENT_STATE_COMPLETED                 = "COMPLETED"
	PAYMENT_STATE_COMPLETED_WITH_EXCEPTIONS = "COMPLETED_WITH_EXCEPTIONS"
	PAYMENT_STATE_FAILED                    = "FAILED"
	PAYMENT_STATE_EXPIRED                   = "EXPIRED"
	PAYMENT_STATE_CANCELLED                 = "CANCELLED"

	LEG_STATE_PENDING = "PENDING"
	LEG_STATE_SETTLED = "SETTLED"
	LEG_STATE_FAILED  = "FAILED"

	LEG_TYPE_MERCHANT = "merchant"
	LEG_TYPE_TIP      = "tip"
)

func GetTerminalPaymentStates() []string {
	return []string{
		PAYMENT_STATE_COMPLETED,
		PAYMENT_STATE_COMPLETED_WITH_EXCEPTIONS,
		PAYMENT_STATE_FAILED,
		PAYMENT_STATE_EXPIRED,
		PAYMENT_STATE_CANCELLED,
	}
}

// payment_events.type values; the event sequence for a payment hash
// reconstructs the record's full status history
const (
	PAYMENT_EVENT_CREATED            = "created"
	PAYMENT_EVENT_PAID               = "paid"
	PAYMENT_EVENT_FORWARDING_STARTED = "forwarding_started"
	PAYMENT_EVENT_LEG_SUCCEEDED      = "leg_succeeded"
	PAYMENT_EVENT_LEG_FAILED         = "leg_failed"
	PAYMENT_EVENT_COMPLETED          = "completed"
	PAYMENT_EVENT_EXPIRED            = "expired"
	PAYMENT_EVENT_CANCELLED          = "cancelled"

	PAYMENT_EVENT_STATUS_SUCCESS = "success"
	PAYMENT_EVENT_STATUS_ERROR   = "error"
)

// errors returned by the api and the payment store
const (
	ERROR_INTERNAL             = "INTERNAL"
	ERROR_BAD_REQUEST          = "BAD_REQUEST"
	ERROR_NOT_FOUND            = "NOT_FOUND"
	ERROR_ALREADY_CLAIMED      = "ALREADY_CLAIMED"
	ERROR_UPSTREAM_UNAVAILABLE = "UPSTREAM_UNAVAILABLE"
	ERROR_EXPIRED              = "EXPIRED"
	ERROR_UNAUTHORIZED         = "UNAUTHORIZED"
)

// memos are forwarded verbatim into provider invoices, which commonly cap
// description fields at 640 bytes; stay comfortably below that
const PAYMENT_MEMO_MAX_LENGTH = 512

// encoded provider metadata stored on a payment record
const PAYMENT_METADATA_MAX_LENGTH = 4096

// tip splits are expressed in whole percentage points
const TIP_SPLIT_PERCENT_TOTAL = 100

const SATS_PER_COIN = 100_000_000

const (
	DEFAULT_INVOICE_EXPIRY         = 15 * time.Minute
	DEFAULT_TRANSFER_TIMEOUT       = 10 * time.Second
	DEFAULT_TRANSFER_RETRIES       = 3
	DEFAULT_SWEEP_INTERVAL         = time.Minute
	DEFAULT_EXCEPTION_GRACE_PERIOD = 30 * time.Minute
	DEFAULT_STALL_THRESHOLD        = 15 * time.Minute
)

const APP_IDENTIFIER = "funnelhub"

// internal event names published on the event bus
const (
	EVENT_STARTED                   = "funnelhub_started"
	EVENT_PAYMENT_CREATED           = "funnelhub_payment_created"
	EVENT_PAYMENT_SETTLED           = "funnelhub_payment_settled"
	EVENT_PAYMENT_COMPLETED         = "funnelhub_payment_completed"
	EVENT_PAYMENT_FORWARDING_FAILED = "funnelhub_payment_forwarding_failed"
	EVENT_PAYMENT_EXPIRED           = "funnelhub_payment_expired"
	EVENT_PAYMENT_CANCELLED         = "funnelhub_payment_cancelled"
	EVENT_PAYMENT_STALLED           = "funnelhub_payment_stalled"
	EVENT_PAYMENT_EXCEPTION_REPORT  = "funnelhub_payment_exception_report"
	EVENT_STOPPED                   = "funnelhub_stopped"
)
