package tests

import (
	"time"

	"github.com/opentip/funnelhub/ledger"
)

const MockPaymentHash = "4a3cf5a6d7f39dd8d1e1a916c5efb3ba1eb41a1b18f9e547b2a9c6f2304dfa81"
const MockInvoiceRef = "inv_0001"
const MockTrackingHandle = "trk_9f2a7c41"
const MockNotificationId = "ntf_000000001"
const MockMerchantAccount = "acct_merchant"
const MockFunnelAccount = "acct_funnel"

var MockTipDestinations = []string{"acct_staff_anna", "acct_staff_omar", "acct_staff_liu"}

var MockSettlementEvent = ledger.SettlementEvent{
	NotificationId: MockNotificationId,
	PaymentHash:    MockPaymentHash,
	AmountSat:      1100,
	SettledAt:      time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC),
}
