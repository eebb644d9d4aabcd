package service

import (
	"gorm.io/gorm"

	"github.com/opentip/funnelhub/config"
	"github.com/opentip/funnelhub/events"
	"github.com/opentip/funnelhub/forwarding"
	"github.com/opentip/funnelhub/ledger"
	"github.com/opentip/funnelhub/rates"
	"github.com/opentip/funnelhub/store"
)

type Service interface {
	Shutdown()

	// TODO: remove getters (currently used by http and api services)
	GetEventPublisher() events.EventPublisher
	GetLedgerClient() ledger.Client
	GetPaymentStore() store.PaymentStore
	GetForwardingService() forwarding.ForwardingService
	GetRatesService() rates.RatesService
	GetDB() *gorm.DB
	GetConfig() config.Config
}
