package tests

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/opentip/funnelhub/config"
	"github.com/opentip/funnelhub/db"
	"github.com/opentip/funnelhub/db/migrations"
	"github.com/opentip/funnelhub/events"
	"github.com/opentip/funnelhub/logger"
	"github.com/opentip/funnelhub/tests/mocks"
)

type TestService struct {
	Cfg            config.Config
	DB             *gorm.DB
	EventPublisher events.EventPublisher
	LedgerClient   *mocks.MockLedgerClient
}

// CreateTestService spins up an isolated sqlite-backed service skeleton.
// Tests construct the component under test from its pieces so each package
// exercises its own constructor.
func CreateTestService(t *testing.T) (*TestService, error) {
	logger.Init("4")

	workdir := t.TempDir()
	gormDB, err := db.NewDB(filepath.Join(workdir, "test.db"), false)
	if err != nil {
		return nil, err
	}
	err = migrations.Migrate(gormDB)
	if err != nil {
		return nil, err
	}

	appConfig := &config.AppConfig{
		Workdir:         workdir,
		ApiPassword:     "test1234",
		MerchantAccount: MockMerchantAccount,

		InvoiceExpiry:        15 * time.Minute,
		TransferTimeout:      10 * time.Second,
		TransferRetries:      3,
		SweepInterval:        time.Minute,
		ExceptionGracePeriod: 30 * time.Minute,
		StallThreshold:       15 * time.Minute,
		ForwardingWorkers:    2,
	}

	cfg, err := config.NewConfig(appConfig, gormDB)
	if err != nil {
		return nil, err
	}

	return &TestService{
		Cfg:            cfg,
		DB:             gormDB,
		EventPublisher: events.NewEventPublisher(),
		LedgerClient:   mocks.NewMockLedgerClient(t),
	}, nil
}

func (svc *TestService) Remove() {
	err := db.Stop(svc.DB)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to close test database")
	}
}
