package service

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "net/http/pprof"

	"github.com/adrg/xdg"
	"gorm.io/gorm"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/opentip/funnelhub/config"
	"github.com/opentip/funnelhub/constants"
	"github.com/opentip/funnelhub/db"
	"github.com/opentip/funnelhub/db/migrations"
	"github.com/opentip/funnelhub/events"
	"github.com/opentip/funnelhub/forwarding"
	"github.com/opentip/funnelhub/ledger"
	"github.com/opentip/funnelhub/ledger/hubclient"
	"github.com/opentip/funnelhub/listener"
	"github.com/opentip/funnelhub/logger"
	"github.com/opentip/funnelhub/pkg/version"
	"github.com/opentip/funnelhub/rates"
	"github.com/opentip/funnelhub/store"
	"github.com/opentip/funnelhub/sweeper"
)

type service struct {
	cfg config.Config

	db                *gorm.DB
	ledgerClient      ledger.Client
	paymentStore      store.PaymentStore
	forwardingService forwarding.ForwardingService
	listenerService   listener.ListenerService
	sweeperService    sweeper.SweeperService
	ratesSvc          rates.RatesService
	eventPublisher    events.EventPublisher
	ctx               context.Context
}

func NewService(ctx context.Context) (*service, error) {
	// Load config from environment variables / .env file
	godotenv.Load(".env")
	appConfig := &config.AppConfig{}
	err := envconfig.Process("", appConfig)
	if err != nil {
		return nil, err
	}

	logger.Init(appConfig.LogLevel)
	logger.Logger.Info().Msg("Funnelhub " + version.Tag)

	if appConfig.Workdir == "" {
		appConfig.Workdir = filepath.Join(xdg.DataHome, "/funnelhub")
		logger.Logger.Info().Interface("workdir", appConfig.Workdir).Msg("No workdir specified, using default")
	}
	// make sure workdir exists
	os.MkdirAll(appConfig.Workdir, os.ModePerm)

	if appConfig.LogToFile {
		err = logger.AddFileLogger(appConfig.Workdir)
		if err != nil {
			return nil, err
		}
	}

	// If DATABASE_URI is a URI or a path, leave it unchanged.
	// If it only contains a filename, prepend the workdir.
	if !strings.HasPrefix(appConfig.DatabaseUri, "file:") {
		databasePath, _ := filepath.Split(appConfig.DatabaseUri)
		if databasePath == "" {
			appConfig.DatabaseUri = filepath.Join(appConfig.Workdir, appConfig.DatabaseUri)
		}
	}

	gormDB, err := db.NewDB(appConfig.DatabaseUri, appConfig.LogDBQueries)
	if err != nil {
		return nil, err
	}
	err = migrations.Migrate(gormDB)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to migrate database")
		return nil, err
	}

	cfg, err := config.NewConfig(appConfig, gormDB)
	if err != nil {
		return nil, err
	}

	if appConfig.HubApiUrl == "" {
		return nil, errors.New("HUB_API_URL is not set")
	}

	eventPublisher := events.NewEventPublisher()

	var cache store.Cache = store.NewNoopCache()
	if appConfig.RedisUri != "" {
		redisCache, err := store.NewRedisCache(appConfig.RedisUri)
		if err != nil {
			// the hot cache is advisory; run degraded rather than refusing to start
			logger.Logger.Error().Err(err).Msg("Failed to connect to redis, running without hot cache")
		} else {
			cache = redisCache
		}
	}

	ledgerClient := hubclient.NewHubClient(appConfig.HubApiUrl, appConfig.HubApiKey)
	paymentStore := store.NewPaymentStore(gormDB, cache, eventPublisher)
	ratesSvc := rates.NewRatesService(cfg)

	ledgerInfo, err := ledgerClient.GetInfo(ctx)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to get funnel account info from hub")
		return nil, err
	}
	logger.Logger.Info().
		Str("funnel_account", ledgerInfo.FunnelAccount).
		Str("network", ledgerInfo.Network).
		Msg("Connected to hub")

	forwardingService := forwarding.NewForwardingService(paymentStore, ledgerClient, ledgerInfo.FunnelAccount, cfg)
	listenerService := listener.NewListenerService(ctx, paymentStore, ledgerClient, forwardingService, cfg)
	sweeperService := sweeper.NewSweeperService(ctx, paymentStore, forwardingService, eventPublisher, cfg)

	svc := &service{
		cfg:               cfg,
		ctx:               ctx,
		eventPublisher:    eventPublisher,
		db:                gormDB,
		ledgerClient:      ledgerClient,
		paymentStore:      paymentStore,
		forwardingService: forwardingService,
		listenerService:   listenerService,
		sweeperService:    sweeperService,
		ratesSvc:          ratesSvc,
	}

	// newly created payments open settlement subscriptions, terminal ones
	// tear them down
	eventPublisher.RegisterSubscriber(listenerService)

	eventPublisher.RegisterSubscriber(&forwardConsumer{
		db: gormDB,
	})

	eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_STARTED,
		Properties: map[string]interface{}{
			"version": version.Tag,
		},
	})

	if appConfig.GoProfilerAddr != "" {
		startProfiler(ctx, appConfig.GoProfilerAddr)
	}

	return svc, nil
}

func (svc *service) Shutdown() {
	// stop watching upstream first so no new forwarding work arrives
	svc.listenerService.Shutdown()
	svc.sweeperService.Shutdown()

	svc.eventPublisher.PublishSync(&events.Event{
		Event: constants.EVENT_STOPPED,
	})

	svc.paymentStore.Shutdown()
	err := svc.ledgerClient.Shutdown()
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to shut down hub client")
	}
	err = db.Stop(svc.db)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to close database")
	}
}

func (svc *service) GetDB() *gorm.DB {
	return svc.db
}

func (svc *service) GetConfig() config.Config {
	return svc.cfg
}

func (svc *service) GetEventPublisher() events.EventPublisher {
	return svc.eventPublisher
}

func (svc *service) GetLedgerClient() ledger.Client {
	return svc.ledgerClient
}

func (svc *service) GetPaymentStore() store.PaymentStore {
	return svc.paymentStore
}

func (svc *service) GetForwardingService() forwarding.ForwardingService {
	return svc.forwardingService
}

func (svc *service) GetRatesService() rates.RatesService {
	return svc.ratesSvc
}

// startProfiler exposes pprof on a dedicated listener until ctx is done.
func startProfiler(ctx context.Context, addr string) {
	server := &http.Server{Addr: addr}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	go func() {
		logger.Logger.Info().Str("addr", addr).Msg("Starting pprof server")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error().Err(err).Msg("pprof server terminated")
		}
	}()
}
