package config

import "time"

const (
	CurrencyKey        = "Currency"
	MerchantAccountKey = "MerchantAccount"
	DefaultTipSplitKey = "DefaultTipSplit"
	RatesApiUrlKey     = "RatesApiUrl"
	JWTSecretKey       = "JWTSecret"
)

type AppConfig struct {
	Workdir     string `envconfig:"WORK_DIR"`
	Port        string `envconfig:"PORT" default:"8470"`
	DatabaseUri string `envconfig:"DATABASE_URI" default:"funnelhub.db"`
	RedisUri    string `envconfig:"REDIS_URI"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"4"`
	LogToFile   bool   `envconfig:"LOG_TO_FILE" default:"true"`
	BaseUrl     string `envconfig:"BASE_URL"`

	HubApiUrl       string `envconfig:"HUB_API_URL"`
	HubApiKey       string `envconfig:"HUB_API_KEY"`
	MerchantAccount string `envconfig:"MERCHANT_ACCOUNT"`
	RatesApiUrl     string `envconfig:"RATES_API_URL"`
	ApiPassword     string `envconfig:"API_PASSWORD"`

	InvoiceExpiry        time.Duration `envconfig:"INVOICE_EXPIRY" default:"15m"`
	TransferTimeout      time.Duration `envconfig:"TRANSFER_TIMEOUT" default:"10s"`
	TransferRetries      uint          `envconfig:"TRANSFER_RETRIES" default:"3"`
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	ExceptionGracePeriod time.Duration `envconfig:"EXCEPTION_GRACE_PERIOD" default:"30m"`
	StallThreshold       time.Duration `envconfig:"STALL_THRESHOLD" default:"15m"`
	ForwardingWorkers    uint          `envconfig:"FORWARDING_WORKERS" default:"20"`

	GoProfilerAddr string `envconfig:"GO_PROFILER_ADDR"`
	LogDBQueries   bool   `envconfig:"LOG_DB_QUERIES" default:"false"`
}

type Config interface {
	Get(key string) (string, error)
	SetIgnore(key string, value string) error
	SetUpdate(key string, value string) error
	GetJWTSecret() string
	GetEnv() *AppConfig
	GetDefaultWorkDir() string
	CheckApiPassword(password string) bool

	GetCurrency() string
	SetCurrency(value string) error
	GetMerchantAccount() string
	SetMerchantAccount(value string) error
	GetDefaultTipSplit() []TipShare
	SetDefaultTipSplit(shares []TipShare) error
	GetRatesApiUrl() string
	SetRatesApiUrl(value string) error
}

// TipShare is one entry of the default split applied when a payment request
// does not carry its own recipient list.
type TipShare struct {
	Destination string `json:"destination"`
	Percent     uint   `json:"percent"`
}
