package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opentip/funnelhub/db"
	"github.com/opentip/funnelhub/logger"
)

type config struct {
	Env        *AppConfig
	db         *gorm.DB
	cache      map[string]string
	cacheMutex sync.Mutex
	jwtSecret  string
}

func NewConfig(env *AppConfig, gormDB *gorm.DB) (*config, error) {
	cfg := &config{
		db:    gormDB,
		cache: map[string]string{},
	}
	err := cfg.init(env)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *config) init(env *AppConfig) error {
	cfg.Env = env

	// env values seed the settings table but never clobber operator edits
	if cfg.Env.MerchantAccount != "" {
		err := cfg.SetIgnore(MerchantAccountKey, cfg.Env.MerchantAccount)
		if err != nil {
			return err
		}
	}
	if cfg.Env.RatesApiUrl != "" {
		err := cfg.SetIgnore(RatesApiUrlKey, cfg.Env.RatesApiUrl)
		if err != nil {
			return err
		}
	}

	jwtSecret, err := cfg.Get(JWTSecretKey)
	if err != nil {
		return err
	}
	if jwtSecret == "" {
		jwtSecret, err = randomHex(32)
		if err != nil {
			logger.Logger.Error().Err(err).Msg("failed to generate JWT secret")
			return err
		}
		logger.Logger.Info().Msg("Generated new JWT secret")
		err = cfg.SetUpdate(JWTSecretKey, jwtSecret)
		if err != nil {
			logger.Logger.Error().Err(err).Msg("failed to save JWT secret")
			return err
		}
	}
	cfg.jwtSecret = jwtSecret

	return nil
}

func (cfg *config) GetJWTSecret() string {
	return cfg.jwtSecret
}

// CheckApiPassword returns false when no password is configured, which
// disables token minting entirely.
func (cfg *config) CheckApiPassword(password string) bool {
	return cfg.Env.ApiPassword != "" && password == cfg.Env.ApiPassword
}

func (cfg *config) Get(key string) (string, error) {
	cfg.cacheMutex.Lock()
	defer cfg.cacheMutex.Unlock()

	if cachedValue, ok := cfg.cache[key]; ok {
		logger.Logger.Debug().Str("key", key).Msg("hit config cache")
		return cachedValue, nil
	}
	logger.Logger.Debug().Str("key", key).Msg("missed config cache")

	value, err := cfg.get(key, cfg.db)
	if err != nil {
		return "", err
	}

	cfg.cache[key] = value
	return value, nil
}

func (cfg *config) get(key string, gormDB *gorm.DB) (string, error) {
	var setting db.Setting
	err := gormDB.Where(&db.Setting{Key: key}).Limit(1).Find(&setting).Error
	if err != nil {
		return "", fmt.Errorf("failed to get configuration value: %w", err)
	}
	return setting.Value, nil
}

func (cfg *config) set(key string, value string, clauses clause.OnConflict, gormDB *gorm.DB) error {
	setting := db.Setting{Key: key, Value: value}
	result := gormDB.Clauses(clauses).Create(&setting)
	if result.Error != nil {
		return fmt.Errorf("failed to save key to config: %v", result.Error)
	}

	logger.Logger.Debug().Str("key", key).Msg("clearing config cache")
	cfg.cacheMutex.Lock()
	defer cfg.cacheMutex.Unlock()
	delete(cfg.cache, key)

	return nil
}

func (cfg *config) SetIgnore(key string, value string) error {
	clauses := clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}
	err := cfg.set(key, value, clauses, cfg.db)
	if err != nil {
		logger.Logger.Error().Err(err).Str("key", key).Msg("Failed to set config key with ignore")
		return err
	}
	return nil
}

func (cfg *config) SetUpdate(key string, value string) error {
	clauses := clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}
	err := cfg.set(key, value, clauses, cfg.db)
	if err != nil {
		logger.Logger.Error().Err(err).Str("key", key).Msg("Failed to set config key with update")
		return err
	}
	return nil
}

func (cfg *config) GetEnv() *AppConfig {
	return cfg.Env
}

const defaultCurrency = "USD"

func (cfg *config) GetCurrency() string {
	currency, err := cfg.Get(CurrencyKey)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to fetch currency")
		return defaultCurrency
	}
	if currency == "" {
		return defaultCurrency
	}
	return currency
}

func (cfg *config) SetCurrency(value string) error {
	if value == "" {
		return errors.New("currency value cannot be empty")
	}
	err := cfg.SetUpdate(CurrencyKey, value)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to update currency")
		return err
	}
	return nil
}

func (cfg *config) GetMerchantAccount() string {
	account, err := cfg.Get(MerchantAccountKey)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to fetch merchant account")
	}
	if account != "" {
		return account
	}
	return cfg.Env.MerchantAccount
}

func (cfg *config) SetMerchantAccount(value string) error {
	if value == "" {
		return errors.New("merchant account cannot be empty")
	}
	err := cfg.SetUpdate(MerchantAccountKey, value)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to update merchant account")
		return err
	}
	return nil
}

func (cfg *config) GetDefaultTipSplit() []TipShare {
	value, err := cfg.Get(DefaultTipSplitKey)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to fetch default tip split")
		return nil
	}
	if value == "" {
		return nil
	}
	var shares []TipShare
	if err := json.Unmarshal([]byte(value), &shares); err != nil {
		logger.Logger.Error().Err(err).Str("value", value).Msg("Failed to decode default tip split")
		return nil
	}
	return shares
}

func (cfg *config) SetDefaultTipSplit(shares []TipShare) error {
	encoded, err := json.Marshal(shares)
	if err != nil {
		return err
	}
	err = cfg.SetUpdate(DefaultTipSplitKey, string(encoded))
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to update default tip split")
		return err
	}
	return nil
}

func (cfg *config) GetRatesApiUrl() string {
	url, err := cfg.Get(RatesApiUrlKey)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to fetch RatesApiUrl")
	}
	if url != "" {
		return url
	}
	return cfg.Env.RatesApiUrl
}

func (cfg *config) SetRatesApiUrl(value string) error {
	// RatesApiUrl can be empty to disable display quotes
	err := cfg.SetUpdate(RatesApiUrlKey, value)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to update RatesApiUrl")
		return err
	}
	return nil
}

func (cfg *config) GetDefaultWorkDir() string {
	if cfg.Env.Workdir != "" {
		return cfg.Env.Workdir
	}
	return filepath.Join(xdg.DataHome, "funnelhub")
}

func randomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
