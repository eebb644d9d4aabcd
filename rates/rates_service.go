package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opentip/funnelhub/config"
	"github.com/opentip/funnelhub/logger"
	"github.com/opentip/funnelhub/pkg/version"
)

type ratesService struct {
	cfg config.Config
}

func NewRatesService(cfg config.Config) *ratesService {
	ratesSvc := &ratesService{
		cfg: cfg,
	}
	return ratesSvc
}

func (svc *ratesService) GetRate(ctx context.Context, currency string) (*Rate, error) {
	currency = strings.ToUpper(currency)
	if currency == "" {
		return nil, errors.New("no currency provided")
	}

	client := &http.Client{Timeout: 10 * time.Second}

	url := fmt.Sprintf("%s/rates.json", svc.cfg.GetRatesApiUrl())

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		logger.Logger.Error().
			Str("currency", currency).
			Err(err).
			Msg("Error creating request to rates endpoint")
		return nil, err
	}
	setDefaultRequestHeaders(req)

	res, err := client.Do(req)
	if err != nil {
		logger.Logger.Error().
			Str("currency", currency).
			Err(err).
			Msg("Failed to fetch rates from API")
		return nil, err
	}

	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		logger.Logger.Error().Err(err).
			Str("url", url).
			Msg("Failed to read response body")
		return nil, errors.New("failed to read response body")
	}

	if res.StatusCode >= 300 {
		logger.Logger.Error().
			Str("currency", currency).
			Str("body", string(body)).
			Int("status_code", res.StatusCode).
			Msg("Rates endpoint returned non-success code")
		return nil, fmt.Errorf("rates endpoint returned non-success code: %s", string(body))
	}

	var allRates map[string]Rate
	err = json.Unmarshal(body, &allRates)
	if err != nil {
		logger.Logger.Error().
			Str("currency", currency).
			Str("body", string(body)).
			Err(err).
			Msg("Failed to decode rates API response")
		return nil, err
	}

	rate, ok := allRates[currency]
	if !ok {
		return nil, fmt.Errorf("no rate found for currency %s", currency)
	}

	return &rate, nil
}

func (svc *ratesService) GetCurrencies(ctx context.Context) (map[string]Currency, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	url := fmt.Sprintf("%s/currencies.json", svc.cfg.GetRatesApiUrl())

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Error creating request to currencies endpoint")
		return nil, err
	}
	setDefaultRequestHeaders(req)

	res, err := client.Do(req)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to fetch currencies from API")
		return nil, fmt.Errorf("failed to fetch currencies: %w", err)
	}

	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		logger.Logger.Error().Err(err).
			Str("url", url).
			Msg("Failed to read response body")
		return nil, errors.New("failed to read response body")
	}

	if res.StatusCode >= 300 {
		logger.Logger.Error().
			Str("body", string(body)).
			Int("status_code", res.StatusCode).
			Msg("Currencies endpoint returned non-success code")
		return nil, fmt.Errorf("currencies endpoint returned non-success code: %s", string(body))
	}

	var currencies map[string]Currency
	err = json.Unmarshal(body, &currencies)
	if err != nil {
		logger.Logger.Error().
			Str("body", string(body)).
			Err(err).
			Msg("Failed to decode currencies API response")
		return nil, err
	}

	return currencies, nil
}

func setDefaultRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Funnelhub/"+version.Tag)
	req.Header.Set("Content-Type", "application/json")
}
