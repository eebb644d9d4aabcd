package rates

import (
	"context"
)

type RatesService interface {
	GetRate(ctx context.Context, currency string) (*Rate, error)
	GetCurrencies(ctx context.Context) (map[string]Currency, error)
}

type Currency struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type Rate struct {
	Code      string  `json:"code"`
	Symbol    string  `json:"symbol"`
	Rate      string  `json:"rate"`
	RateFloat float64 `json:"rate_float"`
}
