package currency

import (
	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/httpclient"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/types"
)

// NewRateProvider builds the provider selected by currency.provider. HTTP
// lookups are always wrapped in the rate cache.
func NewRateProvider(cfg *config.Configuration, log *logger.Logger) (money.RateProvider, error) {
	base := cfg.Billing.BaseCurrency

	switch cfg.Currency.Provider {
	case types.RateProviderHTTP:
		client := httpclient.NewClient(httpclient.ClientConfig{Timeout: cfg.Currency.Timeout})
		httpProvider := NewHTTPProvider(base, cfg.Currency.Endpoint, cfg.Currency.APIKey, cfg.Currency.RequestsPerSecond, client, log)
		return NewCachedProvider(httpProvider, cache.NewInMemoryCache(cfg.Currency.CacheTTL), base, cfg.Currency.CacheTTL), nil
	default:
		return NewStaticProvider(base, cfg.Currency.Rates)
	}
}

// NewConverter wires the configured provider into a money.Converter
func NewConverter(cfg *config.Configuration, provider money.RateProvider) *money.Converter {
	return money.NewConverter(cfg.Billing.BaseCurrency, provider)
}
