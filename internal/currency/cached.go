package currency

import (
	"context"
	"time"

	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
)

// CachedProvider memoises successful lookups of another provider for ttl.
// Failures are never cached.
type CachedProvider struct {
	next  money.RateProvider
	cache cache.Cache
	base  types.Currency
	ttl   time.Duration
}

func NewCachedProvider(next money.RateProvider, c cache.Cache, base types.Currency, ttl time.Duration) *CachedProvider {
	return &CachedProvider{next: next, cache: c, base: base, ttl: ttl}
}

func (p *CachedProvider) Rate(ctx context.Context, from types.Currency) (decimal.Decimal, error) {
	key := cache.GenerateKey(cache.PrefixExchangeRate, from, p.base)
	if v, ok := p.cache.Get(ctx, key); ok {
		if r, ok := v.(decimal.Decimal); ok {
			return r, nil
		}
	}

	r, err := p.next.Rate(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	if r.IsPositive() {
		p.cache.Set(ctx, key, r, p.ttl)
	}
	return r, nil
}
