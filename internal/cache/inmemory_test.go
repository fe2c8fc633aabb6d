package cache

import (
	"context"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(time.Minute)

	key := GenerateKey(PrefixExchangeRate, "EUR", "USD")
	assert.Equal(t, "exchange_rate:v1::EUR:USD", key)

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, "1.08", 0)
	v, ok := c.Get(ctx, key)
	assert.True(t, ok)
	assert.Equal(t, "1.08", v)

	c.Set(ctx, GenerateKey(PrefixExchangeRate, "GBP", "USD"), "1.27", 0)
	c.Set(ctx, "other", 1, 0)
	c.DeleteByPrefix(ctx, PrefixExchangeRate)

	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
	_, ok = c.Get(ctx, "other")
	assert.True(t, ok)
}

func TestInMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(time.Minute)

	c.Set(ctx, "short", 1, 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)
}

func TestLookupTracedUnderSentryHub(t *testing.T) {
	hub := sentry.NewHub(nil, sentry.NewScope())
	ctx := sentry.SetHubOnContext(context.Background(), hub)
	c := NewInMemoryCache(time.Minute)

	c.Set(ctx, "side_effect:v1::pay_1:receipt", true, 0)
	v, ok := c.Get(ctx, "side_effect:v1::pay_1:receipt")
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = c.Get(ctx, "side_effect:v1::pay_2:receipt")
	assert.False(t, ok)
}
