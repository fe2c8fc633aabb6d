package cache

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// traceLookup opens a span for one cache read when the request carries a
// sentry hub. The returned func records whether the key was found.
func traceLookup(ctx context.Context, backend, key string) func(hit bool) {
	if sentry.GetHubFromContext(ctx) == nil {
		return func(bool) {}
	}

	span := sentry.StartSpan(ctx, "cache.get", sentry.WithDescription(backend+" "+key))
	span.SetData("cache.backend", backend)
	span.SetData("cache.key", key)
	return func(hit bool) {
		span.SetData("cache.hit", hit)
		span.Status = sentry.SpanStatusOK
		span.Finish()
	}
}
