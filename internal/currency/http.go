package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/httpclient"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// HTTPProvider looks up spot rates from a JSON rates endpoint of the form
// GET {endpoint}?base=EUR&symbols=USD -> {"rates":{"USD":1.08}}
type HTTPProvider struct {
	base     types.Currency
	endpoint string
	apiKey   string
	client   httpclient.Client
	limiter  *rate.Limiter
	logger   *logger.Logger
}

type ratesResponse struct {
	Success *bool                      `json:"success,omitempty"`
	Rates   map[string]decimal.Decimal `json:"rates"`
}

// NewHTTPProvider creates a provider that issues at most rps lookups per second
func NewHTTPProvider(base types.Currency, endpoint, apiKey string, rps float64, client httpclient.Client, log *logger.Logger) *HTTPProvider {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HTTPProvider{
		base:     base,
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   log,
	}
}

func (p *HTTPProvider) Rate(ctx context.Context, from types.Currency) (decimal.Decimal, error) {
	if from == p.base {
		return decimal.NewFromInt(1), nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return decimal.Zero, ierr.WithError(err).
			WithHint("Exchange rate lookup was throttled").
			Mark(ierr.ErrExternalService)
	}

	q := url.Values{}
	q.Set("base", from.String())
	q.Set("symbols", p.base.String())

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["apikey"] = p.apiKey
	}

	resp, err := p.client.Send(ctx, &httpclient.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s?%s", p.endpoint, q.Encode()),
		Headers: headers,
	})
	if err != nil {
		p.logger.Warnw("exchange rate lookup failed", "from", from, "to", p.base, "error", err)
		return decimal.Zero, err
	}

	var body ratesResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return decimal.Zero, ierr.WithError(err).
			WithHint("Exchange rate service returned a malformed response").
			Mark(ierr.ErrExternalService)
	}
	if body.Success != nil && !*body.Success {
		return decimal.Zero, ierr.NewError("exchange rate service reported failure").
			WithHint("Exchange rate service returned an error").
			Mark(ierr.ErrExternalService)
	}

	r, ok := body.Rates[p.base.String()]
	if !ok {
		return decimal.Zero, ierr.NewErrorf("no rate for %s in response", p.base).
			WithHintf("Exchange rate service has no rate from %s to %s", from, p.base).
			Mark(ierr.ErrExternalService)
	}
	return r, nil
}
