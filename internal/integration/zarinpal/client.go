package zarinpal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/payment"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/httpclient"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/money"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
)

const (
	productionBaseURL = "https://payment.zarinpal.com"
	sandboxBaseURL    = "https://sandbox.zarinpal.com"

	requestPath  = "/pg/v4/payment/request.json"
	verifyPath   = "/pg/v4/payment/verify.json"
	startPayPath = "/pg/StartPay/"

	gatewayName = "zarinpal"
)

// Client talks to a Zarinpal-style redirect gateway. Amounts are sent as
// whole rials.
type Client struct {
	merchantID  string
	callbackURL string
	baseURL     string
	http        httpclient.Client
	logger      *logger.Logger
}

// NewClient creates a client with the configured timeout applied to every
// call. It returns nil when the gateway is disabled.
func NewClient(cfg *config.Configuration, log *logger.Logger) *Client {
	zc := cfg.Gateways.Zarinpal
	if !zc.Enabled {
		return nil
	}
	return NewClientWithHTTP(zc, httpclient.NewClient(httpclient.ClientConfig{Timeout: zc.Timeout}), log)
}

// NewClientWithHTTP creates a client on top of an existing HTTP client
func NewClientWithHTTP(zc config.ZarinpalConfig, hc httpclient.Client, log *logger.Logger) *Client {
	baseURL := zc.BaseURL
	if baseURL == "" {
		baseURL = productionBaseURL
		if zc.Sandbox {
			baseURL = sandboxBaseURL
		}
	}
	return &Client{
		merchantID:  zc.MerchantID,
		callbackURL: zc.CallbackURL,
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        hc,
		logger:      log.With("gateway", gatewayName),
	}
}

// RequestPayment registers a payment and returns the authority the payer
// is redirected with
func (c *Client) RequestPayment(ctx context.Context, in RequestInput) (*RequestResult, error) {
	callback := in.CallbackURL
	if callback == "" {
		callback = c.callbackURL
	}
	metadata := map[string]string{"invoice_id": in.InvoiceID}
	if in.Email != "" {
		metadata["email"] = in.Email
	}
	if in.Mobile != "" {
		metadata["mobile"] = in.Mobile
	}

	body, err := json.Marshal(paymentRequest{
		MerchantID:  c.merchantID,
		Amount:      money.ToMinorUnits(in.Amount, types.CurrencyIRR),
		Currency:    types.CurrencyIRR.String(),
		CallbackURL: callback,
		Description: in.Description,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode gateway request").
			Mark(ierr.ErrSystem)
	}

	env, err := c.post(ctx, requestPath, body)
	if err != nil {
		return nil, err
	}

	var data requestData
	if isEmptyJSON(env.Data) || json.Unmarshal(env.Data, &data) != nil || data.Code != CodeSuccess {
		code, msg := c.gatewayError(env, data.Code, data.Message)
		c.logger.Warnw("payment request refused", "invoice_id", in.InvoiceID, "code", code, "message", msg)
		return nil, payment.NewRejectedError(gatewayName, code, msg)
	}

	c.logger.Infow("payment requested", "invoice_id", in.InvoiceID, "authority", data.Authority)
	return &RequestResult{
		Authority:   data.Authority,
		RedirectURL: c.baseURL + startPayPath + data.Authority,
	}, nil
}

// Verify settles the payment identified by authority. Codes 100 and 101 are
// successes; any other code is a rejection. Transport failures, timeouts and
// 5xx answers are reported as not confirmed.
func (c *Client) Verify(ctx context.Context, authority string, amount decimal.Decimal) (*VerifyResult, error) {
	body, err := json.Marshal(verifyRequest{
		MerchantID: c.merchantID,
		Amount:     money.ToMinorUnits(amount, types.CurrencyIRR),
		Authority:  authority,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode gateway request").
			Mark(ierr.ErrSystem)
	}

	env, err := c.post(ctx, verifyPath, body)
	if err != nil {
		return nil, err
	}

	var data verifyData
	if isEmptyJSON(env.Data) || json.Unmarshal(env.Data, &data) != nil ||
		(data.Code != CodeSuccess && data.Code != CodeAlreadyVerified) {
		code, msg := c.gatewayError(env, data.Code, data.Message)
		c.logger.Warnw("payment verification refused", "authority", authority, "code", code, "message", msg)
		return nil, payment.NewRejectedError(gatewayName, code, msg)
	}

	if data.RefID.String() == "" {
		return nil, payment.NewNotConfirmedError(
			ierr.NewError("verify response carries no ref_id").Mark(ierr.ErrExternalService), gatewayName)
	}

	return &VerifyResult{
		Code:    data.Code,
		RefID:   data.RefID.String(),
		CardPAN: data.CardPAN,
	}, nil
}

// post sends body and decodes the envelope. A 4xx answer still carries the
// gateway's error code and is returned as an envelope.
func (c *Client) post(ctx context.Context, path string, body []byte) (*envelope, error) {
	resp, err := c.http.Send(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + path,
		Body:   body,
	})

	var raw []byte
	switch {
	case err == nil:
		raw = resp.Body
	default:
		httpErr, ok := httpclient.IsHTTPError(err)
		if !ok || httpErr.StatusCode >= http.StatusInternalServerError {
			c.logger.Warnw("gateway call failed", "path", path, "error", err)
			return nil, payment.NewNotConfirmedError(err, gatewayName)
		}
		raw = httpErr.Response
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, payment.NewNotConfirmedError(
			ierr.WithError(err).WithHint("Gateway returned a malformed response").Mark(ierr.ErrExternalService),
			gatewayName)
	}
	return &env, nil
}

// gatewayError picks the most specific code from either half of the envelope
func (c *Client) gatewayError(env *envelope, code int, msg string) (int, string) {
	if !isEmptyJSON(env.Errors) {
		var ge gatewayError
		if err := json.Unmarshal(env.Errors, &ge); err == nil && ge.Code != 0 {
			return ge.Code, ge.Message
		}
	}
	if code == 0 {
		return 0, fmt.Sprintf("unexpected response from %s", gatewayName)
	}
	return code, msg
}
