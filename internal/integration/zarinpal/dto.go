package zarinpal

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Gateway result codes
const (
	CodeSuccess         = 100
	CodeAlreadyVerified = 101
)

type paymentRequest struct {
	MerchantID  string            `json:"merchant_id"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type verifyRequest struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

// envelope is the gateway's response shape. data is an object on success and
// an empty array on failure; errors is the opposite.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type requestData struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Authority string `json:"authority"`
	FeeType   string `json:"fee_type"`
	Fee       int64  `json:"fee"`
}

type verifyData struct {
	Code     int         `json:"code"`
	Message  string      `json:"message"`
	RefID    json.Number `json:"ref_id"`
	CardPAN  string      `json:"card_pan"`
	CardHash string      `json:"card_hash"`
	FeeType  string      `json:"fee_type"`
	Fee      int64       `json:"fee"`
}

type gatewayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RequestInput describes a payment to start
type RequestInput struct {
	InvoiceID   string
	Amount      decimal.Decimal
	Description string
	// CallbackURL overrides the configured callback
	CallbackURL string
	Email       string
	Mobile      string
}

// RequestResult is where the payer has to be sent
type RequestResult struct {
	Authority   string
	RedirectURL string
}

// VerifyResult is a settled payment as reported by the gateway
type VerifyResult struct {
	Code    int
	RefID   string
	CardPAN string
}

// AlreadyVerified reports a replayed verification of a settled payment
func (r *VerifyResult) AlreadyVerified() bool {
	return r.Code == CodeAlreadyVerified
}

func isEmptyJSON(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte("[]")) || bytes.Equal(t, []byte("{}"))
}
