package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Scope represents the scope of idempotency
type Scope string

const (
	// ScopePayment keys a confirmed settlement by gateway and gateway reference
	ScopePayment Scope = "payment"
	// ScopeFailedPayment keys a recorded gateway failure; kept apart so a later
	// success for the same reference still goes through
	ScopeFailedPayment Scope = "payment_failed"
	// ScopeStockDecrement keys one invoice line's stock decrement
	ScopeStockDecrement Scope = "stock_decrement"
	// ScopeInvoiceNumber is used when callers want a stable number for a retried create
	ScopeInvoiceNumber Scope = "invoice_number"
)

// Generator generates idempotency keys
type Generator struct{}

// NewGenerator creates a new idempotency key generator
func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateKey generates an idempotency key from a scope and parameters
func (g *Generator) GenerateKey(scope Scope, params map[string]interface{}) string {
	// Sort params for consistent hashing
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(scope))
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(":%s=%v", k, params[k]))
	}

	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s-%s", scope, hex.EncodeToString(hash[:16]))
}

// PaymentKey is the key a settlement is stored under. The same gateway
// reference always yields the same key, whichever adapter delivered it.
func (g *Generator) PaymentKey(gateway, gatewayRef string) string {
	return g.GenerateKey(ScopePayment, map[string]interface{}{
		"gateway":     gateway,
		"gateway_ref": gatewayRef,
	})
}

// FailedPaymentKey is the key a gateway failure notice is stored under
func (g *Generator) FailedPaymentKey(gateway, gatewayRef string) string {
	return g.GenerateKey(ScopeFailedPayment, map[string]interface{}{
		"gateway":     gateway,
		"gateway_ref": gatewayRef,
	})
}

// StockDecrementKey is the key the stock decrement of one line of a
// confirmed payment is recorded under
func (g *Generator) StockDecrementKey(paymentID string, line int) string {
	return g.GenerateKey(ScopeStockDecrement, map[string]interface{}{
		"payment_id": paymentID,
		"line":       line,
	})
}

// ValidateKey validates if an idempotency key matches expected parameters
func (g *Generator) ValidateKey(scope Scope, params map[string]interface{}, key string) bool {
	generated := g.GenerateKey(scope, params)
	return generated == key
}
