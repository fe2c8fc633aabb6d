package inventory

import (
	"context"
)

// Repository defines the interface for product and stock persistence
type Repository interface {
	Create(ctx context.Context, p *Product) error
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	// Decrement atomically lowers stock for a product or one of its variants,
	// clamped at zero, and returns the updated product. The key is recorded
	// with the write; a key seen before leaves stock untouched.
	Decrement(ctx context.Context, key, productID string, variantKey *string, qty int) (*Product, error)
}
