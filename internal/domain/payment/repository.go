package payment

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/types"
)

// Repository defines the interface for payment persistence. Payments are
// never deleted; only a pending payment's status may change.
type Repository interface {
	// CreateIfAbsent inserts p unless a payment with the same idempotency key
	// exists. It returns the stored record and whether this call created it.
	CreateIfAbsent(ctx context.Context, p *Payment) (*Payment, bool, error)
	// UpdateStatus stores p if the stored status still equals from. A
	// mismatch is ErrVersionConflict.
	UpdateStatus(ctx context.Context, p *Payment, from types.PaymentStatus) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
	List(ctx context.Context, filter *types.PaymentFilter) ([]*Payment, error)
	Count(ctx context.Context, filter *types.PaymentFilter) (int, error)
}
