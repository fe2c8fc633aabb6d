package promotion

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/types"
)

// Repository defines the interface for promotion persistence
type Repository interface {
	// Create stores a promotion; a duplicate code fails with ierr.ErrAlreadyExists
	Create(ctx context.Context, p *Promotion) error
	Get(ctx context.Context, id string) (*Promotion, error)
	// GetByCode expects a normalized code
	GetByCode(ctx context.Context, code string) (*Promotion, error)
	List(ctx context.Context, filter *types.PromotionFilter) ([]*Promotion, error)
	Count(ctx context.Context, filter *types.PromotionFilter) (int, error)
	// IncrementUsage adds one use if the promotion is still under its limit,
	// failing with ErrUsageExhausted otherwise
	IncrementUsage(ctx context.Context, id string) error
}
