package invoice

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/types"
)

// Repository defines the interface for invoice persistence operations
type Repository interface {
	// Create stores a new invoice. A duplicate invoice number fails with
	// ierr.ErrAlreadyExists.
	Create(ctx context.Context, inv *Invoice) error

	// Get retrieves an invoice by ID
	Get(ctx context.Context, id string) (*Invoice, error)

	// GetByNumber retrieves an invoice by its human readable number
	GetByNumber(ctx context.Context, number string) (*Invoice, error)

	// List retrieves invoices based on filter criteria
	List(ctx context.Context, filter *types.InvoiceFilter) ([]*Invoice, error)

	// Count returns the total count of invoices based on filter criteria
	Count(ctx context.Context, filter *types.InvoiceFilter) (int, error)

	// Update writes inv only if the stored copy still has expectedStatus and
	// inv.Version. Otherwise it fails with ierr.ErrVersionConflict and
	// nothing is written. On success inv.Version is incremented.
	Update(ctx context.Context, inv *Invoice, expectedStatus types.InvoiceStatus) error
}
