package memory

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
)

// InvoiceStore implements invoice.Repository
type InvoiceStore struct {
	store *Store[*invoice.Invoice]
}

func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{store: NewStore((*invoice.Invoice).Clone)}
}

func (s *InvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	existing, created := s.store.CreateUnless(ctx, inv.ID, inv, func(other *invoice.Invoice) bool {
		return other.InvoiceNumber == inv.InvoiceNumber
	})
	if created {
		return nil
	}
	if existing.InvoiceNumber == inv.InvoiceNumber {
		return invoice.NewNumberTakenError(inv.InvoiceNumber)
	}
	return ierr.NewErrorf("invoice %s already exists", inv.ID).
		Mark(ierr.ErrAlreadyExists)
}

func (s *InvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, ok := s.store.Get(ctx, id)
	if !ok {
		return nil, invoice.NewNotFoundError(id)
	}
	return inv, nil
}

func (s *InvoiceStore) GetByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	inv, ok := s.store.Find(ctx, func(i *invoice.Invoice) bool {
		return i.InvoiceNumber == number
	})
	if !ok {
		return nil, invoice.NewNotFoundError(number)
	}
	return inv, nil
}

func (s *InvoiceStore) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	items := s.store.List(ctx, func(i *invoice.Invoice) bool {
		return invoice.MatchesFilter(i, filter)
	})
	return invoice.SortAndPage(items, filter), nil
}

func (s *InvoiceStore) Count(ctx context.Context, filter *types.InvoiceFilter) (int, error) {
	return s.store.Count(ctx, func(i *invoice.Invoice) bool {
		return invoice.MatchesFilter(i, filter)
	}), nil
}

func (s *InvoiceStore) Update(ctx context.Context, inv *invoice.Invoice, expectedStatus types.InvoiceStatus) error {
	_, ok, err := s.store.Mutate(ctx, inv.ID, func(current *invoice.Invoice) (*invoice.Invoice, error) {
		if current.InvoiceStatus != expectedStatus || current.Version != inv.Version {
			return nil, invoice.NewVersionConflictError(inv, expectedStatus)
		}
		next := inv.Clone()
		next.Version = current.Version + 1
		return next, nil
	})
	if !ok {
		return invoice.NewNotFoundError(inv.ID)
	}
	if err != nil {
		return err
	}
	inv.Version++
	return nil
}

// Clear removes all invoices
func (s *InvoiceStore) Clear() {
	s.store.Clear()
}
