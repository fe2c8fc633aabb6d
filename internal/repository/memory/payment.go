package memory

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/domain/payment"
	"github.com/ledgerline/ledgerline/internal/types"
)

// PaymentStore implements payment.Repository
type PaymentStore struct {
	store *Store[*payment.Payment]
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{store: NewStore((*payment.Payment).Clone)}
}

func (s *PaymentStore) CreateIfAbsent(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	stored, created := s.store.CreateUnless(ctx, p.ID, p, func(other *payment.Payment) bool {
		return other.IdempotencyKey == p.IdempotencyKey
	})
	return stored, created, nil
}

func (s *PaymentStore) UpdateStatus(ctx context.Context, p *payment.Payment, from types.PaymentStatus) error {
	_, ok, err := s.store.Mutate(ctx, p.ID, func(current *payment.Payment) (*payment.Payment, error) {
		if current.PaymentStatus != from {
			return nil, payment.NewStatusConflictError(p, from)
		}
		return p.Clone(), nil
	})
	if !ok {
		return payment.NewNotFoundError(p.ID)
	}
	return err
}

func (s *PaymentStore) Get(ctx context.Context, id string) (*payment.Payment, error) {
	p, ok := s.store.Get(ctx, id)
	if !ok {
		return nil, payment.NewNotFoundError(id)
	}
	return p, nil
}

func (s *PaymentStore) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	p, ok := s.store.Find(ctx, func(p *payment.Payment) bool {
		return p.IdempotencyKey == key
	})
	if !ok {
		return nil, payment.NewNotFoundError(key)
	}
	return p, nil
}

func (s *PaymentStore) List(ctx context.Context, filter *types.PaymentFilter) ([]*payment.Payment, error) {
	items := s.store.List(ctx, func(p *payment.Payment) bool {
		return payment.MatchesFilter(p, filter)
	})
	return payment.SortAndPage(items, filter), nil
}

func (s *PaymentStore) Count(ctx context.Context, filter *types.PaymentFilter) (int, error) {
	return s.store.Count(ctx, func(p *payment.Payment) bool {
		return payment.MatchesFilter(p, filter)
	}), nil
}

// Clear removes all payments
func (s *PaymentStore) Clear() {
	s.store.Clear()
}
