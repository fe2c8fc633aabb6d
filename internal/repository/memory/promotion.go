package memory

import (
	"context"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain/promotion"
	"github.com/ledgerline/ledgerline/internal/types"
)

// PromotionStore implements promotion.Repository
type PromotionStore struct {
	store *Store[*promotion.Promotion]
}

func NewPromotionStore() *PromotionStore {
	return &PromotionStore{store: NewStore((*promotion.Promotion).Clone)}
}

func (s *PromotionStore) Create(ctx context.Context, p *promotion.Promotion) error {
	_, created := s.store.CreateUnless(ctx, p.ID, p, func(other *promotion.Promotion) bool {
		return other.Code == p.Code
	})
	if !created {
		return promotion.NewCodeTakenError(p.Code)
	}
	return nil
}

func (s *PromotionStore) Get(ctx context.Context, id string) (*promotion.Promotion, error) {
	p, ok := s.store.Get(ctx, id)
	if !ok {
		return nil, promotion.NewNotFoundError(id)
	}
	return p, nil
}

func (s *PromotionStore) GetByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	p, ok := s.store.Find(ctx, func(p *promotion.Promotion) bool {
		return p.Code == code
	})
	if !ok {
		return nil, promotion.NewNotFoundError(code)
	}
	return p, nil
}

func (s *PromotionStore) List(ctx context.Context, filter *types.PromotionFilter) ([]*promotion.Promotion, error) {
	now := time.Now().UTC()
	items := s.store.List(ctx, func(p *promotion.Promotion) bool {
		return promotion.MatchesFilter(p, filter, now)
	})
	return promotion.SortAndPage(items, filter), nil
}

func (s *PromotionStore) Count(ctx context.Context, filter *types.PromotionFilter) (int, error) {
	now := time.Now().UTC()
	return s.store.Count(ctx, func(p *promotion.Promotion) bool {
		return promotion.MatchesFilter(p, filter, now)
	}), nil
}

func (s *PromotionStore) IncrementUsage(ctx context.Context, id string) error {
	_, ok, err := s.store.Mutate(ctx, id, func(p *promotion.Promotion) (*promotion.Promotion, error) {
		if p.IsExhausted() {
			return nil, promotion.NewUsageExhaustedError(p.Code)
		}
		p.UsedCount++
		p.UpdatedAt = time.Now().UTC()
		return p, nil
	})
	if !ok {
		return promotion.NewNotFoundError(id)
	}
	return err
}

// Clear removes all promotions
func (s *PromotionStore) Clear() {
	s.store.Clear()
}
