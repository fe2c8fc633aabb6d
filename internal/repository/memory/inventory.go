package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain/inventory"
)

// ProductStore implements inventory.Repository
type ProductStore struct {
	store   *Store[*inventory.Product]
	applied sync.Map
}

func NewProductStore() *ProductStore {
	return &ProductStore{store: NewStore((*inventory.Product).Clone)}
}

func (s *ProductStore) Create(ctx context.Context, p *inventory.Product) error {
	return s.store.Create(ctx, p.ID, p)
}

func (s *ProductStore) Get(ctx context.Context, id string) (*inventory.Product, error) {
	p, ok := s.store.Get(ctx, id)
	if !ok {
		return nil, inventory.NewNotFoundError(id)
	}
	return p, nil
}

func (s *ProductStore) List(ctx context.Context) ([]*inventory.Product, error) {
	items := s.store.List(ctx, nil)
	sort.Slice(items, func(a, b int) bool {
		return items[a].Name < items[b].Name
	})
	return items, nil
}

func (s *ProductStore) Decrement(ctx context.Context, key, productID string, variantKey *string, qty int) (*inventory.Product, error) {
	p, ok, err := s.store.Mutate(ctx, productID, func(p *inventory.Product) (*inventory.Product, error) {
		if _, seen := s.applied.LoadOrStore(key, productID); seen {
			return p, nil
		}
		if p.Decrement(variantKey, qty) > 0 {
			p.UpdatedAt = time.Now().UTC()
		}
		return p, nil
	})
	if !ok {
		return nil, inventory.NewNotFoundError(productID)
	}
	return p, err
}

// Clear removes all products
func (s *ProductStore) Clear() {
	s.store.Clear()
	s.applied.Range(func(k, _ any) bool {
		s.applied.Delete(k)
		return true
	})
}
