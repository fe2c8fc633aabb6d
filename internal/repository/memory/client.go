package memory

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/domain/client"
)

// ClientStore implements client.Repository
type ClientStore struct {
	store *Store[*client.Client]
}

func NewClientStore() *ClientStore {
	return &ClientStore{store: NewStore((*client.Client).Clone)}
}

func (s *ClientStore) Create(ctx context.Context, c *client.Client) error {
	return s.store.Create(ctx, c.ID, c)
}

func (s *ClientStore) Get(ctx context.Context, id string) (*client.Client, error) {
	c, ok := s.store.Get(ctx, id)
	if !ok {
		return nil, client.NewNotFoundError(id)
	}
	return c, nil
}

// Clear removes all clients
func (s *ClientStore) Clear() {
	s.store.Clear()
}
