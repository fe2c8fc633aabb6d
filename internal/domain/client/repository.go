package client

import (
	"context"
)

// Repository defines the interface for client persistence
type Repository interface {
	Create(ctx context.Context, c *Client) error
	Get(ctx context.Context, id string) (*Client, error)
}
