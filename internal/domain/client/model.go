package client

import (
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
)

// Client is the billed party of an invoice
type Client struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
	// UserID links the client to a platform user account when there is one
	UserID   *string        `json:"user_id,omitempty"`
	Metadata types.Metadata `json:"metadata,omitempty"`

	types.BaseModel
}

func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	out := *c
	if c.UserID != nil {
		u := *c.UserID
		out.UserID = &u
	}
	out.Metadata = c.Metadata.Clone()
	return &out
}

// NewNotFoundError reports a missing client
func NewNotFoundError(id string) error {
	return ierr.NewErrorf("client %s not found", id).
		WithHintf("Client %s was not found", id).
		Mark(ierr.ErrNotFound)
}
