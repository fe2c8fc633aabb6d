package dto

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/domain/client"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/ledgerline/ledgerline/internal/validator"
)

// CreateClientRequest represents the request payload for registering a billed client
type CreateClientRequest struct {
	Name     string         `json:"name" validate:"required,max=255"`
	Email    string         `json:"email" validate:"required,email"`
	Phone    string         `json:"phone,omitempty" validate:"omitempty,max=32"`
	Company  string         `json:"company,omitempty" validate:"omitempty,max=255"`
	Address  string         `json:"address,omitempty" validate:"omitempty,max=1000"`
	UserID   *string        `json:"user_id,omitempty"`
	Metadata types.Metadata `json:"metadata,omitempty"`
}

func (r *CreateClientRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *CreateClientRequest) ToClient(ctx context.Context) *client.Client {
	return &client.Client{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CLIENT),
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Company:   r.Company,
		Address:   r.Address,
		UserID:    r.UserID,
		Metadata:  r.Metadata,
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
}

type ClientResponse struct {
	*client.Client
}

func NewClientResponse(c *client.Client) *ClientResponse {
	return &ClientResponse{Client: c}
}
