package dto

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/domain/inventory"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/ledgerline/ledgerline/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateProductRequest represents the request payload for creating a stocked product
type CreateProductRequest struct {
	Name       string          `json:"name" validate:"required,max=255"`
	SKU        string          `json:"sku,omitempty" validate:"omitempty,max=64"`
	Category   string          `json:"category,omitempty" validate:"omitempty,max=100"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency" validate:"required,currency"`
	TrackStock bool            `json:"track_stock"`
	Stock      int             `json:"stock" validate:"min=0"`
	// variant_stock is keyed by variant key, e.g. "size:L"
	VariantStock map[string]int `json:"variant_stock,omitempty" validate:"omitempty,dive,min=0"`
}

func (r *CreateProductRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Price.IsNegative() {
		return ierr.NewError("price must be non-negative").
			WithHint("Product price cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *CreateProductRequest) ToProduct(ctx context.Context) *inventory.Product {
	currency, _ := types.ParseCurrency(r.Currency)
	return &inventory.Product{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRODUCT),
		Name:         r.Name,
		SKU:          r.SKU,
		Category:     r.Category,
		Price:        r.Price,
		Currency:     currency,
		TrackStock:   r.TrackStock,
		Stock:        r.Stock,
		VariantStock: r.VariantStock,
		BaseModel:    types.GetDefaultBaseModel(ctx),
	}
}

type ProductResponse struct {
	*inventory.Product
}

func NewProductResponse(p *inventory.Product) *ProductResponse {
	return &ProductResponse{Product: p}
}

type ListProductsResponse = types.ListResponse[*ProductResponse]
