package service

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/api/dto"
	"github.com/ledgerline/ledgerline/internal/domain/inventory"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/samber/lo"
)

// ProductService manages the catalogue whose stock payments draw down
type ProductService interface {
	CreateProduct(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error)
	GetProduct(ctx context.Context, id string) (*dto.ProductResponse, error)
	ListProducts(ctx context.Context) (*dto.ListProductsResponse, error)
}

type productService struct {
	ServiceParams
}

func NewProductService(params ServiceParams) ProductService {
	return &productService{ServiceParams: params}
}

func (s *productService) CreateProduct(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := req.ToProduct(ctx)
	if err := s.ProductRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.Logger.Infow("created product", "product_id", p.ID, "sku", p.SKU)
	return dto.NewProductResponse(p), nil
}

func (s *productService) GetProduct(ctx context.Context, id string) (*dto.ProductResponse, error) {
	if id == "" {
		return nil, ierr.NewError("product_id is required").
			WithHint("Product ID is required").
			Mark(ierr.ErrValidation)
	}

	p, err := s.ProductRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewProductResponse(p), nil
}

func (s *productService) ListProducts(ctx context.Context) (*dto.ListProductsResponse, error) {
	items, err := s.ProductRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	resp := types.NewListResponse(
		lo.Map(items, func(p *inventory.Product, _ int) *dto.ProductResponse {
			return dto.NewProductResponse(p)
		}),
		len(items), len(items), 0,
	)
	return &resp, nil
}
