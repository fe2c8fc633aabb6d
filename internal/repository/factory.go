package repository

import (
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/client"
	"github.com/ledgerline/ledgerline/internal/domain/inventory"
	"github.com/ledgerline/ledgerline/internal/domain/invoice"
	"github.com/ledgerline/ledgerline/internal/domain/payment"
	"github.com/ledgerline/ledgerline/internal/domain/promotion"
	ddb "github.com/ledgerline/ledgerline/internal/dynamodb"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/ledgerline/ledgerline/internal/postgres"
	dynamoRepo "github.com/ledgerline/ledgerline/internal/repository/dynamodb"
	"github.com/ledgerline/ledgerline/internal/repository/memory"
	postgresRepo "github.com/ledgerline/ledgerline/internal/repository/postgres"
	"github.com/ledgerline/ledgerline/internal/sentry"
	"github.com/ledgerline/ledgerline/internal/types"
	"go.uber.org/fx"
)

// RepositoryParams carries whichever backend the configured store type needs.
// The unused backends are nil.
type RepositoryParams struct {
	fx.In

	Config *config.Configuration
	Logger *logger.Logger
	Sentry *sentry.Service
	DB     *postgres.DB `optional:"true"`
	Dynamo *ddb.Client  `optional:"true"`
}

func NewInvoiceRepository(p RepositoryParams) invoice.Repository {
	switch p.Config.Store.Type {
	case types.StoreTypePostgres:
		return postgresRepo.NewInvoiceRepository(p.DB, p.Logger, p.Sentry)
	case types.StoreTypeDynamoDB:
		return dynamoRepo.NewInvoiceRepository(p.Dynamo, p.Config, p.Logger, p.Sentry)
	default:
		return memory.NewInvoiceStore()
	}
}

func NewPaymentRepository(p RepositoryParams) payment.Repository {
	switch p.Config.Store.Type {
	case types.StoreTypePostgres:
		return postgresRepo.NewPaymentRepository(p.DB, p.Logger, p.Sentry)
	case types.StoreTypeDynamoDB:
		return dynamoRepo.NewPaymentRepository(p.Dynamo, p.Config, p.Logger, p.Sentry)
	default:
		return memory.NewPaymentStore()
	}
}

func NewPromotionRepository(p RepositoryParams) promotion.Repository {
	switch p.Config.Store.Type {
	case types.StoreTypePostgres:
		return postgresRepo.NewPromotionRepository(p.DB, p.Logger, p.Sentry)
	case types.StoreTypeDynamoDB:
		return dynamoRepo.NewPromotionRepository(p.Dynamo, p.Config, p.Logger, p.Sentry)
	default:
		return memory.NewPromotionStore()
	}
}

func NewProductRepository(p RepositoryParams) inventory.Repository {
	switch p.Config.Store.Type {
	case types.StoreTypePostgres:
		return postgresRepo.NewProductRepository(p.DB, p.Logger, p.Sentry)
	case types.StoreTypeDynamoDB:
		return dynamoRepo.NewProductRepository(p.Dynamo, p.Config, p.Logger, p.Sentry)
	default:
		return memory.NewProductStore()
	}
}

func NewClientRepository(p RepositoryParams) client.Repository {
	switch p.Config.Store.Type {
	case types.StoreTypePostgres:
		return postgresRepo.NewClientRepository(p.DB, p.Logger, p.Sentry)
	case types.StoreTypeDynamoDB:
		return dynamoRepo.NewClientRepository(p.Dynamo, p.Config, p.Logger, p.Sentry)
	default:
		return memory.NewClientStore()
	}
}

// Module provides every repository for the configured store type
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewInvoiceRepository,
			NewPaymentRepository,
			NewPromotionRepository,
			NewProductRepository,
			NewClientRepository,
		),
	)
}
