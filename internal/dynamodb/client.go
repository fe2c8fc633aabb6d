package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/ledgerline/ledgerline/internal/config"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
)

// API is the subset of the DynamoDB client the stores use
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type Client struct {
	db API
}

// NewClient returns nil when DynamoDB is not the configured store
func NewClient(cfg *config.Configuration) (*Client, error) {
	if cfg.Store.Type != types.StoreTypeDynamoDB {
		return nil, nil
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion(cfg.DynamoDB.Region),
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unable to load AWS SDK config").
			Mark(ierr.ErrSystem)
	}

	db := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		// local runs point at dynamodb-local
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	})
	return &Client{db: db}, nil
}

// NewClientWithAPI wraps an existing API implementation
func NewClientWithAPI(api API) *Client {
	return &Client{db: api}
}

func (c *Client) DB() API {
	return c.db
}
