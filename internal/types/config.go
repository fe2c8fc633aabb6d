package types

type RunMode string

const (
	// ModeLocal runs the API server and the side-effect consumers in one process
	ModeLocal RunMode = "local"
	// ModeAPI runs just the API server
	ModeAPI RunMode = "api"
	// ModeConsumer runs just the side-effect consumers
	ModeConsumer RunMode = "consumer"
	// ModeAWSLambdaAPI runs the API server in AWS Lambda
	ModeAWSLambdaAPI RunMode = "aws_lambda_api"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// StoreType selects the document store implementation
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypePostgres StoreType = "postgres"
	StoreTypeDynamoDB StoreType = "dynamodb"
)

// RateProviderType selects where exchange rates come from
type RateProviderType string

const (
	RateProviderStatic RateProviderType = "static"
	RateProviderHTTP   RateProviderType = "http"
)
