package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Configuration is the typed, validated snapshot every component receives at
// construction time.
type Configuration struct {
	Deployment    DeploymentConfig    `mapstructure:"deployment" validate:"required"`
	Server        ServerConfig        `mapstructure:"server" validate:"required"`
	Logging       LoggingConfig       `mapstructure:"logging" validate:"required"`
	Billing       BillingConfig       `mapstructure:"billing" validate:"required"`
	Store         StoreConfig         `mapstructure:"store" validate:"required"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	DynamoDB      DynamoDBConfig      `mapstructure:"dynamodb"`
	Gateways      GatewaysConfig      `mapstructure:"gateways"`
	Currency      CurrencyConfig      `mapstructure:"currency" validate:"required"`
	Outbox        OutboxConfig        `mapstructure:"outbox" validate:"required"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Sentry        SentryConfig        `mapstructure:"sentry"`
	Pyroscope     PyroscopeConfig     `mapstructure:"pyroscope"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required,oneof=local api consumer aws_lambda_api"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

// BillingConfig holds invoice defaults
type BillingConfig struct {
	BaseCurrency          types.Currency  `mapstructure:"base_currency" validate:"required"`
	DefaultTaxRate        decimal.Decimal `mapstructure:"default_tax_rate"`
	DefaultDueDays        int             `mapstructure:"default_due_days" validate:"min=0"`
	InvoiceNumberPrefix   string          `mapstructure:"invoice_number_prefix" validate:"required"`
	InvoiceNumberAttempts int             `mapstructure:"invoice_number_attempts" validate:"min=1,max=20"`
	MaxConfirmAttempts    int             `mapstructure:"max_confirm_attempts" validate:"min=1,max=50"`
}

type StoreConfig struct {
	Type types.StoreType `mapstructure:"type" validate:"required,oneof=memory postgres dynamodb"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// DynamoDBConfig holds configuration for DynamoDB
type DynamoDBConfig struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	InvoiceTable   string `mapstructure:"invoice_table"`
	PaymentTable   string `mapstructure:"payment_table"`
	PromotionTable string `mapstructure:"promotion_table"`
	ProductTable   string `mapstructure:"product_table"`
	ClientTable    string `mapstructure:"client_table"`
}

type GatewaysConfig struct {
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Zarinpal ZarinpalConfig `mapstructure:"zarinpal"`
}

// StripeConfig configures the push-webhook gateway
type StripeConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	SecretKey     string        `mapstructure:"secret_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	SuccessURL    string        `mapstructure:"success_url"`
	CancelURL     string        `mapstructure:"cancel_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// ZarinpalConfig configures the redirect-verify gateway
type ZarinpalConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MerchantID  string        `mapstructure:"merchant_id"`
	Sandbox     bool          `mapstructure:"sandbox"`
	BaseURL     string        `mapstructure:"base_url"`
	CallbackURL string        `mapstructure:"callback_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CurrencyConfig configures the conversion service
type CurrencyConfig struct {
	Provider          types.RateProviderType `mapstructure:"provider" validate:"required,oneof=static http"`
	Rates             map[string]string      `mapstructure:"rates"`
	Endpoint          string                 `mapstructure:"endpoint"`
	APIKey            string                 `mapstructure:"api_key"`
	CacheTTL          time.Duration          `mapstructure:"cache_ttl"`
	Timeout           time.Duration          `mapstructure:"timeout"`
	RequestsPerSecond float64                `mapstructure:"requests_per_second"`
}

// OutboxConfig configures delivery of the payment confirmed fact
type OutboxConfig struct {
	PubSub          types.PubSubType `mapstructure:"pubsub" validate:"required,oneof=memory kafka"`
	Topic           string           `mapstructure:"topic" validate:"required"`
	MaxRetries      int              `mapstructure:"max_retries"`
	InitialInterval time.Duration    `mapstructure:"initial_interval"`
	MaxInterval     time.Duration    `mapstructure:"max_interval"`
	Multiplier      float64          `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration    `mapstructure:"max_elapsed_time"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
	TLS           bool     `mapstructure:"tls"`
	UseSASL       bool     `mapstructure:"use_sasl"`
	SASLMechanism string   `mapstructure:"sasl_mechanism"`
	SASLUser      string   `mapstructure:"sasl_user"`
	SASLPassword  string   `mapstructure:"sasl_password"`
}

type NotificationsConfig struct {
	Svix SvixConfig `mapstructure:"svix"`
}

type SvixConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"auth_token"`
	BaseURL   string `mapstructure:"base_url"`
	AppID     string `mapstructure:"app_id"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type PyroscopeConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	ServerAddress   string   `mapstructure:"server_address"`
	ApplicationName string   `mapstructure:"application_name"`
	BasicAuthUser   string   `mapstructure:"basic_auth_user"`
	BasicAuthPass   string   `mapstructure:"basic_auth_pass"`
	ProfileTypes    []string `mapstructure:"profile_types"`
	SampleRate      uint32   `mapstructure:"sample_rate"`
	DisableGCRuns   bool     `mapstructure:"disable_gc_runs"`
}

func NewConfig() (*Configuration, error) {
	// a .env file is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ledgerline")

	v.SetEnvPrefix("LEDGERLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
		fmt.Printf("No config file found, using defaults and environment\n")
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("billing.base_currency", types.CurrencyUSD)
	v.SetDefault("billing.default_tax_rate", "0")
	v.SetDefault("billing.default_due_days", 30)
	v.SetDefault("billing.invoice_number_prefix", "INV")
	v.SetDefault("billing.invoice_number_attempts", 5)
	v.SetDefault("billing.max_confirm_attempts", 5)
	v.SetDefault("store.type", types.StoreTypeMemory)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 30)
	v.SetDefault("gateways.stripe.timeout", 10*time.Second)
	v.SetDefault("gateways.zarinpal.timeout", 10*time.Second)
	v.SetDefault("currency.provider", types.RateProviderStatic)
	v.SetDefault("currency.cache_ttl", 10*time.Minute)
	v.SetDefault("currency.timeout", 5*time.Second)
	v.SetDefault("currency.requests_per_second", 5)
	v.SetDefault("outbox.pubsub", types.MemoryPubSub)
	v.SetDefault("outbox.topic", types.EventPaymentConfirmed)
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("outbox.initial_interval", time.Second)
	v.SetDefault("outbox.max_interval", 30*time.Second)
	v.SetDefault("outbox.multiplier", 2.0)
	v.SetDefault("outbox.max_elapsed_time", 5*time.Minute)
	v.SetDefault("kafka.client_id", "ledgerline")
	v.SetDefault("kafka.consumer_group", "ledgerline-side-effects")
}

// Validate checks struct tags and the cross-field rules tags cannot express.
// Enabling a gateway without its secrets is a hard error.
func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	if err := c.Billing.BaseCurrency.Validate(); err != nil {
		return fmt.Errorf("billing.base_currency: %w", err)
	}
	if c.Billing.DefaultTaxRate.IsNegative() || c.Billing.DefaultTaxRate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("billing.default_tax_rate must be between 0 and 100")
	}

	var missing []string
	if c.Gateways.Stripe.Enabled {
		if c.Gateways.Stripe.SecretKey == "" {
			missing = append(missing, "gateways.stripe.secret_key")
		}
		if c.Gateways.Stripe.WebhookSecret == "" {
			missing = append(missing, "gateways.stripe.webhook_secret")
		}
	}
	if c.Gateways.Zarinpal.Enabled && c.Gateways.Zarinpal.MerchantID == "" {
		missing = append(missing, "gateways.zarinpal.merchant_id")
	}
	if c.Notifications.Svix.Enabled && c.Notifications.Svix.AuthToken == "" {
		missing = append(missing, "notifications.svix.auth_token")
	}
	if c.Store.Type == types.StoreTypePostgres && c.Postgres.Host == "" {
		missing = append(missing, "postgres.host")
	}
	if c.Store.Type == types.StoreTypeDynamoDB && c.DynamoDB.Region == "" {
		missing = append(missing, "dynamodb.region")
	}
	if c.Outbox.PubSub == types.KafkaPubSub && len(c.Kafka.Brokers) == 0 {
		missing = append(missing, "kafka.brokers")
	}
	if c.Currency.Provider == types.RateProviderHTTP && c.Currency.Endpoint == "" {
		missing = append(missing, "currency.endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	for code, rate := range c.Currency.Rates {
		cur, err := types.ParseCurrency(code)
		if err != nil {
			return fmt.Errorf("currency.rates: %w", err)
		}
		r, err := decimal.NewFromString(rate)
		if err != nil || !r.IsPositive() {
			return fmt.Errorf("currency.rates.%s must be a positive decimal", cur)
		}
	}

	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts and tests
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Billing: BillingConfig{
			BaseCurrency:          types.CurrencyUSD,
			DefaultTaxRate:        decimal.Zero,
			DefaultDueDays:        30,
			InvoiceNumberPrefix:   "INV",
			InvoiceNumberAttempts: 5,
			MaxConfirmAttempts:    5,
		},
		Store: StoreConfig{Type: types.StoreTypeMemory},
		Currency: CurrencyConfig{
			Provider: types.RateProviderStatic,
			CacheTTL: 10 * time.Minute,
			Timeout:  5 * time.Second,
		},
		Outbox: OutboxConfig{
			PubSub:          types.MemoryPubSub,
			Topic:           types.EventPaymentConfirmed,
			MaxRetries:      3,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			Multiplier:      2,
		},
		Gateways: GatewaysConfig{
			Stripe:   StripeConfig{Timeout: 10 * time.Second},
			Zarinpal: ZarinpalConfig{Timeout: 10 * time.Second},
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
