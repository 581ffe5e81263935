package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const defaultSQLiteDSN = "file:stockledger.db?_busy_timeout=5000"

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	HTTP         HTTPConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = defaultSQLiteDSN
		}
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKLEDGER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKLEDGER_DB_DSN"`
	Driver string `envconfig:"STOCKLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"STOCKLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the shared secret used to verify tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"STOCKLEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOCKLEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOCKLEDGER_JWT_EXPIRATION_MINUTES" default:"60"`
}

// HTTPConfig shapes the public API surface.
type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"STOCKLEDGER_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow    time.Duration `envconfig:"STOCKLEDGER_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitReads     int           `envconfig:"STOCKLEDGER_RATE_LIMIT_READS" default:"300"`
	RateLimitWrites    int           `envconfig:"STOCKLEDGER_RATE_LIMIT_WRITES" default:"60"`
	ShutdownTimeout    time.Duration `envconfig:"STOCKLEDGER_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKLEDGER_AUTO_MIGRATE" default:"false"`
}

// LedgerConfig tunes conflict retries and invoice terms.
type LedgerConfig struct {
	RetryAttempts    int           `envconfig:"STOCKLEDGER_LEDGER_RETRY_ATTEMPTS" default:"3"`
	RetryBaseBackoff time.Duration `envconfig:"STOCKLEDGER_LEDGER_RETRY_BASE_BACKOFF" default:"25ms"`
	RetryMaxBackoff  time.Duration `envconfig:"STOCKLEDGER_LEDGER_RETRY_MAX_BACKOFF" default:"250ms"`
	InvoiceDueDays   int           `envconfig:"STOCKLEDGER_INVOICE_DUE_DAYS" default:"30"`
}

func (l LedgerConfig) validate() error {
	if l.RetryAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvLedgerRetryAttempts)
	}
	if l.RetryMaxBackoff < l.RetryBaseBackoff {
		return fmt.Errorf("ledger retry max backoff must be >= base backoff")
	}
	if l.InvoiceDueDays < 0 {
		return fmt.Errorf("%s must not be negative", EnvInvoiceDueDays)
	}
	return nil
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"STOCKLEDGER_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOCKLEDGER_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	StockTopic          string `envconfig:"STOCKLEDGER_PUBSUB_STOCK_TOPIC" default:"stock-events"`
	OrdersTopic         string `envconfig:"STOCKLEDGER_PUBSUB_ORDERS_TOPIC" default:"order-events"`
	BillingTopic        string `envconfig:"STOCKLEDGER_PUBSUB_BILLING_TOPIC" default:"billing-events"`
	OrdersSubscription  string `envconfig:"STOCKLEDGER_PUBSUB_ORDERS_SUBSCRIPTION"`
	BillingSubscription string `envconfig:"STOCKLEDGER_PUBSUB_BILLING_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOCKLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOCKLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOCKLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
