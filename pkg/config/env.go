package config

const EnvPrefix = "STOCKLEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "STOCKLEDGER_APP_ENV"
	EnvPort     = "STOCKLEDGER_APP_PORT"
	EnvDBDSN    = "STOCKLEDGER_DB_DSN"
	EnvDBHost   = "STOCKLEDGER_DB_HOST"
	EnvDBUser   = "STOCKLEDGER_DB_USER"
	EnvDBName   = "STOCKLEDGER_DB_NAME"
	EnvDBPass   = "STOCKLEDGER_DB_PASSWORD"
	EnvDBPort   = "STOCKLEDGER_DB_PORT"
	EnvDBSSL    = "STOCKLEDGER_DB_SSLMODE"
	EnvRedisURL = "STOCKLEDGER_REDIS_URL"

	EnvJWTSecret  = "STOCKLEDGER_JWT_SECRET"
	EnvJWTIssuer  = "STOCKLEDGER_JWT_ISSUER"
	EnvJWTExpMins = "STOCKLEDGER_JWT_EXPIRATION_MINUTES"

	EnvLedgerRetryAttempts = "STOCKLEDGER_LEDGER_RETRY_ATTEMPTS"
	EnvLedgerRetryBase     = "STOCKLEDGER_LEDGER_RETRY_BASE_BACKOFF"
	EnvLedgerRetryMax      = "STOCKLEDGER_LEDGER_RETRY_MAX_BACKOFF"
	EnvInvoiceDueDays      = "STOCKLEDGER_INVOICE_DUE_DAYS"

	EnvGCPProjectID       = "STOCKLEDGER_GCP_PROJECT_ID"
	EnvPubSubStockTopic   = "STOCKLEDGER_PUBSUB_STOCK_TOPIC"
	EnvPubSubOrdersTopic  = "STOCKLEDGER_PUBSUB_ORDERS_TOPIC"
	EnvPubSubBillingTopic = "STOCKLEDGER_PUBSUB_BILLING_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
