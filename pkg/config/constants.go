package config

// EnvPrefix is empty because every field carries its full OFFERS_* name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv = "OFFERS_APP_ENV"
	EnvPort   = "OFFERS_APP_PORT"

	EnvDBDSN  = "OFFERS_DB_DSN"
	EnvDBHost = "OFFERS_DB_HOST"
	EnvDBUser = "OFFERS_DB_USER"
	EnvDBName = "OFFERS_DB_NAME"

	EnvRedisURL = "OFFERS_REDIS_URL"

	EnvCouponLedgerURL  = "OFFERS_COUPON_LEDGER_URL"
	EnvContentStoreURL  = "OFFERS_CONTENT_STORE_URL"
	EnvFeatureConfigURL = "OFFERS_FEATURE_CONFIG_URL"
	EnvEdgeGatewayURL   = "OFFERS_EDGE_GATEWAY_URL"

	EnvGCPProjectID = "OFFERS_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
