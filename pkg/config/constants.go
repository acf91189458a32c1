package config

// EnvPrefix scopes every environment variable the service reads.
const EnvPrefix = "ARMORY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names referenced outside struct tags (tests, error
// messages).
const (
	EnvAppEnv   = "ARMORY_APP_ENV"
	EnvPort     = "ARMORY_APP_PORT"
	EnvDBDSN    = "ARMORY_DB_DSN"
	EnvDBHost   = "ARMORY_DB_HOST"
	EnvDBUser   = "ARMORY_DB_USER"
	EnvDBName   = "ARMORY_DB_NAME"
	EnvRedisURL = "ARMORY_REDIS_URL"

	EnvSessionSecret = "ARMORY_SESSION_SECRET"
	EnvSessionIssuer = "ARMORY_SESSION_ISSUER"

	EnvPubSubCheckoutTopic = "ARMORY_PUBSUB_CHECKOUT_TOPIC"
	EnvGCPProjectID        = "ARMORY_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
