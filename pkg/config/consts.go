package config

// EnvPrefix is passed to envconfig; tags carry the full variable names so the
// prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv = "ROYALTYWORKS_APP_ENV"
	EnvPort   = "ROYALTYWORKS_APP_PORT"

	EnvDBDSN  = "ROYALTYWORKS_DB_DSN"
	EnvDBHost = "ROYALTYWORKS_DB_HOST"
	EnvDBUser = "ROYALTYWORKS_DB_USER"
	EnvDBName = "ROYALTYWORKS_DB_NAME"

	EnvRedisURL = "ROYALTYWORKS_REDIS_URL"

	EnvJWTSecret  = "ROYALTYWORKS_JWT_SECRET"
	EnvJWTIssuer  = "ROYALTYWORKS_JWT_ISSUER"
	EnvJWTExpMins = "ROYALTYWORKS_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "ROYALTYWORKS_GCP_PROJECT_ID"

	EnvPubSubRoyaltyTopic = "ROYALTYWORKS_PUBSUB_ROYALTY_TOPIC"
	EnvPubSubRoyaltySub   = "ROYALTYWORKS_PUBSUB_ROYALTY_SUBSCRIPTION"
)

// legacyDBEnvVars are the discrete connection variables accepted when a full
// DSN is not provided.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
