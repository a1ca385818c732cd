package config

const EnvPrefix = "NUMBERPOOL"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv  = "NUMBERPOOL_APP_ENV"
	EnvPort    = "NUMBERPOOL_APP_PORT"
	EnvLogFile = "NUMBERPOOL_LOG_FILE"

	EnvTrustedProxies = "NUMBERPOOL_TRUSTED_PROXIES"

	EnvDBDSN    = "NUMBERPOOL_DB_DSN"
	EnvDBDriver = "NUMBERPOOL_DB_DRIVER"
	EnvDBHost   = "NUMBERPOOL_DB_HOST"
	EnvDBUser   = "NUMBERPOOL_DB_USER"
	EnvDBName   = "NUMBERPOOL_DB_NAME"

	EnvRedisURL = "NUMBERPOOL_REDIS_URL"

	EnvJWTSecret  = "NUMBERPOOL_JWT_SECRET"
	EnvJWTIssuer  = "NUMBERPOOL_JWT_ISSUER"
	EnvJWTExpMins = "NUMBERPOOL_JWT_EXPIRATION_MINUTES"

	EnvGuestHashSalt   = "NUMBERPOOL_GUEST_HASH_SALT"
	EnvGuestSessionTTL = "NUMBERPOOL_GUEST_SESSION_TTL"

	EnvReservationTimerMinutes = "NUMBERPOOL_RESERVATION_TIMER_MINUTES"

	EnvPubSubReservationTopic = "NUMBERPOOL_PUBSUB_RESERVATION_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
