package config

const EnvPrefix = "ORDERFLOW"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	SequenceStrategyCounter = "counter"
	SequenceStrategyRedis   = "redis"
	SequenceStrategyMax     = "max"
)

const (
	BrokerKindRabbitMQ = "rabbitmq"
	BrokerKindKafka    = "kafka"
)

const (
	EnvAppEnv   = "ORDERFLOW_APP_ENV"
	EnvPort     = "ORDERFLOW_APP_PORT"
	EnvLogLevel = "ORDERFLOW_LOG_LEVEL"

	EnvDBDSN      = "ORDERFLOW_DB_DSN"
	EnvDBHost     = "ORDERFLOW_DB_HOST"
	EnvDBPort     = "ORDERFLOW_DB_PORT"
	EnvDBUser     = "ORDERFLOW_DB_USER"
	EnvDBPassword = "ORDERFLOW_DB_PASSWORD"
	EnvDBName     = "ORDERFLOW_DB_NAME"
	EnvDBSSLMode  = "ORDERFLOW_DB_SSLMODE"

	EnvRedisURL = "ORDERFLOW_REDIS_URL"

	EnvAutoMigrate = "ORDERFLOW_AUTO_MIGRATE"

	EnvSequenceStrategy    = "ORDERFLOW_SEQUENCE_STRATEGY"
	EnvSequenceMaxAttempts = "ORDERFLOW_SEQUENCE_MAX_ATTEMPTS"

	EnvTrackingDefaultEstimate = "ORDERFLOW_TRACKING_DEFAULT_ESTIMATE_MINUTES"

	EnvBrokerKind   = "ORDERFLOW_BROKER_KIND"
	EnvKafkaBrokers = "ORDERFLOW_KAFKA_BROKERS"
)

// legacyDBEnvVars lists the discrete connection settings that must all be
// present when no DSN is configured.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
