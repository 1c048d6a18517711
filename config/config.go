package config

import "time"

type Config struct {
	AppName            string `env:"APP_NAME" env-default:"ingredient-manager"`
	LogLevel           string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" env-default:"false"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Ops HTTP server (health, metrics, cache rebuild)
	OpsPort                       int `env:"OPS_PORT" env-default:"3000"`
	HttpServerWriteTimeoutSeconds int `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:"localhost"`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:"postgres"`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName            string        `env:"DB_NAME" env-default:"ingredients"`
	DatabaseSSLMode         string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"40"`
	DatabaseMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	// Migration Folder Path
	DatabaseMigrationFolderPath   string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int    `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int    `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool   `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis guards the bulk rematch so only one run is active at a time.
	RedisEnabled   bool          `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost      string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort      int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB        int           `env:"REDIS_DB" env-default:"0"`
	RematchLockTTL time.Duration `env:"REMATCH_LOCK_TTL" env-default:"2h"`

	// Kafka brokers (comma-separated); empty disables publishing and consuming
	KafkaBrokers       string `env:"KAFKA_BROKERS" env-default:""`
	KafkaEventsTopic   string `env:"KAFKA_EVENTS_TOPIC" env-default:"ingredient-events"`
	KafkaProductTopic  string `env:"KAFKA_PRODUCT_TOPIC" env-default:"product-ingredients"`
	KafkaConsumerGroup string `env:"KAFKA_CONSUMER_GROUP" env-default:"ingredient-manager"`
	KafkaCompression   string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Bulk rematch defaults, overridable by CLI flags
	RematchConcurrency      int           `env:"REMATCH_CONCURRENCY" env-default:"32"`
	RematchRetries          int           `env:"REMATCH_RETRIES" env-default:"2"`
	RematchTimeout          time.Duration `env:"REMATCH_TIMEOUT" env-default:"20s"`
	RematchProgressInterval time.Duration `env:"REMATCH_PROGRESS_INTERVAL" env-default:"1500ms"`
	// Cron expression for the scheduled rematch in serve; empty disables it
	RematchSchedule string `env:"REMATCH_SCHEDULE" env-default:""`

	// Static data overrides; empty uses the embedded defaults
	R01ConfigPath        string `env:"R01_CONFIG_PATH" env-default:""`
	ExceptionsPath       string `env:"EXCEPTIONS_PATH" env-default:""`
	FunctionKeywordsPath string `env:"FUNCTION_KEYWORDS_PATH" env-default:""`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}
