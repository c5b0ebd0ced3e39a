// Package config provides configuration structures and validation for the ledger.
// It handles environment-based configuration for the secure store, the crypto
// engine, the audit pipeline and the relay that forwards audit events.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration. Each field represents a
// subsystem's settings and is validated once during startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Kafka       KafkaConfig
	Crypto      CryptoConfig
	Audit       AuditConfig
	Security    SecurityConfig
	Relay       RelayConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration for the audit archive
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// KafkaConfig contains Kafka configuration for the audit event stream
type KafkaConfig struct {
	Brokers           string
	AuditTopic        string
	NumPartitions     int
	ReplicationFactor int
	WriteTimeout      time.Duration
	ConsumerGroup     string        // Group used by the audit tail reader
	MaxWait           time.Duration // Longest a fetch waits for new messages
}

// CryptoConfig contains key material and password hashing settings
type CryptoConfig struct {
	KeyFilePath      string // Losing this file makes every stored ciphertext unrecoverable
	PBKDF2Iterations int
}

// AuditConfig contains audit trail settings
type AuditConfig struct {
	LogPath        string
	WorkerPoolSize int // Workers dispatching events to asynchronous sinks
}

// SecurityConfig contains transaction limits and the administrative credential.
// The lockout threshold is fixed by the schema and is not configurable.
type SecurityConfig struct {
	MaxTransactionAmount decimal.Decimal
	MinPasswordLength    int
	AdminPasswordHash    string
	AdminPasswordSalt    string
}

// RelayConfig contains audit relay polling configuration
type RelayConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// validate performs validation of all configuration values, collecting every
// problem instead of stopping at the first one.
func (c *Config) validate() error {
	var validationErrors []string

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}

	// Validate Kafka config
	if c.Kafka.Brokers == "" {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.AuditTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_AUDIT_TOPIC is required")
	}
	if c.Kafka.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "KAFKA_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_MAX_WAIT must be greater than 0")
	}

	// Validate Crypto config
	if c.Crypto.KeyFilePath == "" {
		validationErrors = append(validationErrors, "KEY_FILE_PATH is required")
	}
	if c.Crypto.PBKDF2Iterations < 1000 {
		validationErrors = append(validationErrors, "CRYPTO_PBKDF2_ITERATIONS must be at least 1000")
	}

	// Validate Audit config
	if c.Audit.LogPath == "" {
		validationErrors = append(validationErrors, "AUDIT_LOG_PATH is required")
	}
	if c.Audit.WorkerPoolSize <= 0 {
		validationErrors = append(validationErrors, "AUDIT_WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate Security config
	if !c.Security.MaxTransactionAmount.IsPositive() {
		validationErrors = append(validationErrors, "MAX_TRANSACTION_AMOUNT must be greater than 0")
	}
	if c.Security.MinPasswordLength <= 0 {
		validationErrors = append(validationErrors, "MIN_PASSWORD_LENGTH must be greater than 0")
	}
	if (c.Security.AdminPasswordHash == "") != (c.Security.AdminPasswordSalt == "") {
		validationErrors = append(validationErrors, "ADMIN_PASSWORD_HASH and ADMIN_PASSWORD_SALT must be set together")
	}

	// Validate Relay config
	if c.Relay.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "RELAY_POLLING_INTERVAL must be greater than 0")
	}
	if c.Relay.BatchSize <= 0 {
		validationErrors = append(validationErrors, "RELAY_BATCH_SIZE must be greater than 0")
	}
	if c.Relay.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "RELAY_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
