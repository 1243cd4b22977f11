// Package config defines the configuration structures for ridsync.  Loading
// lives in loader.go, defaults in defaults.go; this file only holds plain data
// types and validation.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds the admin HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// DSN renders the connection string understood by pgx and golang-migrate.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// RedisConfig holds Redis parameters.  Redis only backs the ingest run lock;
// when disabled, runs are not serialised across processes.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds producer parameters for run events and the consumer
// parameters of the upload listener.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	UploadTopic  string        `mapstructure:"upload_topic"`
	GroupID      string        `mapstructure:"group_id"`
	ClientID     string        `mapstructure:"client_id"`
	RequiredAcks int           `mapstructure:"required_acks"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MinIOConfig holds object-storage parameters for s3:// snapshot sources.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
}

// MetricsConfig holds Prometheus parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	Path      string `mapstructure:"path"`
}

// IngestConfig holds the reconciliation tunables.
type IngestConfig struct {
	// Row diff & upsert.
	LookupBatchSize int `mapstructure:"lookup_batch_size"`
	CreateBatchSize int `mapstructure:"create_batch_size"`
	UpdateBatchSize int `mapstructure:"update_batch_size"`
	MaxLoggedErrors int `mapstructure:"max_logged_errors"`

	// Relation reconciliation.
	EdgeDeleteBatchSize int `mapstructure:"edge_delete_batch_size"`
	EdgeInsertBatchSize int `mapstructure:"edge_insert_batch_size"`

	// Entity resolution.
	EntityChunkSize int `mapstructure:"entity_chunk_size"`
	SlugRetries     int `mapstructure:"slug_retries"`

	// Classification.
	ClassifierCacheSize int `mapstructure:"classifier_cache_size"`
	ClassifierMinLength int `mapstructure:"classifier_min_length"`

	// Run lock.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object.
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Database DatabaseConfig    `mapstructure:"database"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	MinIO    MinIOConfig       `mapstructure:"minio"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Log      logging.LogConfig `mapstructure:"log"`
	Ingest   IngestConfig      `mapstructure:"ingest"`
}

// Validate checks the populated configuration.  Call after ApplyDefaults.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required when kafka is enabled")
		}
	}
	if c.MinIO.Enabled && c.MinIO.Endpoint == "" {
		return fmt.Errorf("config: minio.endpoint is required when minio is enabled")
	}

	in := c.Ingest
	for name, v := range map[string]int{
		"ingest.lookup_batch_size":      in.LookupBatchSize,
		"ingest.create_batch_size":      in.CreateBatchSize,
		"ingest.update_batch_size":      in.UpdateBatchSize,
		"ingest.edge_delete_batch_size": in.EdgeDeleteBatchSize,
		"ingest.edge_insert_batch_size": in.EdgeInsertBatchSize,
		"ingest.entity_chunk_size":      in.EntityChunkSize,
		"ingest.slug_retries":           in.SlugRetries,
		"ingest.classifier_cache_size":  in.ClassifierCacheSize,
	} {
		if v < 1 {
			return fmt.Errorf("config: %s must be >= 1, got %d", name, v)
		}
	}
	if in.MaxLoggedErrors < 0 {
		return fmt.Errorf("config: ingest.max_logged_errors must be >= 0, got %d", in.MaxLoggedErrors)
	}
	return nil
}
