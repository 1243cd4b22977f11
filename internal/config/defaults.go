package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default values
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBUser     = "ridreg"
	DefaultDBName     = "rid_registry"
	DefaultDBSSLMode  = "disable"
	DefaultDBMaxConns = 10

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "ridreg"

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaTopic       = "catalogue.snapshot.processed"
	DefaultKafkaUploadTopic = "catalogue.snapshot.uploaded"
	DefaultKafkaGroupID     = "ridsync-listener"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "catalogue-snapshots"

	DefaultMetricsNamespace = "ridreg"
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultLookupBatchSize     = 1000
	DefaultCreateBatchSize     = 1000
	DefaultUpdateBatchSize     = 500
	DefaultEdgeDeleteBatchSize = 500
	DefaultEdgeInsertBatchSize = 2000
	DefaultEntityChunkSize     = 500
	DefaultSlugRetries         = 10
	DefaultMaxLoggedErrors     = 10
	DefaultClassifierCacheSize = 10000
	DefaultClassifierMinLength = 3
	DefaultLockTTL             = 30 * time.Minute
)

// ApplyDefaults fills zero-value fields in cfg.  Explicit values always win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30 * time.Minute
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 10 * time.Second
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.UploadTopic == "" {
		cfg.Kafka.UploadTopic = DefaultKafkaUploadTopic
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "ridsync"
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Metrics / Log ─────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Ingest ────────────────────────────────────────────────────────────────
	in := &cfg.Ingest
	if in.LookupBatchSize == 0 {
		in.LookupBatchSize = DefaultLookupBatchSize
	}
	if in.CreateBatchSize == 0 {
		in.CreateBatchSize = DefaultCreateBatchSize
	}
	if in.UpdateBatchSize == 0 {
		in.UpdateBatchSize = DefaultUpdateBatchSize
	}
	if in.EdgeDeleteBatchSize == 0 {
		in.EdgeDeleteBatchSize = DefaultEdgeDeleteBatchSize
	}
	if in.EdgeInsertBatchSize == 0 {
		in.EdgeInsertBatchSize = DefaultEdgeInsertBatchSize
	}
	if in.EntityChunkSize == 0 {
		in.EntityChunkSize = DefaultEntityChunkSize
	}
	if in.SlugRetries == 0 {
		in.SlugRetries = DefaultSlugRetries
	}
	if in.MaxLoggedErrors == 0 {
		in.MaxLoggedErrors = DefaultMaxLoggedErrors
	}
	if in.ClassifierCacheSize == 0 {
		in.ClassifierCacheSize = DefaultClassifierCacheSize
	}
	if in.ClassifierMinLength == 0 {
		in.ClassifierMinLength = DefaultClassifierMinLength
	}
	if in.LockTTL == 0 {
		in.LockTTL = DefaultLockTTL
	}
}

// Defaults returns a Config populated only with defaults.
func Defaults() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
