package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for every setting.
const envPrefix = "RIDREG"

// envKeys lists the keys bound explicitly so that env-only deployments
// (no config file) still unmarshal them; viper's AutomaticEnv only resolves
// keys it already knows about.
var envKeys = []string{
	"server.port", "server.mode",
	"database.host", "database.port", "database.user", "database.password",
	"database.db_name", "database.ssl_mode", "database.max_conns",
	"redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.key_prefix",
	"kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.upload_topic", "kafka.group_id",
	"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key",
	"minio.use_ssl", "minio.bucket",
	"metrics.enabled", "metrics.namespace",
	"log.level", "log.format",
	"ingest.create_batch_size", "ingest.update_batch_size",
	"ingest.entity_chunk_size", "ingest.slug_retries", "ingest.lock_ttl",
}

// newViper builds a Viper instance with YAML, the RIDREG_ prefix and a "." →
// "_" replacer so that "database.host" resolves to RIDREG_DATABASE_HOST.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at configPath, merges RIDREG_* overrides, applies
// defaults and validates.  An empty path loads from the environment only.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from RIDREG_* variables and defaults only.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load that panics on error.  For main() only.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
