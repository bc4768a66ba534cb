package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends
const (
	StorageBolt   = "bolt"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracking TrackingConfig `mapstructure:"tracking"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	APIPort        int      `mapstructure:"api_port"`
	MetricsPort    int      `mapstructure:"metrics_port"`
	MetricsEnabled bool     `mapstructure:"metrics_enabled"`
	BindAddress    string   `mapstructure:"bind_address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	LockTimeout  string `mapstructure:"lock_timeout"` // Expiry of the single-writer lock
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines time span consolidation settings
type TrackingConfig struct {
	GapTolerance   string `mapstructure:"gap_tolerance"`
	EntryCacheSize int    `mapstructure:"entry_cache_size"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("WORKLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isMissingFile(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GapToleranceDuration returns the parsed gap tolerance, defaulting to 15m.
func (c TrackingConfig) GapToleranceDuration() time.Duration {
	d, err := time.ParseDuration(c.GapTolerance)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// UnknownKeys reads a config file and returns the keys that do not map to
// any setting, sorted.
func UnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	valid := make(map[string]bool)
	defaults := viper.New()
	setDefaults(defaults)
	for _, key := range defaults.AllKeys() {
		valid[key] = true
	}
	// Settings without a default value.
	valid["storage.redis.password"] = true

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.allowed_origins", []string{})

	// Storage defaults
	v.SetDefault("storage.type", StorageBolt)
	v.SetDefault("storage.path", "/var/lib/worklog/worklog.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.lock_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracking defaults
	v.SetDefault("tracking.gap_tolerance", "15m")
	v.SetDefault("tracking.entry_cache_size", 256)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsEnabled && (cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageBolt
	}
	switch cfg.Storage.Type {
	case StorageBolt, StorageSQLite:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for %s storage", cfg.Storage.Type)
		}
	case StorageRedis:
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage type: %q (must be bolt, redis or sqlite)", cfg.Storage.Type)
	}

	gap, err := time.ParseDuration(cfg.Tracking.GapTolerance)
	if err != nil {
		return fmt.Errorf("invalid gap tolerance %q: %w", cfg.Tracking.GapTolerance, err)
	}
	if gap <= 0 {
		return fmt.Errorf("gap tolerance must be positive: %s", gap)
	}
	if cfg.Tracking.EntryCacheSize < 0 {
		return fmt.Errorf("entry cache size must not be negative: %d", cfg.Tracking.EntryCacheSize)
	}

	return nil
}
