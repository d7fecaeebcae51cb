package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go.pilab.hu/vident/domain"
)

// EnvPrefix prefixes every environment override, e.g. VIDENT_MONGO_URI.
const EnvPrefix = "VIDENT"

// Config holds the settings for wiring the identity core.
type Config struct {
	Mongo  MongoConfig  `mapstructure:"mongo"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Log    LogConfig    `mapstructure:"log"`
	Crypto CryptoConfig `mapstructure:"crypto"`
	Token  TokenConfig  `mapstructure:"token"`
	Otel   OtelConfig   `mapstructure:"otel"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// CacheConfig selects the token lookup cache: "none", "memory" or "redis".
// The memory cache is only correct when a single instance serves a store.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// CryptoConfig points at the persisted key material. All instances sharing a
// store must read the same files.
type CryptoConfig struct {
	KeyFile    string `mapstructure:"key_file"`
	TableFile  string `mapstructure:"table_file"`
	PepperFile string `mapstructure:"pepper_file"`
}

type TokenConfig struct {
	SupervisorScope string        `mapstructure:"supervisor_scope"`
	AccessTTL       time.Duration `mapstructure:"access_ttl"`
	RefreshTTL      time.Duration `mapstructure:"refresh_ttl"`
}

type OtelConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Stdout      bool   `mapstructure:"stdout"`
}

// TTL returns the configured token lifetimes.
func (c *Config) TTL() domain.TTLConfig {
	return domain.TTLConfig{Access: c.Token.AccessTTL, Refresh: c.Token.RefreshTTL}
}

// Validate checks the settings that have no safe fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.Token.SupervisorScope == "" {
		errs = append(errs, errors.New("token.supervisor_scope must not be empty"))
	}
	if c.Token.AccessTTL < 0 || c.Token.RefreshTTL < 0 {
		errs = append(errs, errors.New("token ttl values must not be negative"))
	}
	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis cache backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	if c.Crypto.KeyFile == "" || c.Crypto.TableFile == "" || c.Crypto.PepperFile == "" {
		errs = append(errs, errors.New("crypto.key_file, crypto.table_file and crypto.pepper_file are required"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "vident")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "vident")
	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("crypto.key_file", "./system/account/aes.json")
	v.SetDefault("crypto.table_file", "./system/account/emailenc.csv")
	v.SetDefault("crypto.pepper_file", "./system/account/pepper.hex")
	v.SetDefault("token.supervisor_scope", "supervisor")
	v.SetDefault("token.access_ttl", domain.DefaultAccessTTL)
	v.SetDefault("token.refresh_ttl", domain.DefaultRefreshTTL)
	v.SetDefault("otel.service_name", "vident")
	v.SetDefault("otel.stdout", false)
}

// Load reads configuration from defaults, an optional YAML file and
// VIDENT_* environment variables, in increasing precedence. With an empty
// path the file "vident.yaml" is searched in /etc/vident, $HOME/.vident and
// the working directory; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vident")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/vident/")
		v.AddConfigPath("$HOME/.vident")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
