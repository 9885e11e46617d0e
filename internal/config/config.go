package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port          int    `mapstructure:"port"`
	MetricsPath   string `mapstructure:"metrics_path"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres, sqlite or memory
	Path     string `mapstructure:"path"`   // sqlite database file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	PoolSize int    `mapstructure:"pool_size"`
}

type RedisConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Addrs    []string `mapstructure:"addrs"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
	Cluster  bool     `mapstructure:"cluster"`
	Prefix   string   `mapstructure:"prefix"`
}

type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AccessTokenTTL    time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL   time.Duration `mapstructure:"refresh_token_ttl"`
	BootstrapEmail    string        `mapstructure:"bootstrap_email"`
	BootstrapPassword string        `mapstructure:"bootstrap_password"`
}

type CacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type AuditConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	BufferSize      int  `mapstructure:"buffer_size"`
	FlushIntervalMs int  `mapstructure:"flush_interval_ms"`
	RetentionDays   int  `mapstructure:"retention_days"`
}

type PolicyConfig struct {
	Timezone   string        `mapstructure:"timezone"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

type ConnectionConfig struct {
	AppConfigPath   string `mapstructure:"app_config_path"`
	RedirectPath    string `mapstructure:"redirect_path"`
	SubscriptionURL string `mapstructure:"subscription_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// ConnString returns the PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// IsSQLite returns true when the single-file store is selected.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// IsMemory returns true when the in-process store is selected.
func (d DatabaseConfig) IsMemory() bool {
	return d.Driver == "memory"
}

// Location resolves the policy timezone, falling back to UTC.
func (p PolicyConfig) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		log.Warnf("unknown policy timezone %q, using UTC: %v", p.Timezone, err)
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "cabinet.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "cabinet")
	v.SetDefault("database.name", "cabinet")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.prefix", "cabinet:rate")
	v.SetDefault("auth.jwt_secret", "changeme-secret")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.bootstrap_email", "admin@localhost")
	v.SetDefault("auth.bootstrap_password", "changeme")
	v.SetDefault("cache.size", 1000)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", 200)
	v.SetDefault("audit.flush_interval_ms", 500)
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("policy.timezone", "UTC")
	v.SetDefault("policy.rate_window", time.Minute)
	v.SetDefault("connection.redirect_path", "/miniapp/redirect.html")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads cabinet.yaml from the working directory (or the given paths),
// then overlays CABINET_* environment variables. A .env file is loaded first
// when present. A missing config file is not an error.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("failed to read .env: %v", err)
	}

	v := viper.New()
	v.SetConfigName("cabinet")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvPrefix("CABINET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

// SetupLogging applies the log section to the standard logrus logger.
func SetupLogging(cfg LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
