package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"user_consent_gate/internal/consent"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Store    StoreConfig    `mapstructure:"store"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Consent  ConsentConfig  `mapstructure:"user_consent"`
}

// ServerConfig.TrustProxyHeaders takes client addresses from X-Forwarded-For
// and X-Real-IP. Set it only behind a proxy that overwrites them.
type ServerConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	TrustProxyHeaders bool   `mapstructure:"trust_proxy_headers"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig holds the event bus connection. An empty URL disables publishing.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// StoreConfig selects the confirmation store backend: "postgres", "redis" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// ConsentConfig mirrors the user_consent_* site settings.
type ConsentConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ReaffirmDays int    `mapstructure:"reaffirm_days"`
	RedirectURL  string `mapstructure:"redirect_url"`
	StoreIP      bool   `mapstructure:"store_ip"`
}

var defaults = map[string]any{
	"server.host":                "0.0.0.0",
	"server.port":                8080,
	"server.trust_proxy_headers": false,
	"database.host":              "localhost",
	"database.port":              5432,
	"database.user":              "postgres",
	"database.password":          "postgres",
	"database.dbname":            "user_consent",
	"database.sslmode":           "disable",
	"redis.host":                 "localhost",
	"redis.port":                 6379,
	"redis.password":             "",
	"redis.db":                   0,
	"nats.url":                   "nats://localhost:4222",
	"store.driver":               "postgres",
	"auth.jwt_secret":            "",
	"log.level":                  "info",
	"log.json":                   false,
	"user_consent.enabled":       false,
	"user_consent.reaffirm_days": 0,
	"user_consent.redirect_url":  "",
	"user_consent.store_ip":      false,
}

// Load reads configuration from the environment. Keys map to upper-case
// variables with dots replaced by underscores (database.dbname -> DATABASE_DBNAME).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Consent.ReaffirmDays < 0 {
		return fmt.Errorf("user_consent.reaffirm_days must be non-negative, got %d", c.Consent.ReaffirmDays)
	}

	switch c.Store.Driver {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	return nil
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Policy returns the reaffirmation policy the decision engine and the
// confirmation service read.
func (c *Config) Policy() consent.Policy {
	return consent.Policy{
		Enabled:      c.Consent.Enabled,
		ReaffirmDays: c.Consent.ReaffirmDays,
		RedirectURL:  c.Consent.RedirectURL,
		StoreIP:      c.Consent.StoreIP,
	}
}
