package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix                 = "MBLOG"
	defaultHTTPAddress        = "0.0.0.0:38321"
	defaultDatabaseDriver     = DriverSQLite
	defaultDatabasePath       = "mblog.db"
	defaultTokenHeader        = "token"
	defaultLogLevel           = "info"
	defaultLogEncoding        = "json"
	defaultSettingsCacheTTL   = 30
	defaultWebhookQueueSize   = 64
	defaultWebhookTimeoutSecs = 10

	// DriverSQLite selects the embedded SQLite store.
	DriverSQLite = "sqlite"
	// DriverMySQL selects a MySQL store reached through database.dsn.
	DriverMySQL = "mysql"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabaseDriver   string
	DatabasePath     string
	DatabaseDSN      string
	SigningSecret    string
	TokenHeader      string
	RedisAddress     string
	RedisPassword    string
	RedisDB          int
	SettingsCacheTTL time.Duration
	WebhookQueueSize int
	WebhookTimeout   time.Duration
	LogLevel         string
	LogEncoding      string
}

// dotEnvFiles are applied in order; the first file to set a variable wins.
var dotEnvFiles = []string{".env.local", ".env"}

// LoadDotEnv applies the dotenv files found in the working directory and returns the ones
// it applied. Variables already set in the process environment are kept. A file that exists
// but cannot be read or parsed is an error.
func LoadDotEnv() ([]string, error) {
	var applied []string
	for _, name := range dotEnvFiles {
		if _, err := os.Stat(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return applied, fmt.Errorf("dotenv %s: %w", name, err)
		}
		if err := godotenv.Load(name); err != nil {
			return applied, fmt.Errorf("dotenv %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.token_header", defaultTokenHeader)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.password", "")
	configViper.SetDefault("redis.db", 0)
	configViper.SetDefault("settings.cache_ttl_seconds", defaultSettingsCacheTTL)
	configViper.SetDefault("webhook.queue_size", defaultWebhookQueueSize)
	configViper.SetDefault("webhook.timeout_seconds", defaultWebhookTimeoutSecs)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabaseDriver:   strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:     configViper.GetString("database.path"),
		DatabaseDSN:      configViper.GetString("database.dsn"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		TokenHeader:      configViper.GetString("auth.token_header"),
		RedisAddress:     configViper.GetString("redis.address"),
		RedisPassword:    configViper.GetString("redis.password"),
		RedisDB:          configViper.GetInt("redis.db"),
		SettingsCacheTTL: time.Duration(configViper.GetInt("settings.cache_ttl_seconds")) * time.Second,
		WebhookQueueSize: configViper.GetInt("webhook.queue_size"),
		WebhookTimeout:   time.Duration(configViper.GetInt("webhook.timeout_seconds")) * time.Second,
		LogLevel:         configViper.GetString("log.level"),
		LogEncoding:      configViper.GetString("log.encoding"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.TokenHeader) == "" {
		return fmt.Errorf("auth.token_header is required")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverMySQL:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the mysql driver")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.DatabaseDriver)
	}
	if c.WebhookQueueSize <= 0 {
		return fmt.Errorf("webhook.queue_size must be positive")
	}
	return nil
}
