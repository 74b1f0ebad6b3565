package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"` // Bind address, empty for all interfaces.
	Port int    `yaml:"port"` // Listen port.
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // SQLite path or PostgreSQL DSN.
}

// JWTConfig holds session token settings.
type JWTConfig struct {
	Secret      string `yaml:"secret"`       // HS256 signing secret.
	ExpiryHours int    `yaml:"expiry-hours"` // Token lifetime in hours.
}

// Expiry returns the token lifetime as a duration.
func (j JWTConfig) Expiry() time.Duration {
	hours := j.ExpiryHours
	if hours <= 0 {
		hours = 72
	}
	return time.Duration(hours) * time.Hour
}

// RedisConfig holds optional redis settings for the pending-registration
// stash. When Addr is empty an in-memory stash is used instead.
type RedisConfig struct {
	Addr     string `yaml:"addr"`     // host:port, empty disables redis.
	Password string `yaml:"password"` // Optional password.
	DB       int    `yaml:"db"`       // Logical database index.
}

// OAuthProviderConfig holds credentials for one federated provider.
type OAuthProviderConfig struct {
	ClientID     string `yaml:"client-id"`     // OAuth application client ID.
	ClientSecret string `yaml:"client-secret"` // OAuth application client secret.
	RedirectURL  string `yaml:"redirect-url"`  // Registered callback URL.
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	File       string `yaml:"file"`        // Log file path, empty for stdout only.
	MaxSizeMB  int    `yaml:"max-size"`    // Max size per log file in MB.
	MaxBackups int    `yaml:"max-backups"` // Rotated files to keep.
	Debug      bool   `yaml:"debug"`       // Enables debug level logging.
}

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig                   `yaml:"server"`
	Database DatabaseConfig                 `yaml:"database"`
	JWT      JWTConfig                      `yaml:"jwt"`
	Redis    RedisConfig                    `yaml:"redis"`
	OAuth    map[string]OAuthProviderConfig `yaml:"oauth"`
	Logging  LoggingConfig                  `yaml:"logging"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	cfg := &Config{}
	if errDecode := yaml.Unmarshal(data, cfg); errDecode != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errDecode)
	}
	cfg.applyDefaults()
	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8317
	}
	if c.JWT.ExpiryHours == 0 {
		c.JWT.ExpiryHours = 72
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	for name, provider := range c.OAuth {
		if strings.TrimSpace(provider.ClientID) == "" || strings.TrimSpace(provider.ClientSecret) == "" {
			return fmt.Errorf("config: oauth.%s: client-id and client-secret are required", name)
		}
	}
	return nil
}
