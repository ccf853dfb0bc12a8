package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Email    EmailConfig    `yaml:"email"`
	Cache    CacheConfig    `yaml:"cache"`
	Events   EventsConfig   `yaml:"events"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	BaseURL        string   `yaml:"base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	// URL selects the backend: mongodb:// and mongodb+srv:// use MongoDB,
	// anything else is a SQLite path (optionally sqlite:// or file: prefixed).
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	BcryptCost    int           `yaml:"bcrypt_cost"`
	BootstrapCode string        `yaml:"bootstrap_code"`
}

type StorageConfig struct {
	UploadDir      string        `yaml:"upload_dir"`
	UploadMaxBytes int64         `yaml:"upload_max_bytes"`
	MaxImagePixels int64         `yaml:"max_image_pixels"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepGrace     time.Duration `yaml:"sweep_grace"`
}

type EmailConfig struct {
	SMTP SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Enabled reports whether reply notifications should be sent.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

type EventsConfig struct {
	AMQPURL string `yaml:"amqp_url"`
	Queue   string `yaml:"queue"`
}

// Load reads the optional YAML file at path, loads .env when present and
// applies CATS_* environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	// MONGO_URL is kept for existing deployments.
	if v := os.Getenv("MONGO_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("CATS_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("CATS_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("CATS_BOOTSTRAP_CODE"); v != "" {
		c.Auth.BootstrapCode = v
	}
	if v := os.Getenv("CATS_SMTP_PASSWORD"); v != "" {
		c.Email.SMTP.Password = v
	}
	if v := os.Getenv("CATS_REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}
	if v := os.Getenv("CATS_AMQP_URL"); v != "" {
		c.Events.AMQPURL = v
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31")
	}
	if c.Email.SMTP.Enabled() {
		if c.Email.SMTP.Port == 0 {
			return fmt.Errorf("email.smtp.port is required")
		}
		if c.Email.SMTP.From == "" {
			return fmt.Errorf("email.smtp.from is required")
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5500
	}
	if c.Database.Name == "" {
		c.Database.Name = "catcharity"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "uploads"
	}
	if c.Storage.UploadMaxBytes == 0 {
		c.Storage.UploadMaxBytes = 10 * 1024 * 1024
	}
	if c.Storage.MaxImagePixels == 0 {
		c.Storage.MaxImagePixels = 40_000_000
	}
	if c.Storage.SweepInterval == 0 {
		c.Storage.SweepInterval = time.Hour
	}
	if c.Storage.SweepGrace == 0 {
		c.Storage.SweepGrace = time.Hour
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Events.Queue == "" {
		c.Events.Queue = "cat_charity.messages"
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// UsesMongo reports whether the database URL points at MongoDB.
func (c *Config) UsesMongo() bool {
	return strings.HasPrefix(c.Database.URL, "mongodb://") || strings.HasPrefix(c.Database.URL, "mongodb+srv://")
}
