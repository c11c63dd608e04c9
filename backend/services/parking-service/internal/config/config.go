package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	libconfig "parkpay/backend/libs/config"
	"parkpay/backend/services/parking-service/internal/tariff"
)

const defaultPort = "8085"

// HTTP holds listener settings.
type HTTP struct {
	Port              string        `yaml:"port" env:"PARKING_HTTP_PORT"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" env:"PARKING_HTTP_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout" env:"PARKING_HTTP_SHUTDOWN_TIMEOUT"`
}

// Database holds postgres settings.
type Database struct {
	DSN     string `yaml:"dsn" env:"PARKING_POSTGRES_DSN"`
	Migrate bool   `yaml:"migrate" env:"PARKING_POSTGRES_MIGRATE"`
}

// Redis holds cache and stream settings.
type Redis struct {
	Addr     string        `yaml:"addr" env:"PARKING_REDIS_ADDR"`
	Password string        `yaml:"password" env:"PARKING_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"PARKING_REDIS_DB"`
	RateTTL  time.Duration `yaml:"rateTTL" env:"PARKING_REDIS_RATE_TTL"`
}

// Auth holds operator token and admin key settings.
type Auth struct {
	JWTSecret    string        `yaml:"jwtSecret" env:"PARKING_JWT_SECRET"`
	TokenTTL     time.Duration `yaml:"tokenTTL" env:"PARKING_TOKEN_TTL"`
	BcryptCost   int           `yaml:"bcryptCost" env:"PARKING_BCRYPT_COST"`
	AdminKeyHash string        `yaml:"adminKeyHash" env:"PARKING_ADMIN_KEY_HASH"`
}

// Tariff holds payment reconciliation and fallback rate tables keyed by vehicle class.
type Tariff struct {
	Tolerance           string                          `yaml:"tolerance" env:"PARKING_TARIFF_TOLERANCE"`
	CompensationTimeout time.Duration                   `yaml:"compensationTimeout" env:"PARKING_COMPENSATION_TIMEOUT"`
	LocalTTL            time.Duration                   `yaml:"localTTL" env:"PARKING_TARIFF_LOCAL_TTL"`
	Rates               map[string]tariff.RateTableSpec `yaml:"rates" env:"-"`
}

// Audit holds event dispatch settings.
type Audit struct {
	Buffer       int    `yaml:"buffer" env:"PARKING_AUDIT_BUFFER"`
	Stream       string `yaml:"stream" env:"PARKING_AUDIT_STREAM"`
	StreamMaxLen int64  `yaml:"streamMaxLen" env:"PARKING_AUDIT_STREAM_MAXLEN"`
}

// WebSocket holds live feed settings.
type WebSocket struct {
	PingInterval time.Duration `yaml:"pingInterval" env:"PARKING_WS_PING_INTERVAL"`
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"PARKING_WS_WRITE_TIMEOUT"`
}

// Config defines parking service configuration.
type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Auth      Auth      `yaml:"auth"`
	Tariff    Tariff    `yaml:"tariff"`
	Audit     Audit     `yaml:"audit"`
	WebSocket WebSocket `yaml:"websocket"`
}

// Default returns configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		HTTP: HTTP{
			Port:              defaultPort,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Database: Database{Migrate: true},
		Auth:     Auth{TokenTTL: 12 * time.Hour},
		Redis: Redis{
			Addr:    "localhost:6379",
			RateTTL: 10 * time.Minute,
		},
		Tariff: Tariff{
			Tolerance:           "0.50",
			CompensationTimeout: 5 * time.Second,
			LocalTTL:            30 * time.Second,
		},
		Audit: Audit{
			Buffer:       256,
			Stream:       "parking:audit",
			StreamMaxLen: 100000,
		},
		WebSocket: WebSocket{
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database dsn required")
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis addr required")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("jwt secret required")
	}
	if strings.TrimSpace(c.Auth.AdminKeyHash) == "" {
		return errors.New("admin key hash required")
	}
	tolerance, err := c.ToleranceAmount()
	if err != nil {
		return err
	}
	if !tolerance.IsPositive() {
		return errors.New("tariff tolerance must be positive")
	}
	for class, spec := range c.Tariff.Rates {
		if _, err := tariff.ParseRateTable(class, spec); err != nil {
			return fmt.Errorf("tariff rates: %w", err)
		}
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// ToleranceAmount parses the reconciliation tolerance.
func (c *Config) ToleranceAmount() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Tariff.Tolerance)
	if raw == "" {
		return decimal.RequireFromString("0.50"), nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("tariff tolerance: %w", err)
	}
	return d, nil
}
