package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Port          string `envconfig:"SERVER_PORT" default:"8080"`
	Env           string `envconfig:"ENVIRONMENT" default:"development"`
	DBSource      string `envconfig:"DB_SOURCE"`
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`

	SimplyBook SimplyBookConfig

	TaxRate            float64 `envconfig:"TAX_RATE" default:"1.21"`
	TaxIDFieldPosition int     `envconfig:"TAX_ID_FIELD_POSITION" default:"0"`
	BookingTimezone    string  `envconfig:"BOOKING_TIMEZONE" default:"Europe/Madrid"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// StaticDir serves the invoice page from disk instead of the embedded copy.
	StaticDir string `envconfig:"STATIC_DIR"`
}

// SimplyBookConfig holds the provider account. Credentials are checked when a
// token is requested, not here, so a missing one fails the webhook with a
// configuration error instead of preventing startup.
type SimplyBookConfig struct {
	BaseURL       string        `envconfig:"SIMPLYBOOK_API_URL" default:"https://user-api.simplybook.me"`
	Company       string        `envconfig:"SIMPLYBOOK_COMPANY"`
	User          string        `envconfig:"SIMPLYBOOK_USER"`
	Password      string        `envconfig:"SIMPLYBOOK_PASSWORD"`
	Timeout       time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s"`
	RetryMax      int           `envconfig:"UPSTREAM_RETRY_MAX" default:"0"`
	TokenCacheTTL time.Duration `envconfig:"TOKEN_CACHE_TTL" default:"0s"`
}

// Load reads an optional .env file and decodes the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("unable to read .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DBSource == "" {
			return fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.TaxRate <= 1 {
		return fmt.Errorf("TAX_RATE must be greater than 1, got %v", c.TaxRate)
	}
	if c.TaxIDFieldPosition < 0 {
		return fmt.Errorf("TAX_ID_FIELD_POSITION must not be negative")
	}
	if c.SimplyBook.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.SimplyBook.RetryMax < 0 {
		return fmt.Errorf("UPSTREAM_RETRY_MAX must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves BOOKING_TIMEZONE, the zone provider timestamps and query
// dates are expressed in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BookingTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", c.BookingTimezone, err)
	}
	return loc, nil
}
