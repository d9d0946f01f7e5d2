// Package config provides runtime configuration values for the kiosk.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/fairyhunter13/vending-kiosk/internal/obs"
)

// Action policies for a second action arriving while one is in flight.
const (
	PolicyQueue  = "queue"
	PolicyReject = "reject"
)

// Config holds configuration knobs for the kiosk server, the session
// client and the notification lifecycle.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" default:":3000"`
	VendingAPIURL   string        `env:"VENDING_API_URL" default:"http://localhost:8080/api/distributor"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"15s"`

	NotifyTTL         time.Duration `env:"NOTIFY_TTL" default:"4s"`
	DispenseNotifyTTL time.Duration `env:"DISPENSE_NOTIFY_TTL" default:"6s"`

	DefaultLocale string `env:"DEFAULT_LOCALE" default:"fr"`
	Currency      string `env:"CURRENCY" default:"MAD"`

	ActionPolicy     string `env:"ACTION_POLICY" default:"queue"`
	ActionBacklogMax int    `env:"ACTION_BACKLOG_MAX" default:"16"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"json"`

	AdminEnabled bool `env:"ADMIN_ENABLED" default:"false"`
}

// Load reads an optional .env file, then the environment, and validates.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		obs.Logger.Debug("env_file_absent", "error", err)
	}
	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	u, err := url.Parse(c.VendingAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("VENDING_API_URL must be an absolute URL, got %q", c.VendingAPIURL)
	}
	if c.NotifyTTL <= 0 || c.DispenseNotifyTTL <= 0 {
		return errors.New("NOTIFY_TTL and DISPENSE_NOTIFY_TTL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	switch c.ActionPolicy {
	case PolicyQueue, PolicyReject:
	default:
		return fmt.Errorf("ACTION_POLICY must be %q or %q, got %q", PolicyQueue, PolicyReject, c.ActionPolicy)
	}
	if c.ActionBacklogMax < 1 {
		return errors.New("ACTION_BACKLOG_MAX must be >= 1")
	}
	if c.Currency == "" {
		return errors.New("CURRENCY is required")
	}
	return nil
}
