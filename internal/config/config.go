package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type (
	Config struct {
		HTTP     HTTP
		Upstream Upstream
		Auth     Auth
		Log      Log

		DatabaseURL   string        `env:"DATABASE_URL"`
		ScreensFile   string        `env:"CONSOLE_SCREENS_FILE"`
		SweepInterval time.Duration `env:"CONSOLE_SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	}

	HTTP struct {
		Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	}

	Upstream struct {
		BaseURL   string        `env:"QBITS_BASE_URL" envDefault:"https://qbits.quickestimate.co/api/v1"`
		Timeout   time.Duration `env:"QBITS_TIMEOUT" envDefault:"20s"`
		RateLimit float64       `env:"QBITS_RATE_LIMIT" envDefault:"10"`
		RateBurst int           `env:"QBITS_RATE_BURST" envDefault:"20"`
	}

	Auth struct {
		JWTSecret  string        `env:"AUTH_JWT_SECRET,required"`
		SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"12h"`
	}

	Log struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
	}
)

const minSecretLength = 16

// NewConfig reads the process configuration from the environment.
func NewConfig() (Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return *cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	if len(c.Auth.JWTSecret) < minSecretLength {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes", minSecretLength)
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("QBITS_BASE_URL is empty")
	}
	if c.SweepInterval <= 0 {
		return errors.New("CONSOLE_SESSION_SWEEP_INTERVAL must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not json or console", c.Log.Format)
	}
	return nil
}
