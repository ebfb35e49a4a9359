package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every knob the client reads from the environment. A
// .env file in the working directory is honoured when present.
type Config struct {
	Authority struct {
		BaseURL      string        `envconfig:"AUTH_BASE_URL" default:"http://localhost:5000"`
		HTTPTimeout  time.Duration `envconfig:"AUTH_HTTP_TIMEOUT" default:"10s"`
		VerifyMethod string        `envconfig:"AUTH_VERIFY_METHOD" default:"POST"`
	}
	Login struct {
		Account  string `envconfig:"AUTH_ACCOUNT"`
		Password string `envconfig:"AUTH_PASSWORD"`
		Role     string `envconfig:"AUTH_ROLE" default:"employee"`
	}
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from the environment, after a best-effort
// .env load. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config from environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToUpper(c.Authority.VerifyMethod) {
	case http.MethodGet, http.MethodPost:
		c.Authority.VerifyMethod = strings.ToUpper(c.Authority.VerifyMethod)
	default:
		return fmt.Errorf("AUTH_VERIFY_METHOD must be GET or POST, got %q", c.Authority.VerifyMethod)
	}
	if c.Authority.BaseURL == "" {
		return fmt.Errorf("AUTH_BASE_URL must not be empty")
	}
	return nil
}
