package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (DISCOUNT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (DISCOUNT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`

	// DefaultCapPercent is the system-wide ceiling on the combined discount
	// as a percentage of the cart total.
	DefaultCapPercent int `default:"30" usage:"Ceiling on combined discounts as percent of cart total" flag:"default-cap-percent"`

	CORS     CORSConfig
	Graceful GracefulConfig
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// CapPercent returns the configured ceiling as a decimal percentage.
func (c *Config) CapPercent() decimal.Decimal {
	return decimal.NewFromInt(int64(c.DefaultCapPercent))
}

// LoadConfig loads configuration from environment variables and YAML config
// files, applying platform defaults for DATABASE_URL and PORT.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DISCOUNT",
		Files:     []string{"config.yaml", "/etc/discount-engine/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set DISCOUNT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.DefaultCapPercent < 0 || cfg.DefaultCapPercent > 100 {
		return nil, errors.Errorf("default cap percent must be in [0,100], got %d", cfg.DefaultCapPercent)
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables using
// standard names (DATABASE_URL, PORT) onto the DISCOUNT_-prefixed config.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
