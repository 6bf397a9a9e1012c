package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/respa-payments/internal/events"
	"github.com/xenking/respa-payments/internal/payment/bambora"
)

// Config holds the complete application configuration, loadable from
// environment variables (RESPA_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (RESPA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (RESPA_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Payments     PaymentsConfig
	Redis        RedisConfig
	Kafka        events.Config
	Expiry       ExpiryConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PaymentsConfig selects and configures the payment provider.
type PaymentsConfig struct {
	Bambora bambora.Config
}

// RedisConfig configures the notify de-duplication store.
type RedisConfig struct {
	Addr     string        `usage:"Redis address; empty disables notify de-duplication"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	DedupTTL time.Duration `default:"48h" usage:"How long processed notifications are remembered"`
}

// ExpiryConfig controls the sweep that expires unpaid orders.
type ExpiryConfig struct {
	Enabled  bool          `default:"true" usage:"Expire orders that were never paid"`
	Interval time.Duration `default:"1m" usage:"Sweep interval"`
	TTL      time.Duration `default:"30m" usage:"Age after which a waiting order expires"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from a local .env file, environment
// variables and YAML config files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	// .env is a convenience for local runs and usually absent.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "RESPA",
		Files:     []string{"config.yaml", "/etc/respa/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set RESPA_DATABASE_URL or DATABASE_URL")
	}
	if c.APIKeyPepper == "" {
		return errors.New("API key pepper is required: set RESPA_API_KEY_PEPPER")
	}
	if c.Expiry.Enabled && (c.Expiry.Interval <= 0 || c.Expiry.TTL <= 0) {
		return errors.New("expiry interval and TTL must be positive")
	}
	return c.Payments.Bambora.Validate()
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's RESPA_-prefixed configuration.
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
