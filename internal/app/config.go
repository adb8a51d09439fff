package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/catalog-service/internal/directory"
	"github.com/xenking/catalog-service/internal/transport/natsbus"
)

// Config holds the complete application configuration, loadable from
// environment variables (CATALOG_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (CATALOG_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product images" flag:"image-base-url"`
	DefaultImage string `default:"" usage:"Image assigned to products and brands created without one" flag:"default-image"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (CATALOG_API_KEY_PEPPER)" flag:"api-key-pepper"`
	// IntegrationsFile lists upstream integrations. A missing file means
	// every tenant is served directly.
	IntegrationsFile string `default:"integrations.yaml" usage:"YAML file describing upstream integrations" flag:"integrations"`
	RateLimit        RateLimitConfig
	CORS             CORSConfig
	Graceful         GracefulConfig
	NATS             natsbus.Config
	Redis            RedisConfig
	Directory        directory.Config
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

// RedisConfig locates the distributor token cache. An empty Addr keeps
// tokens in process memory.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis address for the distributor token cache"`
	Password string `default:""`
	DB       int    `default:"0"`
}

// LoadConfig loads configuration from .env, environment variables and YAML
// config files.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CATALOG",
		Files:     []string{"config.yaml", "/etc/catalog/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CATALOG_DATABASE_URL or DATABASE_URL")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps DATABASE_URL and PORT, as set by hosting
// platforms, onto the CATALOG_-prefixed configuration.
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
