package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const (
	envPrefix      = "MERCADO"
	defaultAPIAddr = "0.0.0.0:8080"
	defaultWebAddr = "0.0.0.0:8081"
)

var configFiles = []string{"config.yaml", "/etc/mercado/config.yaml"}

// APIConfig configures the api-server: catalog, stock, orders, procurement
// and customers on PostgreSQL.
type APIConfig struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (MERCADO_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	BcryptCost   int    `default:"0" usage:"bcrypt cost for customer passwords (0 selects the library default)" flag:"bcrypt-cost"`
	Session      SessionConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// StorefrontConfig configures the storefront: carts in Redis and checkout
// against the api-server.
type StorefrontConfig struct {
	Addr      string        `default:"0.0.0.0:8081" usage:"Storefront listen address"`
	RedisURL  string        `usage:"Redis connection URL (MERCADO_REDIS_URL or REDIS_URL); empty keeps carts in memory" flag:"redis-url"`
	CartTTL   time.Duration `default:"720h" usage:"Idle lifetime of a stored cart" flag:"cart-ttl"`
	Upstream  UpstreamConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// UpstreamConfig points the storefront at the api-server.
type UpstreamConfig struct {
	BaseURL     string        `usage:"api-server base URL, e.g. http://localhost:8080" flag:"api-base-url"`
	APIKey      string        `usage:"API key with orders:write scope" flag:"api-key"`
	Timeout     time.Duration `default:"5s"  usage:"Per-request timeout"`
	MaxFailures uint32        `default:"5"   usage:"Consecutive failures that open the circuit breaker"`
	OpenTimeout time.Duration `default:"10s" usage:"How long the breaker stays open"`
}

// SessionConfig controls customer session tokens. Both services must share
// the secret.
type SessionConfig struct {
	Secret string        `usage:"HS256 secret for session tokens" flag:"jwt-secret"`
	Issuer string        `default:"mercado" usage:"Token issuer"`
	TTL    time.Duration `default:"24h" usage:"Token lifetime"`
}

// KafkaConfig enables order event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers; empty disables order events"`
	Topic   string   `default:"mercado.orders" usage:"Order events topic"`
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

func load(dst any) error {
	loader := aconfig.LoaderFor(dst, aconfig.Config{
		EnvPrefix: envPrefix,
		Files:     configFiles,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return errors.Wrap(err, "load config")
	}
	return nil
}

// LoadAPIConfig loads the api-server configuration from environment
// variables and YAML config files, then applies platform defaults.
func LoadAPIConfig() (*APIConfig, error) {
	var cfg APIConfig
	if err := load(&cfg); err != nil {
		return nil, err
	}
	cfg.applyPlatformDefaults()

	switch {
	case cfg.DatabaseURL == "":
		return nil, errors.New("database URL is required: set MERCADO_DATABASE_URL or DATABASE_URL")
	case cfg.APIKeyPepper == "":
		return nil, errors.New("API key pepper is required: set MERCADO_API_KEY_PEPPER")
	case cfg.Session.Secret == "":
		return nil, errors.New("session secret is required: set MERCADO_SESSION_SECRET")
	}
	return &cfg, nil
}

// LoadStorefrontConfig loads the storefront configuration.
func LoadStorefrontConfig() (*StorefrontConfig, error) {
	var cfg StorefrontConfig
	if err := load(&cfg); err != nil {
		return nil, err
	}
	cfg.applyPlatformDefaults()

	switch {
	case cfg.Upstream.BaseURL == "":
		return nil, errors.New("api-server URL is required: set MERCADO_UPSTREAM_BASE_URL")
	case cfg.Session.Secret == "":
		return nil, errors.New("session secret is required: set MERCADO_SESSION_SECRET")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's MERCADO_-prefixed configuration.
func (c *APIConfig) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	c.Addr = portOverride(c.Addr, defaultAPIAddr)
}

func (c *StorefrontConfig) applyPlatformDefaults() {
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	c.Upstream.BaseURL = strings.TrimRight(c.Upstream.BaseURL, "/")
	c.Addr = portOverride(c.Addr, defaultWebAddr)
}

// portOverride honours PORT only while addr is still the built-in default.
func portOverride(addr, def string) string {
	if port := os.Getenv("PORT"); port != "" && addr == def {
		return "0.0.0.0:" + port
	}
	return addr
}
