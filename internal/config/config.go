package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; nested groups share a prefix (REDIS_, RATE_LIMIT_,
// AMQP_, OAUTH_).
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`   // application environment (dev/test/prod)
	Port string `env:"APP_PORT" envDefault:"8080"` // HTTP port to listen on

	DBUser string `env:"DB_USER,required,notEmpty"` // database username
	DBPass string `env:"DB_PASS"`                   // database password (empty allowed)
	DBHost string `env:"DB_HOST,required,notEmpty"` // database host address
	DBPort string `env:"DB_PORT" envDefault:"3306"`
	DBName string `env:"DB_NAME,required,notEmpty"`

	// MigrateOnStart applies the embedded schema migrations before serving.
	MigrateOnStart bool `env:"DB_MIGRATE" envDefault:"true"`

	JWTSecret      string `env:"JWT_SECRET,required,notEmpty"`           // secret used to sign JWTs
	JWTIssuer      string `env:"JWT_ISSUER" envDefault:"auth-service"`   // iss claim
	AccessTTLMin   int    `env:"ACCESS_TOKEN_TTL_MIN" envDefault:"15"`   // access token lifetime in minutes
	RefreshTTLDays int    `env:"REFRESH_TOKEN_TTL_DAYS" envDefault:"30"` // refresh token lifetime in days
	BcryptCost     int    `env:"BCRYPT_COST" envDefault:"12"`            // bcrypt cost factor

	// StoreTimeout bounds every request-scoped database call.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	// BootstrapTimeout bounds how long startup waits for MySQL and Redis.
	BootstrapTimeout time.Duration `env:"BOOTSTRAP_TIMEOUT" envDefault:"1m"`

	// PublicBaseURL is the externally visible base of this service; OAuth
	// callback URLs are built from it.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	Redis     RedisConfig     `envPrefix:"REDIS_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	AMQP      AMQPConfig      `envPrefix:"AMQP_"`
	OAuth     OAuthConfig     `envPrefix:"OAUTH_"`
}

// AMQPConfig controls login event publishing. An empty URL disables it.
type AMQPConfig struct {
	URL   string `env:"URL"`
	Queue string `env:"QUEUE" envDefault:"auth.login"`
}

// Load reads an optional .env file and then parses the process environment.
// Missing required variables are reported together in the returned error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.RateLimit.normalize()
	if cfg.AccessTTLMin < 1 {
		return Config{}, fmt.Errorf("invalid ACCESS_TOKEN_TTL_MIN: %d", cfg.AccessTTLMin)
	}
	if cfg.RefreshTTLDays < 1 {
		return Config{}, fmt.Errorf("invalid REFRESH_TOKEN_TTL_DAYS: %d", cfg.RefreshTTLDays)
	}
	return cfg, nil
}

// AccessTTL returns the access token lifetime.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

// RefreshTTL returns the refresh token lifetime.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool { return c.Env == "dev" || c.Env == "development" }
