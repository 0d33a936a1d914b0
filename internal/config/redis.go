package config

// Redis backs the token blocklist, OAuth state and the distributed rate
// limiter. Unlike response caching, revocation cannot degrade gracefully,
// so the client constructor reports connection failures to the caller.

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis connection.
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand (used when host/port are not both set)
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS
//   REDIS_OP_TIMEOUT – per-command timeout used by request paths
type RedisConfig struct {
	Host      string        `env:"HOST"`
	Port      string        `env:"PORT"`
	Addr      string        `env:"ADDR" envDefault:"localhost:6379"`
	Password  string        `env:"PASSWORD"`
	DB        int           `env:"DB" envDefault:"0"`
	TLS       bool          `env:"TLS" envDefault:"false"`
	OpTimeout time.Duration `env:"OP_TIMEOUT" envDefault:"500ms"`
	Prefix    string        `env:"REVOKED_PREFIX" envDefault:"revoked"`
}

// Address resolves the host:port pair to dial.
func (c RedisConfig) Address() string {
	if c.Host != "" && c.Port != "" {
		return c.Host + ":" + c.Port
	}
	return c.Addr
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout. The client is returned even when the ping fails so callers can
// retry it during bootstrap.
func NewRedisClient(c RedisConfig) (*redis.Client, error) {
	var tlsConf *tls.Config
	if c.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:         c.Address(),
		Password:     c.Password,
		DB:           c.DB,
		TLSConfig:    tlsConf,
		ReadTimeout:  c.OpTimeout,
		WriteTimeout: c.OpTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("ping redis %s: %w", c.Address(), err)
	}
	return client, nil
}
