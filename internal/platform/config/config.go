package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// StorageBackend selects where session-durable values are kept.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageRedis    StorageBackend = "redis"
	StoragePostgres StorageBackend = "postgres"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string `env:"IDV_ADDR" envDefault:":8080"`
	BasePath      string `env:"IDV_BASE_PATH" envDefault:"/id-verification"`
	SiteName      string `env:"IDV_SITE_NAME" envDefault:"Open Learning"`
	LogLevel      string `env:"IDV_LOG_LEVEL" envDefault:"info"`
	SecureCookies bool   `env:"IDV_SECURE_COOKIES" envDefault:"false"`
	// Use a default for development - should be overridden in production
	SessionSigningKey string `env:"IDV_SESSION_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`

	// SessionTTL bounds how long captured query parameters survive.
	SessionTTL time.Duration `env:"IDV_SESSION_TTL" envDefault:"12h"`
	// MountIdleTTL evicts wizard mounts whose tab went away without saying so.
	MountIdleTTL time.Duration `env:"IDV_MOUNT_IDLE_TTL" envDefault:"30m"`

	Storage     StorageBackend `env:"IDV_STORAGE_BACKEND" envDefault:"memory"`
	DatabaseURL string         `env:"IDV_DATABASE_URL"`
	Redis       RedisConfig    `envPrefix:"REDIS_"`
	Audit       AuditConfig    `envPrefix:"AUDIT_"`
}

// RedisConfig configures the Redis client used by the redis storage backend.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// AuditConfig configures where wizard lifecycle events go. Without brokers
// events are only logged.
type AuditConfig struct {
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"idverify.wizard.audit"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg, err := env.ParseAs[Server]()
	if err != nil {
		return Server{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects combinations that cannot start.
func (c Server) Validate() error {
	if c.BasePath == "" || c.BasePath[0] != '/' {
		return fmt.Errorf("IDV_BASE_PATH must start with '/', got %q", c.BasePath)
	}
	if len(c.BasePath) > 1 && c.BasePath[len(c.BasePath)-1] == '/' {
		return fmt.Errorf("IDV_BASE_PATH must not end with '/', got %q", c.BasePath)
	}
	switch c.Storage {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis storage backend")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("IDV_DATABASE_URL is required for the postgres storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	return nil
}
