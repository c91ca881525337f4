package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	Store     string `env:"STORE,     default=memory"`
	SeedAdmin SeedAdminConfig

	Auth   AuthConfig
	Ledger LedgerConfig

	Mongo    MongoConfig
	Redis    RedisConfig
	Postgres PostgresConfig
}

type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET, required"`
	Issuer     string        `env:"JWT_ISSUER,  default=ledger-gateway"`
	TokenTTL   time.Duration `env:"TOKEN_TTL,   default=1h"`
	BcryptCost int           `env:"BCRYPT_COST, default=10"`
}

type LedgerConfig struct {
	LockTimeout    time.Duration `env:"LEDGER_LOCK_TIMEOUT, default=5s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL,     default=24h"`
	AuditWorkers   int           `env:"AUDIT_WORKERS,       default=4"`
}

type SeedAdminConfig struct {
	Username string `env:"SEED_ADMIN_USERNAME"`
	Password string `env:"SEED_ADMIN_PASSWORD"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=ledger_gateway"`
}

// RedisConfig enables the Redis idempotency store when Addr is set.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

// PostgresConfig switches the ledger to PostgreSQL when DSN is set.
type PostgresConfig struct {
	DSN string `env:"LEDGER_POSTGRES_DSN"`
}

// IsProduction reports whether pretty console logging should be off.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads configuration through lookuper. Pass envconfig.OsLookuper() in
// main and an envconfig.MapLookuper in tests.
func Load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store != StoreMemory && c.Store != StoreMongo {
		return fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StoreMongo, c.Store)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	if c.Auth.TokenTTL < time.Second {
		return fmt.Errorf("TOKEN_TTL must be at least 1s")
	}
	if (c.SeedAdmin.Username == "") != (c.SeedAdmin.Password == "") {
		return fmt.Errorf("SEED_ADMIN_USERNAME and SEED_ADMIN_PASSWORD must be set together")
	}
	return nil
}
