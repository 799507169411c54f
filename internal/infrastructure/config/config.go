package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

type Config struct {
	Port      string `env:"PORT,       default=8080"`
	Env       string `env:"ENV,        default=development"`
	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`
	SentryDSN string `env:"SENTRY_DSN"`
	// TrustProxy reads the client address from X-Forwarded-For.
	TrustProxy bool `env:"TRUST_PROXY, default=false"`

	// StoreDriver selects where principals live: mongo or memory.
	StoreDriver string `env:"STORE_DRIVER, default=mongo"`
	// RateLimitStore selects where limiter counters live: memory or redis.
	// Multi-instance deployments need redis.
	RateLimitStore string `env:"RATE_LIMIT_STORE, default=memory"`
	AuditWorkers   int    `env:"AUDIT_WORKERS,    default=4"`

	JWT       JWTConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Bootstrap BootstrapConfig
	Mongo     MongoConfig
	Redis     RedisConfig
}

type JWTConfig struct {
	AccessSecret  string        `env:"JWT_SECRET,         required"`
	RefreshSecret string        `env:"JWT_REFRESH_SECRET, required"`
	Issuer        string        `env:"JWT_ISSUER,         default=learnhub-identity"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL,   default=15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL,  default=168h"`
}

type LockoutConfig struct {
	MaxAttempts int           `env:"LOCKOUT_MAX_ATTEMPTS, default=5"`
	Duration    time.Duration `env:"LOCKOUT_DURATION,     default=2h"`
}

type RateLimitConfig struct {
	Window time.Duration `env:"RATE_LIMIT_WINDOW, default=15m"`
	Max    int           `env:"RATE_LIMIT_MAX,    default=5"`
}

// BootstrapConfig seeds a super-admin at start-up when both fields are set.
type BootstrapConfig struct {
	AdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	AdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=identity"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
	// MasterName enables sentinel mode.
	MasterName string `env:"REDIS_MASTER_NAME"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.StoreDriver != DriverMongo && c.StoreDriver != DriverMemory {
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q: want mongo or memory", c.StoreDriver))
	}
	if c.IsProduction() && c.StoreDriver == DriverMemory {
		errs = append(errs, errors.New("STORE_DRIVER=memory loses every account on restart; not allowed with ENV=production"))
	}
	if c.RateLimitStore != DriverMemory && c.RateLimitStore != DriverRedis {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_STORE %q: want memory or redis", c.RateLimitStore))
	}
	if (c.Bootstrap.AdminEmail == "") != (c.Bootstrap.AdminPassword == "") {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool { return c.Env == "production" }
