package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Addr               string        `env:"ADDR,default=:8080"`
	DatabaseDSN        string        `env:"DB_DSN,required=true"`
	JWTSecret          string        `env:"JWT_SECRET,required=true"`
	TokenTTL           time.Duration `env:"TOKEN_TTL,default=24h"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	MembershipCacheTTL time.Duration `env:"MEMBERSHIP_CACHE_TTL,default=5m"`
	LogLevel           string        `env:"LOG_LEVEL,default=INFO"`
	HistoryPageSize    int           `env:"HISTORY_PAGE_SIZE,default=10"`
	SendBufferSize     int           `env:"SEND_BUFFER_SIZE,default=256"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Load reads an optional .env file, then decodes the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HistoryPageSize < 1 {
		return fmt.Errorf("%w: HISTORY_PAGE_SIZE must be positive, got %d", ErrInvalidConfig, c.HistoryPageSize)
	}
	if c.SendBufferSize < 1 {
		return fmt.Errorf("%w: SEND_BUFFER_SIZE must be positive, got %d", ErrInvalidConfig, c.SendBufferSize)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: TOKEN_TTL must be positive", ErrInvalidConfig)
	}
	return nil
}

// CacheEnabled reports whether group memberships are cached in Redis.
func (c Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}
