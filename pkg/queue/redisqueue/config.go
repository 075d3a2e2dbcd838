package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings for the queue backend.
type Config struct {
	URL       string `env:"REDIS_URL"        envDefault:"redis://localhost:6379/0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"eventqueue"`
}

// LoadConfig reads the Redis backend configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse redis config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("redis url is required")
	}
	if c.KeyPrefix == "" {
		return errors.New("redis key prefix is required")
	}
	if strings.Contains(c.KeyPrefix, " ") {
		return fmt.Errorf("redis key prefix %q must not contain spaces", c.KeyPrefix)
	}
	return nil
}

// Connect builds a Redis client from a redis:// URL or a bare host:port and
// verifies it with PING.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opt *redis.Options
	if strings.HasPrefix(cfg.URL, "redis://") || strings.HasPrefix(cfg.URL, "rediss://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: cfg.URL}
	}
	// Blocking pops must return when the caller's context is canceled.
	opt.ContextTimeoutEnabled = true

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
