package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sentinel-engine/internal/incident"
)

// RedisConfig configures the Redis-backed archive.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	Retention time.Duration `yaml:"retention"`
}

// DefaultRedisConfig returns the default Redis archive configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "sentinel:incident:",
		Retention: Retention,
	}
}

// RedisStore archives incidents as JSON values with a retention TTL.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = Retention
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		retention: cfg.Retention,
	}, nil
}

// Archive stores the incident under its ID with the retention TTL.
func (r *RedisStore) Archive(ctx context.Context, inc *incident.SecurityIncident) error {
	data, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("failed to marshal incident: %w", err)
	}
	if err := r.client.Set(ctx, r.keyPrefix+inc.ID, data, r.retention).Err(); err != nil {
		return fmt.Errorf("failed to archive incident %s: %w", inc.ID, err)
	}
	return nil
}

// Fetch returns an archived incident by ID.
func (r *RedisStore) Fetch(ctx context.Context, id string) (*incident.SecurityIncident, error) {
	data, err := r.client.Get(ctx, r.keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch incident %s: %w", id, err)
	}

	var inc incident.SecurityIncident
	if err := json.Unmarshal(data, &inc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident %s: %w", id, err)
	}
	return &inc, nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
