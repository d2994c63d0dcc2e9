package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist records revoked tokens until their natural expiry. Logout
// revokes the refresh token; the already-issued access token stays valid for
// its remaining minutes.
type TokenBlacklist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// RedisBlacklist keys revoked tokens by digest so raw token material never
// lands in redis. Expiry is delegated to redis TTLs.
type RedisBlacklist struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewRedisBlacklist(cfg RedisConfig) (*RedisBlacklist, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "auth:revoked:"
	}

	return &RedisBlacklist{client: client, prefix: prefix}, nil
}

func (b *RedisBlacklist) key(token string) string {
	digest := sha256.Sum256([]byte(token))
	return b.prefix + hex.EncodeToString(digest[:])
}

func (b *RedisBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired; nothing to remember.
		return nil
	}
	if err := b.client.Set(ctx, b.key(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	exists, err := b.client.Exists(ctx, b.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return exists > 0, nil
}

func (b *RedisBlacklist) Close() error {
	return b.client.Close()
}

// NoopBlacklist is used when no redis is configured: logout then leaves issued
// tokens valid until their own expiry.
type NoopBlacklist struct{}

func (NoopBlacklist) Revoke(context.Context, string, time.Duration) error { return nil }

func (NoopBlacklist) IsRevoked(context.Context, string) (bool, error) { return false, nil }
