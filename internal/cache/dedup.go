// Package cache provides a Redis-backed presence cache for alert
// signature hashes. It is a fast path in front of the store's uniqueness
// guarantee, never a source of truth.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DedupKeyPrefix namespaces signature-hash keys.
	DedupKeyPrefix = "chainguardian:alert:"

	// DefaultDedupTTL keeps entries long enough to absorb replayed
	// submissions without growing unbounded.
	DefaultDedupTTL = 24 * time.Hour
)

// AlertDedup caches seen signature hashes. All Redis errors degrade to
// "not seen": a cache outage costs an extra store lookup, never a
// dropped alert.
type AlertDedup struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewAlertDedup connects to Redis using a redis:// URL.
func NewAlertDedup(redisURL string, logger *slog.Logger) (*AlertDedup, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &AlertDedup{
		rdb:    redis.NewClient(opts),
		ttl:    DefaultDedupTTL,
		logger: logger,
	}, nil
}

// NewAlertDedupWithClient wraps an existing client (tests).
func NewAlertDedupWithClient(rdb *redis.Client, logger *slog.Logger) *AlertDedup {
	return &AlertDedup{rdb: rdb, ttl: DefaultDedupTTL, logger: logger}
}

// Seen reports whether the signature hash was marked recently.
func (d *AlertDedup) Seen(ctx context.Context, sigHash string) bool {
	exists, err := d.rdb.Exists(ctx, DedupKeyPrefix+sigHash).Result()
	if err != nil {
		d.logger.Warn("dedup cache check failed", "sig_hash", sigHash, "error", err)
		return false
	}
	return exists > 0
}

// Mark records the signature hash. Best effort.
func (d *AlertDedup) Mark(ctx context.Context, sigHash string) {
	if err := d.rdb.Set(ctx, DedupKeyPrefix+sigHash, "1", d.ttl).Err(); err != nil {
		d.logger.Warn("dedup cache mark failed", "sig_hash", sigHash, "error", err)
	}
}

// Ping verifies connectivity for health checks.
func (d *AlertDedup) Ping(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (d *AlertDedup) Close() error {
	return d.rdb.Close()
}
