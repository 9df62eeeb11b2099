package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vpnlab/subkit/pkg/lifecycle"
)

// OutcomeCache is a TTL'd read-through cache for applied-event outcomes,
// keyed by idempotency key. It sits in front of the durable store so hot
// redeliveries (webhook retry storms) are answered without a database round
// trip. Misses and cache failures fall through to the store; the cache is
// never authoritative.
type OutcomeCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

var _ lifecycle.OutcomeCache = (*OutcomeCache)(nil)

// OutcomeCacheOption configures an OutcomeCache.
type OutcomeCacheOption func(*OutcomeCache)

// WithTTL sets how long cached outcomes live. The TTL only bounds cache
// memory; the durable store keeps outcomes indefinitely.
func WithTTL(ttl time.Duration) OutcomeCacheOption {
	return func(c *OutcomeCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces cache keys when the Redis database is shared.
func WithKeyPrefix(prefix string) OutcomeCacheOption {
	return func(c *OutcomeCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) OutcomeCacheOption {
	return func(c *OutcomeCache) {
		if log != nil {
			c.log = log
		}
	}
}

// NewOutcomeCache creates an outcome cache over an established client.
func NewOutcomeCache(client redis.UniversalClient, opts ...OutcomeCacheOption) *OutcomeCache {
	if client == nil {
		panic("redis: client is required")
	}

	c := &OutcomeCache{
		client: client,
		ttl:    24 * time.Hour,
		prefix: "outcome:",
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached outcome for an idempotency key. Any failure is
// reported as a miss.
func (c *OutcomeCache) Get(ctx context.Context, idempotencyKey string) (*lifecycle.Outcome, bool) {
	raw, err := c.client.Get(ctx, c.prefix+idempotencyKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warn("outcome cache read failed", slog.String("error", err.Error()))
		return nil, false
	}

	var out lifecycle.Outcome
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Warn("outcome cache entry corrupted", slog.String("error", err.Error()))
		return nil, false
	}
	return &out, true
}

// Set stores the outcome with the configured TTL. Failures are logged and
// swallowed; the durable store already holds the outcome.
func (c *OutcomeCache) Set(ctx context.Context, idempotencyKey string, outcome lifecycle.Outcome) {
	raw, err := json.Marshal(outcome)
	if err != nil {
		c.log.Warn("outcome cache encode failed", slog.String("error", err.Error()))
		return
	}
	if err := c.client.Set(ctx, c.prefix+idempotencyKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn("outcome cache write failed", slog.String("error", err.Error()))
	}
}
