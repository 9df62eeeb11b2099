// Package redis provides the Redis connection plumbing and the TTL'd
// idempotency outcome cache used in front of the durable subscription store.
//
// The package wraps the go-redis client and adds:
//
//   - Robust `Connect` which retries the connection using the supplied
//     configuration.
//   - `OutcomeCache`, a lifecycle.OutcomeCache implementation that answers
//     hot event redeliveries without a database round trip.
//   - Health-check helpers for liveness / readiness probes.
//
// Configuration is described by the `Config` struct whose fields can be
// populated from environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	ctx := context.Background()
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    // handle error, probably terminate the application
//	}
//	defer client.Close()
//
//	cache := redis.NewOutcomeCache(client, redis.WithTTL(12*time.Hour))
//	engine := lifecycle.NewEngine(store, prov, catalog,
//	    lifecycle.WithOutcomeCache(cache))
//
// The cache is best-effort by design: every read or write failure degrades to
// a cache miss and the durable store remains the source of truth.
package redis
