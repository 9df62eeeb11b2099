// Package pg provides the durable subscription store on PostgreSQL using the
// pgx/v5 driver, plus the connection plumbing around it.
//
// The package exposes three cooperating building blocks:
//
//   - Config – a declarative struct whose fields are populated from
//     environment variables via github.com/caarlos0/env. It controls
//     connection pool limits, health-check cadence and startup retries.
//
//   - Connect – opens a *pgxpool.Pool based on Config, retrying until the
//     database becomes available.
//
//   - Store – the lifecycle.Store implementation. Subscription mutations use
//     an optimistic version check (UPDATE ... WHERE version = expected) and
//     write the applied event's outcome in the same transaction, which is
//     what makes at-least-once event delivery collapse to exactly-once
//     effects across process crashes.
//
// # Usage
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//	    panic(err)
//	}
//
//	ctx := context.Background()
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    panic(err)
//	}
//	defer pool.Close()
//
//	if err := pg.EnsureSchema(ctx, pool); err != nil {
//	    panic(err)
//	}
//	store := pg.NewStore(pool)
//
// # Error Handling
//
// Store methods translate driver errors into the lifecycle package's
// sentinels (ErrSubscriptionNotFound, ErrSubscriptionExists,
// ErrVersionConflict, ErrOutcomeNotFound) so the engine never sees
// pgx-specific failures. Helpers such as [pg.IsDuplicateKeyError] remain
// available for callers with their own queries.
package pg
