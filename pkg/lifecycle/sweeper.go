package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Sweeper periodically scans for active subscriptions whose paid period has
// ended and feeds synthetic expiry events into the engine. The idempotency key
// is derived from the subscription and its endAt, so overlapping sweeps and
// sweeper restarts collapse to a single applied expiry per period.
type Sweeper struct {
	store  Store
	engine *Engine

	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the scan period.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweeperClock overrides the time source, for tests.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweeperLogger sets the logger.
func WithSweeperLogger(log *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSweeper creates an expiry sweeper over the given store and engine.
func NewSweeper(store Store, engine *Engine, opts ...SweeperOption) *Sweeper {
	if store == nil {
		panic("lifecycle: Store is required")
	}
	if engine == nil {
		panic("lifecycle: Engine is required")
	}

	s := &Sweeper{
		store:    store,
		engine:   engine,
		interval: time.Minute,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweep loop until the context is cancelled. It returns the
// context's error, which makes it a drop-in errgroup task.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("expiry sweep finished with errors",
					slog.String("error", err.Error()))
			}
		}
	}
}

// SweepOnce performs a single scan and returns how many expiries were applied
// as fresh transitions. Per-subscription failures do not stop the sweep; they
// are joined into the returned error.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.store.ListActiveBefore(ctx, now)
	if err != nil {
		return 0, err
	}

	var (
		applied int
		errs    []error
	)
	for _, id := range ids {
		sub, err := s.store.Load(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if sub.Status != StatusActive || sub.EndAt == nil {
			// Raced with a concurrent transition since the listing.
			continue
		}

		out, err := s.engine.Apply(ctx, Event{
			Kind:           EventExpiredTick,
			SubscriptionID: sub.ID,
			IdempotencyKey: ExpiryKey(sub.ID, *sub.EndAt),
			OccurredAt:     now,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !out.Duplicate && !out.NoOp {
			applied++
		}
	}

	if applied > 0 {
		s.log.Info("expiry sweep applied transitions", slog.Int("expired", applied))
	}
	return applied, errors.Join(errs...)
}
