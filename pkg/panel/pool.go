package panel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pool routes panel calls across multiple panel instances and assigns new
// subscriptions to the least-loaded panel. Each panel is guarded by its own
// circuit breaker so one flapping instance does not absorb the retry budget
// of every subscription.
type Pool struct {
	mu       sync.RWMutex
	panels   map[string]Client
	breakers map[string]*circuitBreaker
	assigned map[string]int64

	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration
	log              *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger used for pool membership changes.
func WithPoolLogger(log *slog.Logger) PoolOption {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

// WithCircuitBreaker tunes the per-panel breaker thresholds.
func WithCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) PoolOption {
	return func(p *Pool) {
		p.failureThreshold = failureThreshold
		p.successThreshold = successThreshold
		p.recoveryTimeout = recoveryTimeout
	}
}

// NewPool creates an empty pool. Panels are registered with Add.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		panels:   make(map[string]Client),
		breakers: make(map[string]*circuitBreaker),
		assigned: make(map[string]int64),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add registers a panel under the given ID, replacing any previous client
// with that ID. The breaker state resets on replacement.
func (p *Pool) Add(panelID string, client Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.panels[panelID] = client
	p.breakers[panelID] = newCircuitBreaker(p.failureThreshold, p.successThreshold, p.recoveryTimeout)
	p.log.Info("panel added to pool", slog.String("panel_id", panelID))
}

// Remove drops a panel from the pool. In-flight calls are unaffected.
func (p *Pool) Remove(panelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.panels, panelID)
	delete(p.breakers, panelID)
	delete(p.assigned, panelID)
	p.log.Info("panel removed from pool", slog.String("panel_id", panelID))
}

// Assign picks the panel with the fewest assignments whose breaker admits
// traffic. The count is a local heuristic, not a persisted load metric.
func (p *Pool) Assign(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best string
	var bestCount int64 = -1
	for id := range p.panels {
		if cb := p.breakers[id]; cb != nil && !cb.allow() {
			continue
		}
		if bestCount == -1 || p.assigned[id] < bestCount {
			best = id
			bestCount = p.assigned[id]
		}
	}
	if best == "" {
		return "", ErrNoPanelAvailable
	}

	p.assigned[best]++
	return best, nil
}

func (p *Pool) CreateOrUpdateClient(ctx context.Context, panelID string, spec CredentialSpec) (CredentialRef, error) {
	client, cb, err := p.lookup(panelID)
	if err != nil {
		return CredentialRef{}, err
	}
	if !cb.allow() {
		return CredentialRef{}, Retryable(fmt.Errorf("%w: %s", ErrCircuitOpen, panelID))
	}

	ref, err := client.CreateOrUpdateClient(ctx, panelID, spec)
	cb.observe(err)
	return ref, err
}

func (p *Pool) SuspendClient(ctx context.Context, ref CredentialRef) error {
	client, cb, err := p.lookup(ref.PanelID)
	if err != nil {
		return err
	}
	if !cb.allow() {
		return Retryable(fmt.Errorf("%w: %s", ErrCircuitOpen, ref.PanelID))
	}

	err = client.SuspendClient(ctx, ref)
	cb.observe(err)
	return err
}

func (p *Pool) RemoveClient(ctx context.Context, ref CredentialRef) error {
	client, cb, err := p.lookup(ref.PanelID)
	if err != nil {
		return err
	}
	if !cb.allow() {
		return Retryable(fmt.Errorf("%w: %s", ErrCircuitOpen, ref.PanelID))
	}

	err = client.RemoveClient(ctx, ref)
	cb.observe(err)
	return err
}

func (p *Pool) QueryClient(ctx context.Context, ref CredentialRef) (*ClientState, error) {
	client, cb, err := p.lookup(ref.PanelID)
	if err != nil {
		return nil, err
	}
	if !cb.allow() {
		return nil, Retryable(fmt.Errorf("%w: %s", ErrCircuitOpen, ref.PanelID))
	}

	state, err := client.QueryClient(ctx, ref)
	cb.observe(err)
	return state, err
}

func (p *Pool) lookup(panelID string) (Client, *circuitBreaker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	client, ok := p.panels[panelID]
	if !ok {
		return nil, nil, Permanent(fmt.Errorf("%w: %s", ErrPanelNotFound, panelID))
	}
	return client, p.breakers[panelID], nil
}

// observe feeds a call result into the breaker. Permanent rejections do not
// trip the breaker: the panel answered, it just refused the request.
func (cb *circuitBreaker) observe(err error) {
	switch {
	case err == nil || IsPermanent(err):
		cb.recordSuccess()
	default:
		cb.recordFailure()
	}
}
