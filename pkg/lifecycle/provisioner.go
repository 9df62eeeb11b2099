package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vpnlab/subkit/pkg/async"
	"github.com/vpnlab/subkit/pkg/panel"
)

// ProvisionJob describes one desired provisioning action for a subscription.
type ProvisionJob struct {
	SubscriptionID uuid.UUID
	Desired        DesiredState

	// Spec is the credential shape for DesiredActive actions.
	Spec panel.CredentialSpec

	// Ref pins the panel for subscriptions that were provisioned before. A
	// zero ref means no credential exists yet and a panel must be assigned.
	Ref panel.CredentialRef
}

// ProvisionResult is the terminal outcome of a provisioning action.
type ProvisionResult struct {
	SubscriptionID uuid.UUID
	Desired        DesiredState

	// Ref is the credential reference, set for successful activations.
	Ref panel.CredentialRef

	// ExpiresAt echoes the expiry the panel was converged to, used by the
	// engine to set endAt when the activation commits.
	ExpiresAt time.Time

	Attempts   int
	Superseded bool
	Err        error
}

// Provisioner serializes panel calls per subscription through a single-slot
// mailbox and bounds cross-subscription parallelism with a worker semaphore.
// At most one panel call is in flight per subscription; enqueueing while an
// action is queued but not started replaces it, so action storms collapse to
// the latest desired state.
type Provisioner struct {
	panel    panel.Client
	selector panel.Selector

	maxAttempts int
	callTimeout time.Duration
	backoff     BackoffStrategy
	log         *slog.Logger

	sem chan struct{}

	mu     sync.Mutex
	boxes  map[uuid.UUID]*mailbox
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// onResult feeds finished (non-superseded) results back into the engine
	// for state finalization.
	onResult func(context.Context, ProvisionResult)
}

type mailbox struct {
	pending *pendingJob // single slot: a newer action replaces an unstarted one
	running bool
}

type pendingJob struct {
	job     ProvisionJob
	resolve async.Resolve[ProvisionResult]
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithMaxAttempts bounds panel call retries per action, including the first
// attempt.
func WithMaxAttempts(n int) ProvisionerOption {
	return func(p *Provisioner) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithCallTimeout bounds each individual panel call.
func WithCallTimeout(d time.Duration) ProvisionerOption {
	return func(p *Provisioner) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(b BackoffStrategy) ProvisionerOption {
	return func(p *Provisioner) {
		if b != nil {
			p.backoff = b
		}
	}
}

// WithParallelism bounds concurrent panel calls across subscriptions,
// respecting the remote panel's rate limits.
func WithParallelism(n int) ProvisionerOption {
	return func(p *Provisioner) {
		if n > 0 {
			p.sem = make(chan struct{}, n)
		}
	}
}

// WithProvisionerLogger sets the logger.
func WithProvisionerLogger(log *slog.Logger) ProvisionerOption {
	return func(p *Provisioner) {
		if log != nil {
			p.log = log
		}
	}
}

// NewProvisioner creates a provisioning queue over the given panel client.
// The selector assigns a panel to subscriptions provisioned for the first
// time; use panel.StaticSelector for single-panel deployments.
func NewProvisioner(client panel.Client, selector panel.Selector, opts ...ProvisionerOption) *Provisioner {
	if client == nil {
		panic("lifecycle: panel.Client is required")
	}
	if selector == nil {
		panic("lifecycle: panel.Selector is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provisioner{
		panel:       client,
		selector:    selector,
		maxAttempts: 5,
		callTimeout: 15 * time.Second,
		backoff:     DefaultBackoff(),
		log:         slog.Default(),
		sem:         make(chan struct{}, 4),
		boxes:       make(map[uuid.UUID]*mailbox),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue submits the desired action for a subscription. The returned future
// resolves with the action's terminal result, or with ErrSuperseded when a
// newer action replaced it before it started.
func (p *Provisioner) Enqueue(job ProvisionJob) *async.Future[ProvisionResult] {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		res := ProvisionResult{SubscriptionID: job.SubscriptionID, Desired: job.Desired, Err: ErrProvisionerClosed}
		return async.Resolved(res, ErrProvisionerClosed)
	}

	box, ok := p.boxes[job.SubscriptionID]
	if !ok {
		box = &mailbox{}
		p.boxes[job.SubscriptionID] = box
	}

	future, resolve := async.NewFuture[ProvisionResult]()

	if old := box.pending; old != nil {
		p.log.Debug("provisioning action superseded",
			slog.String("subscription_id", job.SubscriptionID.String()),
			slog.String("old_desired", string(old.job.Desired)),
			slog.String("new_desired", string(job.Desired)))
		old.resolve(ProvisionResult{
			SubscriptionID: old.job.SubscriptionID,
			Desired:        old.job.Desired,
			Superseded:     true,
			Err:            ErrSuperseded,
		}, ErrSuperseded)
	}
	box.pending = &pendingJob{job: job, resolve: resolve}

	if !box.running {
		box.running = true
		p.wg.Add(1)
		go p.drain(job.SubscriptionID)
	}
	p.mu.Unlock()

	return future
}

// Close stops accepting actions, cancels in-flight backoff waits, and waits
// for workers to settle.
func (p *Provisioner) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// setResultHandler is wired by the engine at construction time.
func (p *Provisioner) setResultHandler(h func(context.Context, ProvisionResult)) {
	p.onResult = h
}

// drain runs the mailbox loop for one subscription: take the pending action,
// execute it, then re-check the mailbox for a newer action before idling.
func (p *Provisioner) drain(subID uuid.UUID) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		box := p.boxes[subID]
		pj := box.pending
		box.pending = nil
		if pj == nil {
			box.running = false
			delete(p.boxes, subID)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		select {
		case p.sem <- struct{}{}:
		case <-p.ctx.Done():
			pj.resolve(ProvisionResult{
				SubscriptionID: subID,
				Desired:        pj.job.Desired,
				Err:            ErrProvisionerClosed,
			}, ErrProvisionerClosed)
			continue
		}

		res := p.execute(pj.job)
		<-p.sem

		pj.resolve(res, res.Err)

		if h := p.onResult; h != nil && !res.Superseded {
			// Finalization runs on a fresh context so a shutdown does not
			// abandon a panel effect that already happened.
			h(context.Background(), res)
		}
	}
}

// execute runs one action against the panel with bounded retries.
func (p *Provisioner) execute(job ProvisionJob) ProvisionResult {
	res := ProvisionResult{
		SubscriptionID: job.SubscriptionID,
		Desired:        job.Desired,
		Ref:            job.Ref,
		ExpiresAt:      job.Spec.ExpiresAt,
	}

	if job.Desired == DesiredActive && job.Ref.IsZero() {
		panelID, err := p.selector.Assign(p.ctx)
		if err != nil {
			res.Err = err
			return res
		}
		job.Ref = panel.CredentialRef{PanelID: panelID, CredentialID: job.Spec.CredentialID}
		res.Ref = job.Ref
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		res.Attempts = attempt

		ref, err := p.attempt(job)
		if err == nil {
			res.Ref = ref
			res.Err = nil
			return res
		}
		lastErr = err

		if panel.IsPermanent(err) {
			res.Err = err
			return res
		}

		p.log.Warn("panel call failed, will retry",
			slog.String("subscription_id", job.SubscriptionID.String()),
			slog.String("desired", string(job.Desired)),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		if attempt == p.maxAttempts {
			break
		}

		// A newer desired action makes finishing this one pointless; yield
		// the mailbox to it instead of burning the retry budget.
		if p.hasPending(job.SubscriptionID) {
			res.Superseded = true
			res.Err = ErrSuperseded
			return res
		}

		select {
		case <-time.After(p.backoff.NextInterval(attempt)):
		case <-p.ctx.Done():
			res.Err = ErrProvisionerClosed
			return res
		}
	}

	res.Err = errors.Join(ErrAttemptsExhausted, lastErr)
	return res
}

// attempt performs a single panel call with the per-call timeout. A timeout
// is a retryable failure, never success: the panel client contract makes the
// follow-up create convergent by querying existing state first.
func (p *Provisioner) attempt(job ProvisionJob) (panel.CredentialRef, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.callTimeout)
	defer cancel()

	switch job.Desired {
	case DesiredActive:
		return p.panel.CreateOrUpdateClient(ctx, job.Ref.PanelID, job.Spec)
	case DesiredSuspended:
		return job.Ref, p.panel.SuspendClient(ctx, job.Ref)
	case DesiredRemoved:
		return job.Ref, p.panel.RemoveClient(ctx, job.Ref)
	default:
		return job.Ref, panel.Permanent(errors.New("unknown desired state " + string(job.Desired)))
	}
}

func (p *Provisioner) hasPending(subID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	box, ok := p.boxes[subID]
	return ok && box.pending != nil
}
