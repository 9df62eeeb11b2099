package lifecycle

import "errors"

var (
	// ErrMalformedEvent is a structural rejection: the event is missing its
	// idempotency key, addresses nothing, or carries an unknown kind.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrUnknownPlan rejects events referencing a plan absent from the catalog.
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrTrialNotAvailable rejects trial grants for plans without a trial period.
	ErrTrialNotAvailable = errors.New("plan has no trial period")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists for owner and plan")
	ErrOutcomeNotFound      = errors.New("no outcome recorded for idempotency key")

	// ErrVersionConflict is the compare-and-swap mismatch. It never escapes
	// Apply: the engine reloads and re-evaluates until it commits or the
	// conflict budget runs out.
	ErrVersionConflict  = errors.New("subscription version conflict")
	ErrTooManyConflicts = errors.New("too many version conflicts while applying event")

	// ErrSuperseded resolves a provisioning future whose queued action was
	// replaced by a newer desired action before it started.
	ErrSuperseded = errors.New("provisioning action superseded by newer action")

	// ErrAttemptsExhausted wraps the last retryable panel error once the
	// bounded attempt budget is spent.
	ErrAttemptsExhausted = errors.New("provisioning attempts exhausted")

	ErrProvisionerClosed = errors.New("provisioner is closed")
)
