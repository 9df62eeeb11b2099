// Package panel talks to remote VPN-panel instances (3x-ui style API) that
// own the actual client credentials.
//
// The reconciliation core consumes the Client interface and never a concrete
// implementation, so panel sessions stay scoped to the injected client
// instead of leaking process-wide state. HTTPClient implements Client for a
// single panel; Pool aggregates several panels, routes calls by the panel ID
// pinned in each CredentialRef, assigns new subscriptions to the least-loaded
// instance, and shields flapping panels with a per-panel circuit breaker.
//
// Errors are classified into RetryableError (network failures, timeouts,
// rate limits, 5xx) and PermanentError (semantic rejections). Timeouts are
// always retryable: a lost response must never be read as success, the
// caller re-queries the panel before repeating a create.
package panel
