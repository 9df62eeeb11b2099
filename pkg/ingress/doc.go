// Package ingress is the HTTP boundary between payment providers and the
// reconciliation engine. It verifies the webhook's HMAC-SHA256 signature,
// decodes the closed event schema with unknown fields rejected, and hands the
// normalized event to the engine.
//
// The surface is deliberately thin: the ingress distinguishes accepted from
// structurally rejected and nothing else. Provisioning retries, idempotent
// replays and state transitions are the engine's business; a redelivered
// webhook simply receives the stored outcome again.
//
// Usage:
//
//	h := ingress.NewHandler(engine, cfg)
//
//	r := chi.NewRouter()
//	r.Mount("/webhooks/billing", h.Handle())
package ingress
