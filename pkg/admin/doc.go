// Package admin exposes the operator-facing read-only HTTP surface over the
// subscription store: fetch a subscription by ID, list by owner or status,
// and render the connection key (plain or QR) for a provisioned credential.
//
// The package never writes. All mutations flow through the reconciliation
// engine, so the admin surface can be pointed at a read replica.
//
// Usage:
//
//	h := admin.NewHandler(store, cfg)
//
//	r := chi.NewRouter()
//	r.Mount("/admin", h.Handle())
package admin
