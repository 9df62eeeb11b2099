package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vpnlab/subkit/pkg/lifecycle"
)

// Applier is the slice of the reconciliation engine the ingress needs.
type Applier interface {
	Apply(ctx context.Context, ev lifecycle.Event) (lifecycle.Outcome, error)
}

// Handler receives payment-provider webhooks, verifies their HMAC signature,
// decodes the closed event schema, and hands the event to the engine. It only
// distinguishes accepted from structurally rejected: retry semantics live
// behind the engine, and redeliveries are answered from the outcome record.
type Handler struct {
	engine Applier
	cfg    Config
	log    *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger.
func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHandler creates the webhook ingress.
func NewHandler(engine Applier, cfg Config, opts ...HandlerOption) *Handler {
	if engine == nil {
		panic("ingress: Applier is required")
	}
	if cfg.WebhookSecret == "" {
		panic("ingress: webhook secret is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 * 1024
	}

	h := &Handler{engine: engine, cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle returns the mountable HTTP surface:
//
//	POST /events accepting signed event deliveries
func (h *Handler) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/events", h.handleEvent)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: ErrPayloadTooLarge.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidPayload.Error()})
		return
	}

	if err := VerifySignature(h.cfg.WebhookSecret, body,
		r.Header.Get(HeaderSignature), r.Header.Get(HeaderTimestamp),
		h.cfg.MaxSignatureAge); err != nil {
		h.log.Warn("webhook signature rejected", slog.String("error", err.Error()))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: ErrInvalidSignature.Error()})
		return
	}

	ev, err := decodeEvent(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	out, err := h.engine.Apply(r.Context(), ev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, lifecycle.ErrMalformedEvent),
		errors.Is(err, lifecycle.ErrUnknownPlan),
		errors.Is(err, lifecycle.ErrTrialNotAvailable):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, lifecycle.ErrSubscriptionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, lifecycle.ErrTooManyConflicts):
		// Contention is transient; the provider's retry will land.
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		h.log.Error("event apply failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("idempotency_key", ev.IdempotencyKey),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// decodeEvent parses the closed event schema. Unknown fields and trailing
// documents are structural errors, not ignorable noise.
func decodeEvent(body []byte) (lifecycle.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	var ev lifecycle.Event
	if err := dec.Decode(&ev); err != nil {
		return lifecycle.Event{}, errors.Join(ErrInvalidPayload, err)
	}
	if dec.More() {
		return lifecycle.Event{}, errors.Join(ErrInvalidPayload,
			errors.New("trailing data after event document"))
	}
	return ev, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
