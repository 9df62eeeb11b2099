package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vpnlab/subkit/pkg/lifecycle"
	"github.com/vpnlab/subkit/pkg/panel"
)

// Reader is the read-only slice of the subscription store the admin surface
// needs. Writes stay exclusive to the reconciliation engine.
type Reader interface {
	Load(ctx context.Context, id uuid.UUID) (*lifecycle.Subscription, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*lifecycle.Subscription, error)
	ListByStatus(ctx context.Context, status lifecycle.Status, limit int) ([]*lifecycle.Subscription, error)
}

// Handler is the operator-facing read-only HTTP surface: inspect a
// subscription, list by owner or status, and render connection keys for
// provisioned credentials.
type Handler struct {
	store Reader
	cfg   Config
	log   *slog.Logger
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

// NewHandler creates the admin read surface.
func NewHandler(store Reader, cfg Config, opts ...HandlerOption) *Handler {
	if store == nil {
		panic("admin: Reader is required")
	}
	if cfg.DefaultListLimit <= 0 {
		cfg.DefaultListLimit = 100
	}

	h := &Handler{store: store, cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle returns the mountable HTTP surface:
//
//	GET /subscriptions?owner_id=...        list by owner
//	GET /subscriptions?status=...&limit=N  list by status
//	GET /subscriptions/{id}                single subscription
//	GET /subscriptions/{id}/key            connection key for the credential
//	GET /subscriptions/{id}/key.png        connection key as a QR code
func (h *Handler) Handle() http.Handler {
	r := chi.NewRouter()
	r.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/key", h.connectionKey)
		r.Get("/{id}/key.png", h.connectionKeyQR)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.loadFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if owner := q.Get("owner_id"); owner != "" {
		subs, err := h.store.ListByOwner(r.Context(), owner)
		if err != nil {
			h.internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse(subs))
		return
	}

	if raw := q.Get("status"); raw != "" {
		status := lifecycle.Status(raw)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidStatus.Error()})
			return
		}
		limit := h.cfg.DefaultListLimit
		if rawLimit := q.Get("limit"); rawLimit != "" {
			n, err := strconv.Atoi(rawLimit)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
				return
			}
			limit = n
		}
		subs, err := h.store.ListByStatus(r.Context(), status, limit)
		if err != nil {
			h.internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse(subs))
		return
	}

	writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrMissingFilter.Error()})
}

func (h *Handler) connectionKey(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.loadFromPath(w, r)
	if !ok {
		return
	}
	if sub.Panel == nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: ErrNotProvisioned.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"key": panel.ConnectionKey(h.cfg.SubscriptionBaseURL, *sub.Panel),
	})
}

func (h *Handler) connectionKeyQR(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.loadFromPath(w, r)
	if !ok {
		return
	}
	if sub.Panel == nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: ErrNotProvisioned.Error()})
		return
	}

	png, err := panel.ConnectionKeyQR(h.cfg.SubscriptionBaseURL, *sub.Panel, h.cfg.QRSize)
	if err != nil {
		h.internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) loadFromPath(w http.ResponseWriter, r *http.Request) (*lifecycle.Subscription, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidSubscriptionID.Error()})
		return nil, false
	}

	sub, err := h.store.Load(r.Context(), id)
	if errors.Is(err, lifecycle.ErrSubscriptionNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return nil, false
	}
	if err != nil {
		h.internalError(w, err)
		return nil, false
	}
	return sub, true
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	h.log.Error("admin query failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// listResponse keeps empty results as [] instead of null.
func listResponse(subs []*lifecycle.Subscription) []*lifecycle.Subscription {
	if subs == nil {
		return []*lifecycle.Subscription{}
	}
	return subs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
