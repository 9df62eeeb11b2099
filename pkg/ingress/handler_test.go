package ingress_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vpnlab/subkit/pkg/ingress"
	"github.com/vpnlab/subkit/pkg/lifecycle"
)

type stubApplier struct {
	mu     sync.Mutex
	events []lifecycle.Event
	out    lifecycle.Outcome
	err    error
}

func (s *stubApplier) Apply(_ context.Context, ev lifecycle.Event) (lifecycle.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.out, s.err
}

func (s *stubApplier) applied() []lifecycle.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lifecycle.Event(nil), s.events...)
}

func testConfig() ingress.Config {
	return ingress.Config{
		WebhookSecret:   "secret",
		MaxBodyBytes:    4096,
		MaxSignatureAge: 5 * time.Minute,
	}
}

func signedRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	sig, ts, err := ingress.SignPayload("secret", body, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set(ingress.HeaderSignature, sig)
	req.Header.Set(ingress.HeaderTimestamp, ts)
	return req
}

func eventBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(lifecycle.Event{
		Kind:           lifecycle.EventPaymentConfirmed,
		OwnerID:        "tg:1001",
		PlanID:         "monthly",
		IdempotencyKey: "pay-1",
		OccurredAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	return body
}

func TestHandler_AcceptsSignedEvent(t *testing.T) {
	t.Parallel()

	subID := uuid.New()
	applier := &stubApplier{out: lifecycle.Outcome{
		SubscriptionID: subID,
		Status:         lifecycle.StatusProvisioning,
		Version:        1,
	}}
	h := ingress.NewHandler(applier, testConfig())

	rec := httptest.NewRecorder()
	h.Handle().ServeHTTP(rec, signedRequest(t, eventBody(t)))

	require.Equal(t, http.StatusOK, rec.Code)

	var out lifecycle.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, subID, out.SubscriptionID)
	require.Equal(t, lifecycle.StatusProvisioning, out.Status)

	events := applier.applied()
	require.Len(t, events, 1)
	require.Equal(t, lifecycle.EventPaymentConfirmed, events[0].Kind)
	require.Equal(t, "pay-1", events[0].IdempotencyKey)
}

func TestHandler_RejectsBadSignature(t *testing.T) {
	t.Parallel()

	applier := &stubApplier{}
	h := ingress.NewHandler(applier, testConfig())

	body := eventBody(t)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set(ingress.HeaderSignature, "deadbeef")
	req.Header.Set(ingress.HeaderTimestamp, "1")

	rec := httptest.NewRecorder()
	h.Handle().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, applier.applied(), "unverified payloads must never reach the engine")
}

func TestHandler_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	applier := &stubApplier{}
	h := ingress.NewHandler(applier, testConfig())

	body := []byte(`{"kind":"payment_confirmed","owner_id":"tg:1","plan_id":"monthly",` +
		`"idempotency_key":"k","occurred_at":"2026-03-01T12:00:00Z","amount":500}`)

	rec := httptest.NewRecorder()
	h.Handle().ServeHTTP(rec, signedRequest(t, body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, applier.applied())
}

func TestHandler_RejectsTrailingData(t *testing.T) {
	t.Parallel()

	applier := &stubApplier{}
	h := ingress.NewHandler(applier, testConfig())

	body := append(eventBody(t), []byte(`{"kind":"cancelled"}`)...)

	rec := httptest.NewRecorder()
	h.Handle().ServeHTTP(rec, signedRequest(t, body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, applier.applied())
}

func TestHandler_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxBodyBytes = 16
	h := ingress.NewHandler(&stubApplier{}, cfg)

	rec := httptest.NewRecorder()
	h.Handle().ServeHTTP(rec, signedRequest(t, eventBody(t)))

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandler_MapsEngineErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"malformed event", lifecycle.ErrMalformedEvent, http.StatusBadRequest},
		{"unknown plan", lifecycle.ErrUnknownPlan, http.StatusBadRequest},
		{"trial not available", lifecycle.ErrTrialNotAvailable, http.StatusBadRequest},
		{"subscription not found", lifecycle.ErrSubscriptionNotFound, http.StatusNotFound},
		{"contention", lifecycle.ErrTooManyConflicts, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := ingress.NewHandler(&stubApplier{err: tt.err}, testConfig())
			rec := httptest.NewRecorder()
			h.Handle().ServeHTTP(rec, signedRequest(t, eventBody(t)))

			require.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
