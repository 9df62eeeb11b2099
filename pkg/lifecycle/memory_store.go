package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store for tests and local development. All snapshots
// are deep copies so callers can never mutate stored state directly.
type MemoryStore struct {
	mu          sync.RWMutex
	subs        map[uuid.UUID]*Subscription
	byOwnerPlan map[ownerPlanKey]uuid.UUID
	outcomes    map[string]Outcome
}

type ownerPlanKey struct {
	ownerID string
	planID  string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:        make(map[uuid.UUID]*Subscription),
		byOwnerPlan: make(map[ownerPlanKey]uuid.UUID),
		outcomes:    make(map[string]Outcome),
	}
}

func (m *MemoryStore) Load(_ context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (m *MemoryStore) LoadByOwnerPlan(_ context.Context, ownerID, planID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byOwnerPlan[ownerPlanKey{ownerID, planID}]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return m.subs[id].Clone(), nil
}

func (m *MemoryStore) Create(_ context.Context, sub *Subscription, idempotencyKey string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[sub.ID]; ok {
		return ErrSubscriptionExists
	}
	key := ownerPlanKey{sub.OwnerID, sub.PlanID}
	if _, ok := m.byOwnerPlan[key]; ok {
		return ErrSubscriptionExists
	}

	stored := sub.Clone()
	stored.Version = 1
	m.subs[sub.ID] = stored
	m.byOwnerPlan[key] = sub.ID
	if idempotencyKey != "" {
		m.outcomes[idempotencyKey] = outcome
	}
	sub.Version = stored.Version
	return nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, sub *Subscription, expectedVersion int64, idempotencyKey string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.subs[sub.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	stored := sub.Clone()
	stored.Version = expectedVersion + 1
	m.subs[sub.ID] = stored
	if idempotencyKey != "" {
		m.outcomes[idempotencyKey] = outcome
	}
	sub.Version = stored.Version
	return nil
}

func (m *MemoryStore) LoadOutcome(_ context.Context, idempotencyKey string) (*Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out, ok := m.outcomes[idempotencyKey]
	if !ok {
		return nil, ErrOutcomeNotFound
	}
	return &out, nil
}

func (m *MemoryStore) SaveOutcome(_ context.Context, idempotencyKey string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[idempotencyKey] = outcome
	return nil
}

func (m *MemoryStore) ListActiveBefore(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []uuid.UUID
	for id, sub := range m.subs {
		if sub.Status == StatusActive && sub.EndAt != nil && !sub.EndAt.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Subscription
	for _, sub := range m.subs {
		if sub.OwnerID == ownerID {
			out = append(out, sub.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, status Status, limit int) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Subscription
	for _, sub := range m.subs {
		if sub.Status == status {
			out = append(out, sub.Clone())
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(subs []*Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
}
