package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vpnlab/subkit/pkg/lifecycle"
	"github.com/vpnlab/subkit/pkg/panel"
)

// Store is the durable lifecycle.Store backed by PostgreSQL. Mutations use an
// optimistic version check (UPDATE ... WHERE version = expected) and record
// the event outcome in the same transaction, so a crash can never separate an
// applied transition from its idempotency record.
type Store struct {
	pool *pgxpool.Pool
}

var _ lifecycle.Store = (*Store)(nil)

// NewStore creates a subscription store over an established pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pg: pgxpool.Pool is required")
	}
	return &Store{pool: pool}
}

const subscriptionColumns = `id, owner_id, plan_id, status, start_at, end_at,
	panel_id, credential_id, version, desired, attempt, last_error,
	prov_updated_at, created_at, updated_at`

func (s *Store) Load(ctx context.Context, id uuid.UUID) (*lifecycle.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	return scanSubscription(row)
}

func (s *Store) LoadByOwnerPlan(ctx context.Context, ownerID, planID string) (*lifecycle.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE owner_id = $1 AND plan_id = $2`,
		ownerID, planID)
	return scanSubscription(row)
}

func (s *Store) Create(ctx context.Context, sub *lifecycle.Subscription, idempotencyKey string, outcome lifecycle.Outcome) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var panelID *string
	var credentialID *uuid.UUID
	if sub.Panel != nil {
		panelID = &sub.Panel.PanelID
		credentialID = &sub.Panel.CredentialID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO subscriptions (id, owner_id, plan_id, status, start_at, end_at,
			panel_id, credential_id, version, desired, attempt, last_error,
			prov_updated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10, $11, $12, $13, $14)`,
		sub.ID, sub.OwnerID, sub.PlanID, sub.Status, sub.StartAt, sub.EndAt,
		panelID, credentialID,
		sub.Provisioning.Desired, sub.Provisioning.Attempt, sub.Provisioning.LastError,
		sub.Provisioning.UpdatedAt, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return lifecycle.ErrSubscriptionExists
		}
		return err
	}

	if idempotencyKey != "" {
		if err := insertOutcome(ctx, tx, idempotencyKey, outcome); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	sub.Version = 1
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, sub *lifecycle.Subscription, expectedVersion int64, idempotencyKey string, outcome lifecycle.Outcome) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var panelID *string
	var credentialID *uuid.UUID
	if sub.Panel != nil {
		panelID = &sub.Panel.PanelID
		credentialID = &sub.Panel.CredentialID
	}

	tag, err := tx.Exec(ctx, `
		UPDATE subscriptions SET
			status = $1, start_at = $2, end_at = $3,
			panel_id = $4, credential_id = $5,
			desired = $6, attempt = $7, last_error = $8, prov_updated_at = $9,
			updated_at = $10, version = version + 1
		WHERE id = $11 AND version = $12`,
		sub.Status, sub.StartAt, sub.EndAt,
		panelID, credentialID,
		sub.Provisioning.Desired, sub.Provisioning.Attempt, sub.Provisioning.LastError,
		sub.Provisioning.UpdatedAt,
		sub.UpdatedAt, sub.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, sub.ID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return lifecycle.ErrSubscriptionNotFound
		}
		return lifecycle.ErrVersionConflict
	}

	if idempotencyKey != "" {
		if err := insertOutcome(ctx, tx, idempotencyKey, outcome); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	sub.Version = expectedVersion + 1
	return nil
}

func (s *Store) LoadOutcome(ctx context.Context, idempotencyKey string) (*lifecycle.Outcome, error) {
	var out lifecycle.Outcome
	err := s.pool.QueryRow(ctx, `
		SELECT subscription_id, status, version, no_op, applied_at
		FROM event_outcomes WHERE idempotency_key = $1`, idempotencyKey,
	).Scan(&out.SubscriptionID, &out.Status, &out.Version, &out.NoOp, &out.AppliedAt)
	if IsNotFoundError(err) {
		return nil, lifecycle.ErrOutcomeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) SaveOutcome(ctx context.Context, idempotencyKey string, outcome lifecycle.Outcome) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_outcomes (idempotency_key, subscription_id, status, version, no_op, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		idempotencyKey, outcome.SubscriptionID, outcome.Status, outcome.Version,
		outcome.NoOp, outcome.AppliedAt)
	return err
}

func (s *Store) ListActiveBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM subscriptions
		WHERE status = $1 AND end_at IS NOT NULL AND end_at <= $2`,
		lifecycle.StatusActive, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*lifecycle.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (s *Store) ListByStatus(ctx context.Context, status lifecycle.Status, limit int) ([]*lifecycle.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE status = $1 ORDER BY created_at DESC`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func insertOutcome(ctx context.Context, tx pgx.Tx, key string, out lifecycle.Outcome) error {
	// DO NOTHING keeps a racing redelivery of the same occurrence harmless;
	// both writers carry the same outcome content.
	_, err := tx.Exec(ctx, `
		INSERT INTO event_outcomes (idempotency_key, subscription_id, status, version, no_op, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		key, out.SubscriptionID, out.Status, out.Version, out.NoOp, out.AppliedAt)
	return err
}

func scanSubscription(row pgx.Row) (*lifecycle.Subscription, error) {
	var (
		sub          lifecycle.Subscription
		panelID      *string
		credentialID *uuid.UUID
	)
	err := row.Scan(&sub.ID, &sub.OwnerID, &sub.PlanID, &sub.Status,
		&sub.StartAt, &sub.EndAt, &panelID, &credentialID, &sub.Version,
		&sub.Provisioning.Desired, &sub.Provisioning.Attempt,
		&sub.Provisioning.LastError, &sub.Provisioning.UpdatedAt,
		&sub.CreatedAt, &sub.UpdatedAt)
	if IsNotFoundError(err) {
		return nil, lifecycle.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	if panelID != nil && credentialID != nil {
		sub.Panel = &panel.CredentialRef{PanelID: *panelID, CredentialID: *credentialID}
	}
	return &sub, nil
}

func scanSubscriptions(rows pgx.Rows) ([]*lifecycle.Subscription, error) {
	var subs []*lifecycle.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
