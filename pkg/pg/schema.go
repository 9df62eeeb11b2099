package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the subscription store. Statements are idempotent so
// EnsureSchema can run on every startup; production deployments that manage
// migrations externally can apply the same DDL through their own tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id              UUID PRIMARY KEY,
	owner_id        TEXT        NOT NULL,
	plan_id         TEXT        NOT NULL,
	status          TEXT        NOT NULL,
	start_at        TIMESTAMPTZ,
	end_at          TIMESTAMPTZ,
	panel_id        TEXT,
	credential_id   UUID,
	version         BIGINT      NOT NULL,
	desired         TEXT        NOT NULL DEFAULT '',
	attempt         INT         NOT NULL DEFAULT 0,
	last_error      TEXT        NOT NULL DEFAULT '',
	prov_updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, plan_id)
);

CREATE INDEX IF NOT EXISTS subscriptions_status_end_at_idx
	ON subscriptions (status, end_at);

CREATE TABLE IF NOT EXISTS event_outcomes (
	idempotency_key TEXT PRIMARY KEY,
	subscription_id UUID        NOT NULL,
	status          TEXT        NOT NULL,
	version         BIGINT      NOT NULL,
	no_op           BOOLEAN     NOT NULL DEFAULT FALSE,
	applied_at      TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the store's tables and indexes when they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return errors.Join(ErrFailedToEnsureSchema, err)
	}
	return nil
}
