package storage

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS activities (
    transaction_hash        TEXT PRIMARY KEY,
    proxy_wallet            TEXT NOT NULL DEFAULT '',
    ts                      BIGINT NOT NULL DEFAULT 0,
    condition_id            TEXT NOT NULL DEFAULT '',
    type                    TEXT NOT NULL DEFAULT '',
    side                    TEXT NOT NULL DEFAULT '',
    asset                   TEXT NOT NULL DEFAULT '',
    size                    NUMERIC NOT NULL DEFAULT 0,
    usdc_size               NUMERIC NOT NULL DEFAULT 0,
    price                   NUMERIC NOT NULL DEFAULT 0,
    outcome_index           INTEGER NOT NULL DEFAULT 0,
    title                   TEXT NOT NULL DEFAULT '',
    slug                    TEXT NOT NULL DEFAULT '',
    icon                    TEXT NOT NULL DEFAULT '',
    event_slug              TEXT NOT NULL DEFAULT '',
    outcome                 TEXT NOT NULL DEFAULT '',
    name                    TEXT NOT NULL DEFAULT '',
    pseudonym               TEXT NOT NULL DEFAULT '',
    bio                     TEXT NOT NULL DEFAULT '',
    profile_image           TEXT NOT NULL DEFAULT '',
    profile_image_optimized TEXT NOT NULL DEFAULT '',
    bot_executed            BOOLEAN NOT NULL DEFAULT FALSE,
    bot_executed_time       INTEGER NOT NULL DEFAULT 0,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS activities_pending_idx
    ON activities (ts)
    WHERE NOT bot_executed;

CREATE TABLE IF NOT EXISTS positions (
    asset                TEXT NOT NULL,
    condition_id         TEXT NOT NULL,
    proxy_wallet         TEXT NOT NULL DEFAULT '',
    size                 NUMERIC NOT NULL DEFAULT 0,
    avg_price            NUMERIC NOT NULL DEFAULT 0,
    initial_value        NUMERIC NOT NULL DEFAULT 0,
    current_value        NUMERIC NOT NULL DEFAULT 0,
    cash_pnl             NUMERIC NOT NULL DEFAULT 0,
    percent_pnl          NUMERIC NOT NULL DEFAULT 0,
    total_bought         NUMERIC NOT NULL DEFAULT 0,
    realized_pnl         NUMERIC NOT NULL DEFAULT 0,
    percent_realized_pnl NUMERIC NOT NULL DEFAULT 0,
    cur_price            NUMERIC NOT NULL DEFAULT 0,
    redeemable           BOOLEAN NOT NULL DEFAULT FALSE,
    mergeable            BOOLEAN NOT NULL DEFAULT FALSE,
    negative_risk        BOOLEAN NOT NULL DEFAULT FALSE,
    title                TEXT NOT NULL DEFAULT '',
    slug                 TEXT NOT NULL DEFAULT '',
    icon                 TEXT NOT NULL DEFAULT '',
    event_slug           TEXT NOT NULL DEFAULT '',
    outcome              TEXT NOT NULL DEFAULT '',
    outcome_index        INTEGER NOT NULL DEFAULT 0,
    opposite_outcome     TEXT NOT NULL DEFAULT '',
    opposite_asset       TEXT NOT NULL DEFAULT '',
    end_date             TEXT NOT NULL DEFAULT '',
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (asset, condition_id)
);
`

// EnsureSchema applies the table definitions. Statements are idempotent so
// this is safe to run on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
