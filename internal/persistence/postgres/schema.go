package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema creates the snapshot audit table. Payload keeps the full JSON snapshot so
// replays decode exactly what was scored; the scalar columns exist for indexing.
const Schema = `
CREATE TABLE IF NOT EXISTS sentiment_snapshots (
	id               BIGSERIAL PRIMARY KEY,
	symbol           TEXT             NOT NULL,
	window_start     TIMESTAMPTZ      NOT NULL,
	window_end       TIMESTAMPTZ      NOT NULL,
	lookback_hours   INTEGER          NOT NULL,
	method           TEXT             NOT NULL,
	model            TEXT             NOT NULL DEFAULT '',
	sentiment_score  DOUBLE PRECISION NOT NULL CHECK (sentiment_score BETWEEN -1 AND 1),
	confidence       DOUBLE PRECISION NOT NULL CHECK (confidence BETWEEN 0 AND 1),
	hype_risk        TEXT             NOT NULL,
	mention_count    INTEGER          NOT NULL CHECK (mention_count >= 0),
	mention_burst_z  DOUBLE PRECISION NOT NULL,
	baseline_version BIGINT           NOT NULL,
	computed_at      TIMESTAMPTZ      NOT NULL,
	payload          JSONB            NOT NULL,
	created_at       TIMESTAMPTZ      NOT NULL DEFAULT now(),
	UNIQUE (symbol, window_end, method)
);

CREATE INDEX IF NOT EXISTS sentiment_snapshots_symbol_end_idx
	ON sentiment_snapshots (symbol, window_end DESC);
`

// Migrate applies Schema; it is idempotent
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
