package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/tradeguard/internal/baseline"
	"github.com/sawpanic/tradeguard/internal/persistence"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
)

const defaultListLimit = 500

const insertSnapshotSQL = `
		INSERT INTO sentiment_snapshots
		(symbol, window_start, window_end, lookback_hours, method, model, sentiment_score,
		 confidence, hype_risk, mention_count, mention_burst_z, baseline_version, computed_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// snapshotRepo implements SnapshotRepo for PostgreSQL
type snapshotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotRepo creates a new PostgreSQL snapshot repository
func NewSnapshotRepo(db *sqlx.DB, timeout time.Duration) persistence.SnapshotRepo {
	return &snapshotRepo{
		db:      db,
		timeout: timeout,
	}
}

func snapshotArgs(snap sentiment.Snapshot) ([]interface{}, error) {
	if snap.Symbol == "" {
		return nil, fmt.Errorf("snapshot without symbol")
	}
	if snap.Method == "" {
		return nil, fmt.Errorf("snapshot for %s without method tag", snap.Symbol)
	}
	if snap.Window.End.IsZero() {
		return nil, fmt.Errorf("snapshot for %s without window end", snap.Symbol)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return []interface{}{
		snap.Symbol, snap.Window.Start, snap.Window.End, snap.Window.LookbackHours,
		snap.Method, snap.Model, snap.SentimentScore, snap.Confidence, string(snap.HypeRisk),
		snap.Quality.MentionCount, snap.MentionBurstZ, snap.BaselineVersion, snap.ComputedAt, payload,
	}, nil
}

func classify(err error, snap sentiment.Snapshot) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s at %s (%s)", persistence.ErrDuplicate,
			snap.Symbol, snap.Window.End.Format(time.RFC3339), snap.Method)
	}
	return fmt.Errorf("failed to insert snapshot: %w", err)
}

// Insert stores one snapshot; the unique key is (symbol, window_end, method)
func (r *snapshotRepo) Insert(ctx context.Context, snap sentiment.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args, err := snapshotArgs(snap)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, insertSnapshotSQL, args...); err != nil {
		return classify(err, snap)
	}
	return nil
}

// InsertBatch stores snapshots in one transaction
func (r *snapshotRepo) InsertBatch(ctx context.Context, snaps []sentiment.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(snaps)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSnapshotSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snaps {
		args, err := snapshotArgs(snap)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return classify(err, snap)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}
	return nil
}

// Latest returns the snapshot with the latest window end for symbol
func (r *snapshotRepo) Latest(ctx context.Context, symbol string) (*sentiment.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT payload
		FROM sentiment_snapshots
		WHERE symbol = $1
		ORDER BY window_end DESC, computed_at DESC
		LIMIT 1`

	var payload []byte
	if err := r.db.QueryRowxContext(ctx, query, symbol).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	var snap sentiment.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// ListBySymbol returns snapshots with window_end in (from, to], newest first
func (r *snapshotRepo) ListBySymbol(ctx context.Context, symbol string, tr persistence.TimeRange, limit int) ([]sentiment.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT payload
		FROM sentiment_snapshots
		WHERE symbol = $1 AND window_end > $2 AND window_end <= $3
		ORDER BY window_end DESC, computed_at DESC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, query, symbol, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots by symbol: %w", err)
	}
	defer rows.Close()

	var snaps []sentiment.Snapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		var snap sentiment.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snaps, nil
}

// MentionCounts returns the newest count per window end in (from, to], oldest first
func (r *snapshotRepo) MentionCounts(ctx context.Context, symbol string, tr persistence.TimeRange) ([]baseline.Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT DISTINCT ON (window_end) window_end, mention_count
		FROM sentiment_snapshots
		WHERE symbol = $1 AND window_end > $2 AND window_end <= $3
		ORDER BY window_end ASC, computed_at DESC`

	rows, err := r.db.QueryxContext(ctx, query, symbol, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query mention counts: %w", err)
	}
	defer rows.Close()

	var out []baseline.Observation
	for rows.Next() {
		var obs baseline.Observation
		if err := rows.Scan(&obs.WindowEnd, &obs.Count); err != nil {
			return nil, fmt.Errorf("failed to scan mention count: %w", err)
		}
		obs.WindowEnd = obs.WindowEnd.UTC()
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mention counts: %w", err)
	}
	return out, nil
}
