package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/sawpanic/tradeguard/internal/baseline"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
)

// ErrDuplicate is returned when a snapshot for the same (symbol, window end, method) already exists
var ErrDuplicate = errors.New("duplicate snapshot")

// TimeRange represents a time window for data queries with PIT integrity
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports From < t <= To, matching window-end semantics
func (tr TimeRange) Contains(t time.Time) bool {
	return t.After(tr.From) && !t.After(tr.To)
}

// SnapshotRepo stores sentiment snapshots for audit and replay.
// Snapshots are immutable: a second insert for the same key fails with ErrDuplicate.
type SnapshotRepo interface {
	// Insert stores one snapshot with its method tag
	Insert(ctx context.Context, snap sentiment.Snapshot) error

	// InsertBatch stores snapshots atomically; any duplicate rolls back the batch
	InsertBatch(ctx context.Context, snaps []sentiment.Snapshot) error

	// Latest returns the most recent snapshot for symbol, nil when none exist
	Latest(ctx context.Context, symbol string) (*sentiment.Snapshot, error)

	// ListBySymbol returns snapshots whose window ends inside tr, newest first
	ListBySymbol(ctx context.Context, symbol string, tr TimeRange, limit int) ([]sentiment.Snapshot, error)

	// MentionCounts returns one observation per window end inside tr, oldest first,
	// suitable for baseline.Store.Rebuild
	MentionCounts(ctx context.Context, symbol string, tr TimeRange) ([]baseline.Observation, error)
}

// Repository aggregates the snapshot and baseline stores
type Repository struct {
	Snapshots SnapshotRepo
	Baselines baseline.Store
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	// Health returns current repository health status
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity
	Ping(ctx context.Context) error

	// Stats returns connection pool statistics
	Stats(ctx context.Context) map[string]interface{}
}

