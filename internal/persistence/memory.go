package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/sawpanic/tradeguard/internal/baseline"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
)

// MemorySnapshotRepo is the in-process SnapshotRepo used when postgres is disabled
type MemorySnapshotRepo struct {
	mu    sync.RWMutex
	snaps map[string][]sentiment.Snapshot // Per symbol, ascending window end
}

// NewMemorySnapshotRepo creates an empty repo
func NewMemorySnapshotRepo() *MemorySnapshotRepo {
	return &MemorySnapshotRepo{snaps: make(map[string][]sentiment.Snapshot)}
}

func (r *MemorySnapshotRepo) insertLocked(snap sentiment.Snapshot) error {
	current := r.snaps[snap.Symbol]
	for _, s := range current {
		if s.Window.End.Equal(snap.Window.End) && s.Method == snap.Method {
			return ErrDuplicate
		}
	}
	snap.Warnings = append([]string(nil), snap.Warnings...)
	list := make([]sentiment.Snapshot, 0, len(current)+1)
	list = append(append(list, current...), snap)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Window.End.Before(list[j].Window.End) })
	r.snaps[snap.Symbol] = list
	return nil
}

// Insert stores one snapshot
func (r *MemorySnapshotRepo) Insert(ctx context.Context, snap sentiment.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(snap)
}

// InsertBatch stores all snapshots or none
func (r *MemorySnapshotRepo) InsertBatch(ctx context.Context, snaps []sentiment.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	saved := make(map[string][]sentiment.Snapshot, len(snaps))
	for _, s := range snaps {
		if _, ok := saved[s.Symbol]; !ok {
			saved[s.Symbol] = r.snaps[s.Symbol]
		}
	}
	for _, s := range snaps {
		if err := r.insertLocked(s); err != nil {
			for sym, list := range saved {
				if list == nil {
					delete(r.snaps, sym)
					continue
				}
				r.snaps[sym] = list
			}
			return err
		}
	}
	return nil
}

// Latest returns the snapshot with the latest window end, nil when none exist
func (r *MemorySnapshotRepo) Latest(ctx context.Context, symbol string) (*sentiment.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.snaps[symbol]
	if len(list) == 0 {
		return nil, nil
	}
	snap := list[len(list)-1]
	return &snap, nil
}

// ListBySymbol returns snapshots whose window ends inside tr, newest first
func (r *MemorySnapshotRepo) ListBySymbol(ctx context.Context, symbol string, tr TimeRange, limit int) ([]sentiment.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.snaps[symbol]
	var out []sentiment.Snapshot
	for i := len(list) - 1; i >= 0; i-- {
		if !tr.Contains(list[i].Window.End) {
			continue
		}
		out = append(out, list[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MentionCounts returns one observation per window end inside tr, oldest first
func (r *MemorySnapshotRepo) MentionCounts(ctx context.Context, symbol string, tr TimeRange) ([]baseline.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []baseline.Observation
	for _, s := range r.snaps[symbol] {
		if !tr.Contains(s.Window.End) {
			continue
		}
		obs := baseline.Observation{WindowEnd: s.Window.End, Count: s.Quality.MentionCount}
		if n := len(out); n > 0 && out[n-1].WindowEnd.Equal(obs.WindowEnd) {
			out[n-1] = obs
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}
