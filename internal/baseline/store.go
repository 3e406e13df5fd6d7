package baseline

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the versioned per-symbol baseline store. Observe must be all-or-nothing:
// either the new observation and recomputed statistics land together, or nothing changes.
type Store interface {
	Load(ctx context.Context, symbol string) (Baseline, error)
	Observe(ctx context.Context, symbol string, obs Observation, baselineDays int) (Baseline, error)
	Rebuild(ctx context.Context, symbol string, history []Observation, baselineDays int) (Baseline, error)
	Freeze(ctx context.Context) (map[string]Baseline, error)
}

type entry struct {
	mu sync.Mutex
	b  Baseline
}

// MemoryStore keeps baselines in process; updates serialize per symbol only
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (s *MemoryStore) entry(symbol string) *entry {
	s.mu.RLock()
	e, ok := s.entries[symbol]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[symbol]; ok {
		return e
	}
	e = &entry{b: Baseline{Symbol: symbol}}
	s.entries[symbol] = e
	return e
}

// Load returns a copy of the symbol's baseline; unknown symbols yield an empty one
func (s *MemoryStore) Load(ctx context.Context, symbol string) (Baseline, error) {
	if err := ctx.Err(); err != nil {
		return Baseline{}, err
	}
	e := s.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.b.Clone(), nil
}

// Observe merges one Window's count into the symbol's baseline
func (s *MemoryStore) Observe(ctx context.Context, symbol string, obs Observation, baselineDays int) (Baseline, error) {
	if err := ctx.Err(); err != nil {
		return Baseline{}, err
	}
	e := s.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := Apply(e.b, obs, baselineDays)
	if err != nil {
		return e.b.Clone(), err
	}
	e.b = next
	return next.Clone(), nil
}

// Rebuild replaces the symbol's history wholesale, keeping the version monotonic
func (s *MemoryStore) Rebuild(ctx context.Context, symbol string, history []Observation, baselineDays int) (Baseline, error) {
	if err := ctx.Err(); err != nil {
		return Baseline{}, err
	}
	asOf := LatestEnd(history)
	rebuilt, err := FromHistory(symbol, history, asOf, baselineDays)
	if err != nil {
		return Baseline{}, err
	}

	e := s.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	rebuilt.Version = e.b.Version + 1
	e.b = rebuilt
	return rebuilt.Clone(), nil
}

// Freeze copies every baseline; the copies share nothing with the store
func (s *MemoryStore) Freeze(ctx context.Context) (map[string]Baseline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	symbols := make([]string, 0, len(s.entries))
	for sym := range s.entries {
		symbols = append(symbols, sym)
	}
	s.mu.RUnlock()
	sort.Strings(symbols)

	out := make(map[string]Baseline, len(symbols))
	for _, sym := range symbols {
		e := s.entry(sym)
		e.mu.Lock()
		out[sym] = e.b.Clone()
		e.mu.Unlock()
	}
	return out, nil
}

// LatestEnd returns the newest WindowEnd in history, zero when empty
func LatestEnd(history []Observation) time.Time {
	var t time.Time
	for _, o := range history {
		if o.WindowEnd.After(t) {
			t = o.WindowEnd
		}
	}
	return t
}
