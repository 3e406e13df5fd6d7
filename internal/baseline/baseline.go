package baseline

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sawpanic/tradeguard/internal/errs"
)

// Observation is the mention count of one scored Window, keyed by its end
type Observation struct {
	WindowEnd time.Time `json:"window_end"`
	Count     int       `json:"count"`
}

// Baseline holds rolling mention-count statistics for one symbol
type Baseline struct {
	Symbol         string        `json:"symbol"`
	Observations   []Observation `json:"observations"` // Sorted by WindowEnd, inside BaselineDays
	Mean           float64       `json:"mean"`
	StdDev         float64       `json:"stddev"` // Population standard deviation
	BaselineDays   int           `json:"baseline_days"`
	Version        int64         `json:"version"` // Incremented by every Observe/Rebuild
	UpdatedThrough time.Time     `json:"updated_through"`
}

// SlotWidth spaces live observations; polls inside one slot replace each other
const SlotWidth = 24 * time.Hour

// Slot returns the start of the UTC day containing t, the key a live observation is stored under
func Slot(t time.Time) time.Time {
	return t.UTC().Truncate(SlotWidth)
}

// Before returns b restricted to observations ending before t, with statistics recomputed.
// The version is kept so a snapshot still names the baseline it was scored against.
func (b Baseline) Before(t time.Time) Baseline {
	out := b.Clone()
	kept := out.Observations[:0]
	for _, o := range out.Observations {
		if o.WindowEnd.Before(t) {
			kept = append(kept, o)
		}
	}
	out.Observations = kept
	out.Mean, out.StdDev = stats(kept)
	if latest := LatestEnd(kept); latest.Before(out.UpdatedThrough) {
		out.UpdatedThrough = latest
	}
	return out
}

// Empty reports whether any history is retained
func (b Baseline) Empty() bool {
	return len(b.Observations) == 0
}

// BurstZ computes (count − mean)/stddev, zero for empty history or stddev below eps
func (b Baseline) BurstZ(count int, eps float64) float64 {
	if b.Empty() || b.StdDev < eps {
		return 0
	}
	return (float64(count) - b.Mean) / b.StdDev
}

// Clone returns a deep copy safe to hand across goroutines
func (b Baseline) Clone() Baseline {
	out := b
	out.Observations = append([]Observation(nil), b.Observations...)
	return out
}

// Apply returns b with obs merged in, pruned to baselineDays, with the version bumped.
// An observation for an already-recorded WindowEnd replaces it. b is not modified.
func Apply(b Baseline, obs Observation, baselineDays int) (Baseline, error) {
	if baselineDays < 1 {
		return b, errs.Configf("baseline_days", "must be >= 1, got %d", baselineDays)
	}
	if obs.Count < 0 {
		return b, errs.InvariantError{What: fmt.Sprintf("negative mention count %d for %s", obs.Count, b.Symbol)}
	}
	if obs.WindowEnd.IsZero() {
		return b, errs.InvariantError{What: "observation without window end for " + b.Symbol}
	}

	next := b.Clone()
	obs.WindowEnd = obs.WindowEnd.UTC()
	replaced := false
	for i := range next.Observations {
		if next.Observations[i].WindowEnd.Equal(obs.WindowEnd) {
			next.Observations[i] = obs
			replaced = true
			break
		}
	}
	if !replaced {
		next.Observations = append(next.Observations, obs)
	}
	if obs.WindowEnd.After(next.UpdatedThrough) {
		next.UpdatedThrough = obs.WindowEnd
	}
	next.BaselineDays = baselineDays
	next.Observations = retain(next.Observations, next.UpdatedThrough, baselineDays)
	next.Mean, next.StdDev = stats(next.Observations)
	next.Version = b.Version + 1
	return next, nil
}

// FromHistory builds a point-in-time Baseline from observations whose window ended at or
// before asOf; anything later is ignored so callers cannot leak future counts.
func FromHistory(symbol string, history []Observation, asOf time.Time, baselineDays int) (Baseline, error) {
	if baselineDays < 1 {
		return Baseline{}, errs.Configf("baseline_days", "must be >= 1, got %d", baselineDays)
	}
	asOf = asOf.UTC()
	b := Baseline{Symbol: symbol, BaselineDays: baselineDays, UpdatedThrough: asOf}

	kept := make([]Observation, 0, len(history))
	for _, o := range history {
		if o.Count < 0 {
			return Baseline{}, errs.InvariantError{What: fmt.Sprintf("negative mention count %d for %s", o.Count, symbol)}
		}
		if o.WindowEnd.After(asOf) {
			continue
		}
		o.WindowEnd = o.WindowEnd.UTC()
		kept = append(kept, o)
	}
	b.Observations = retain(dedupe(kept), asOf, baselineDays)
	b.Mean, b.StdDev = stats(b.Observations)
	b.Version = int64(len(b.Observations))
	return b, nil
}

// dedupe keeps the last observation seen for each WindowEnd
func dedupe(obs []Observation) []Observation {
	index := make(map[int64]int, len(obs))
	out := make([]Observation, 0, len(obs))
	for _, o := range obs {
		key := o.WindowEnd.UnixNano()
		if i, ok := index[key]; ok {
			out[i] = o
			continue
		}
		index[key] = len(out)
		out = append(out, o)
	}
	return out
}

// retain sorts and keeps observations with through − days < WindowEnd ≤ through
func retain(obs []Observation, through time.Time, baselineDays int) []Observation {
	cutoff := through.Add(-time.Duration(baselineDays) * 24 * time.Hour)
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].WindowEnd.Before(obs[j].WindowEnd)
	})
	out := obs[:0]
	for _, o := range obs {
		if o.WindowEnd.After(cutoff) && !o.WindowEnd.After(through) {
			out = append(out, o)
		}
	}
	return out
}

func stats(obs []Observation) (mean, stddev float64) {
	if len(obs) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, o := range obs {
		sum += float64(o.Count)
	}
	mean = sum / float64(len(obs))

	variance := 0.0
	for _, o := range obs {
		d := float64(o.Count) - mean
		variance += d * d
	}
	variance /= float64(len(obs))
	return mean, math.Sqrt(variance)
}
