package walkforward

import (
	"time"

	"github.com/sawpanic/tradeguard/internal/errs"
)

const day = 24 * time.Hour

// Mode selects a rolling sequence of pairs or the first pair only
type Mode string

const (
	ModeSingle      Mode = "single"
	ModeWalkForward Mode = "walk_forward"
)

// Span is a half-open interval [Start, End)
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports start <= t < end
func (s Span) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// Pair is one train window and the unseen test window that immediately follows it
type Pair struct {
	Index int  `json:"index"`
	Train Span `json:"train"`
	Test  Span `json:"test"`
}

// WindowParams defines the protocol's time layout
type WindowParams struct {
	Start         time.Time `yaml:"start" json:"start"`
	End           time.Time `yaml:"end" json:"end"`
	TrainDays     int       `yaml:"train_days" json:"train_days"`         // 60 days of tuning history
	TestDays      int       `yaml:"test_days" json:"test_days"`           // 20 unseen days
	StepDays      int       `yaml:"step_days" json:"step_days"`           // 20 days between pairs
	BarHours      int       `yaml:"bar_hours" json:"bar_hours"`           // 24 = daily bars
	LookbackHours int       `yaml:"lookback_hours" json:"lookback_hours"` // Mention window per bar
	BaselineDays  int       `yaml:"baseline_days" json:"baseline_days"`   // Rolling baseline length
}

// DefaultWindowParams returns the layout without dates; callers set Start and End
func DefaultWindowParams() WindowParams {
	return WindowParams{
		TrainDays:     60,
		TestDays:      20,
		StepDays:      20,
		BarHours:      24,
		LookbackHours: 24,
		BaselineDays:  30,
	}
}

// Validate rejects layouts that cannot produce a pair
func (p WindowParams) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return errs.Configf("backtest.window.start", "start and end are required")
	}
	if !p.End.After(p.Start) {
		return errs.Configf("backtest.window.end", "must be after start (%s <= %s)", p.End.Format(time.RFC3339), p.Start.Format(time.RFC3339))
	}
	ints := []struct {
		field string
		value int
		max   int
	}{
		{"backtest.window.train_days", p.TrainDays, 3650},
		{"backtest.window.test_days", p.TestDays, 3650},
		{"backtest.window.step_days", p.StepDays, 3650},
		{"backtest.window.bar_hours", p.BarHours, 24 * 7},
		{"backtest.window.lookback_hours", p.LookbackHours, 24 * 30},
		{"backtest.window.baseline_days", p.BaselineDays, 365},
	}
	for _, f := range ints {
		if f.value < 1 || f.value > f.max {
			return errs.Configf(f.field, "must be in [1,%d], got %d", f.max, f.value)
		}
	}
	return nil
}

// WalkForwardPairs advances (train, test) by StepDays while the test window fits before End
func WalkForwardPairs(p WindowParams) ([]Pair, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	train := time.Duration(p.TrainDays) * day
	test := time.Duration(p.TestDays) * day
	step := time.Duration(p.StepDays) * day

	var pairs []Pair
	for start := p.Start.UTC(); ; start = start.Add(step) {
		trainEnd := start.Add(train)
		testEnd := trainEnd.Add(test)
		if testEnd.After(p.End) {
			break
		}
		pairs = append(pairs, Pair{
			Index: len(pairs),
			Train: Span{Start: start, End: trainEnd},
			Test:  Span{Start: trainEnd, End: testEnd},
		})
	}
	if len(pairs) == 0 {
		return nil, errs.Configf("backtest.window", "no complete train+test pair fits between %s and %s",
			p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
	}
	return pairs, nil
}

// PairsFor returns every walk-forward pair, or only the first in single mode
func PairsFor(mode Mode, p WindowParams) ([]Pair, error) {
	pairs, err := WalkForwardPairs(p)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeSingle:
		return pairs[:1], nil
	case ModeWalkForward:
		return pairs, nil
	}
	return nil, errs.Configf("backtest.mode", "unknown mode %q (single|walk_forward)", mode)
}

// periodsPerYear annualizes per-bar returns: 252 sessions for daily bars, calendar hours below that
func periodsPerYear(barHours int) float64 {
	if barHours >= 24 {
		return 252 * 24 / float64(barHours)
	}
	return 365 * 24 / float64(barHours)
}
