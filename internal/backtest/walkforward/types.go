package walkforward

import (
	"time"

	"github.com/sawpanic/tradeguard/internal/social"
)

// Bar is one close print from the price collaborator
type Bar struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}

// Dataset is the already-fetched history a run replays
type Dataset struct {
	Records []social.RawRecord `json:"records"`
	Bars    map[string][]Bar   `json:"bars"` // Keyed by upper-case symbol
}

// Request describes one backtest
type Request struct {
	Mode    Mode         `json:"mode"`
	Symbols []string     `json:"symbols"`
	Grid    Grid         `json:"grid"`
	Window  WindowParams `json:"window_params"`
}

// WindowResult is one grid point simulated over one span
type WindowResult struct {
	Pair    int       `json:"pair"`
	Span    Span      `json:"span"`
	Metrics Metrics   `json:"metrics"`
	Returns []float64 `json:"-"`
	Trades  []Trade   `json:"trades,omitempty"`
}

// GridResult aggregates a grid point over every test window
type GridResult struct {
	Params  Params         `json:"params"`
	Rank    int            `json:"rank"`
	Metrics Metrics        `json:"metrics"` // Over concatenated test windows
	Windows []WindowResult `json:"windows"`
}

// Fold records which grid point won a train window and how it did on the paired test window
type Fold struct {
	Pair         Pair    `json:"pair"`
	Selected     Params  `json:"selected"`
	TrainMetrics Metrics `json:"train_metrics"`
	TestMetrics  Metrics `json:"test_metrics"`
}

// Run is one completed backtest; immutable once returned
type Run struct {
	ID          string       `json:"id"`
	Mode        Mode         `json:"mode"`
	Symbols     []string     `json:"symbols"`
	Grid        Grid         `json:"grid"`
	Window      WindowParams `json:"window_params"`
	Pairs       []Pair       `json:"pairs"`
	Results     []GridResult `json:"results"` // Ranked best-first
	Folds       []Fold       `json:"folds"`
	OutOfSample Metrics      `json:"out_of_sample"` // Train-selected params chained across test windows
	CreatedAt   time.Time    `json:"created_at"`
	Duration    string       `json:"duration"`
}

// Best returns the top-ranked result
func (r *Run) Best() (GridResult, bool) {
	if len(r.Results) == 0 {
		return GridResult{}, false
	}
	return r.Results[0], true
}
