package walkforward

import (
	"fmt"

	"github.com/sawpanic/tradeguard/internal/errs"
)

// Params is one grid point: a position is held only while both cutoffs are met
type Params struct {
	Index               int     `json:"index"` // Position in Grid.Points order
	SentimentThreshold  float64 `json:"sentiment_threshold"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// Key renders the point for logs and reports
func (p Params) Key() string {
	return fmt.Sprintf("s>=%.2f,c>=%.2f", p.SentimentThreshold, p.ConfidenceThreshold)
}

// Grid is the explicit parameter sweep; Points enumerates its cartesian product
type Grid struct {
	SentimentThresholds  []float64 `yaml:"sentiment_thresholds" json:"sentiment_thresholds"`   // Each in [-1,1]
	ConfidenceThresholds []float64 `yaml:"confidence_thresholds" json:"confidence_thresholds"` // Each in [0,1]
}

// DefaultGrid sweeps three sentiment cutoffs against two confidence cutoffs
func DefaultGrid() Grid {
	return Grid{
		SentimentThresholds:  []float64{0.1, 0.2, 0.3},
		ConfidenceThresholds: []float64{0.3, 0.5},
	}
}

// Validate rejects empty axes and out-of-range cutoffs
func (g Grid) Validate() error {
	if len(g.SentimentThresholds) == 0 {
		return errs.Configf("backtest.grid.sentiment_thresholds", "must not be empty")
	}
	if len(g.ConfidenceThresholds) == 0 {
		return errs.Configf("backtest.grid.confidence_thresholds", "must not be empty")
	}
	for _, v := range g.SentimentThresholds {
		if v < -1 || v > 1 {
			return errs.Configf("backtest.grid.sentiment_thresholds", "%v outside [-1,1]", v)
		}
	}
	for _, v := range g.ConfidenceThresholds {
		if v < 0 || v > 1 {
			return errs.Configf("backtest.grid.confidence_thresholds", "%v outside [0,1]", v)
		}
	}
	return nil
}

// Points enumerates sentiment-major, confidence-minor
func (g Grid) Points() ([]Params, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	points := make([]Params, 0, len(g.SentimentThresholds)*len(g.ConfidenceThresholds))
	for _, s := range g.SentimentThresholds {
		for _, c := range g.ConfidenceThresholds {
			points = append(points, Params{
				Index:               len(points),
				SentimentThreshold:  s,
				ConfidenceThreshold: c,
			})
		}
	}
	return points, nil
}
