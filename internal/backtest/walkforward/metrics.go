package walkforward

import (
	"math"
	"sort"
	"time"
)

// Trade is one closed round trip
type Trade struct {
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	Forced     bool      `json:"forced,omitempty"` // Liquidated at the window's last bar
}

// DecisionCounts tallies gate outcomes for simulated orders
type DecisionCounts struct {
	Approved int `json:"approved"`
	Adjusted int `json:"adjusted"`
	Denied   int `json:"denied"`
}

func (c *DecisionCounts) add(o DecisionCounts) {
	c.Approved += o.Approved
	c.Adjusted += o.Adjusted
	c.Denied += o.Denied
}

// Metrics are computed over a concatenated per-bar return series
type Metrics struct {
	TotalReturn float64        `json:"total_return"`
	MaxDrawdown float64        `json:"max_drawdown"` // Positive fraction of peak
	Sharpe      float64        `json:"sharpe"`       // Annualized mean/stddev, 0 when flat
	HitRate     float64        `json:"hit_rate"`     // Winning closed trades / closed trades
	Trades      int            `json:"trades"`
	Periods     int            `json:"periods"`
	Orders      DecisionCounts `json:"orders"`
}

// ComputeMetrics derives risk-adjusted metrics from per-bar returns and closed trades
func ComputeMetrics(returns []float64, trades []Trade, annualization float64) Metrics {
	m := Metrics{Periods: len(returns), Trades: len(trades)}

	equity, peak := 1.0, 1.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
		}
	}
	m.TotalReturn = equity - 1

	if n := len(returns); n > 1 {
		mean := 0.0
		for _, r := range returns {
			mean += r
		}
		mean /= float64(n)
		ss := 0.0
		for _, r := range returns {
			ss += (r - mean) * (r - mean)
		}
		std := math.Sqrt(ss / float64(n-1))
		if std > 1e-12 {
			m.Sharpe = mean / std * math.Sqrt(annualization)
		}
	}

	if len(trades) > 0 {
		wins := 0
		for _, t := range trades {
			if t.PnL > 0 {
				wins++
			}
		}
		m.HitRate = float64(wins) / float64(len(trades))
	}
	return m
}

// better orders by Sharpe desc, then lower drawdown, then higher return, then grid order
func better(a, b GridResult) bool {
	if a.Metrics.Sharpe != b.Metrics.Sharpe {
		return a.Metrics.Sharpe > b.Metrics.Sharpe
	}
	if a.Metrics.MaxDrawdown != b.Metrics.MaxDrawdown {
		return a.Metrics.MaxDrawdown < b.Metrics.MaxDrawdown
	}
	if a.Metrics.TotalReturn != b.Metrics.TotalReturn {
		return a.Metrics.TotalReturn > b.Metrics.TotalReturn
	}
	return a.Params.Index < b.Params.Index
}

// Rank sorts results best-first and assigns 1-based ranks
func Rank(results []GridResult) {
	sort.SliceStable(results, func(i, j int) bool { return better(results[i], results[j]) })
	for i := range results {
		results[i].Rank = i + 1
	}
}
