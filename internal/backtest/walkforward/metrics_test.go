package walkforward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tradeguard/internal/errs"
)

func TestGrid_PointsOrder(t *testing.T) {
	g := Grid{SentimentThresholds: []float64{0.1, 0.3}, ConfidenceThresholds: []float64{0.2, 0.4, 0.6}}
	points, err := g.Points()
	require.NoError(t, err)
	require.Len(t, points, 6)

	assert.Equal(t, Params{Index: 0, SentimentThreshold: 0.1, ConfidenceThreshold: 0.2}, points[0])
	assert.Equal(t, Params{Index: 2, SentimentThreshold: 0.1, ConfidenceThreshold: 0.6}, points[2])
	assert.Equal(t, Params{Index: 3, SentimentThreshold: 0.3, ConfidenceThreshold: 0.2}, points[3])
	for i, p := range points {
		assert.Equal(t, i, p.Index)
	}
}

func TestGrid_Invalid(t *testing.T) {
	tests := []Grid{
		{},
		{SentimentThresholds: []float64{0.1}},
		{SentimentThresholds: []float64{-1.5}, ConfidenceThresholds: []float64{0.2}},
		{SentimentThresholds: []float64{0.1}, ConfidenceThresholds: []float64{-0.1}},
	}
	for _, g := range tests {
		_, err := g.Points()
		require.Error(t, err)
		assert.True(t, errs.IsConfiguration(err))
	}
}

func TestWalkForwardPairs_AdvanceByStepWithoutOverlap(t *testing.T) {
	wp := testWindow(55)
	wp.StepDays = 5
	pairs, err := WalkForwardPairs(wp)
	require.NoError(t, err)
	require.Len(t, pairs, 8) // starts 0,5,...,35; start 40 would end at day 60

	for i, p := range pairs {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, p.Train.End, p.Test.Start, "test immediately follows train")
		assert.Equal(t, at(5*i, 0), p.Train.Start)
		assert.False(t, p.Test.End.After(wp.End))
	}

	wp.StepDays = 10
	pairs, err = WalkForwardPairs(wp)
	require.NoError(t, err)
	for i := 1; i < len(pairs); i++ {
		assert.False(t, pairs[i].Test.Start.Before(pairs[i-1].Test.End), "test windows never overlap when step >= test")
	}
}

func TestPairsFor_SingleTakesFirstPair(t *testing.T) {
	all, err := PairsFor(ModeWalkForward, testWindow(40))
	require.NoError(t, err)
	one, err := PairsFor(ModeSingle, testWindow(40))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, all[0], one[0])
}

func TestComputeMetrics(t *testing.T) {
	trades := []Trade{{PnL: 5}, {PnL: -2}, {PnL: 0}, {PnL: 1}}
	m := ComputeMetrics([]float64{0.1, -0.5, 0.2}, trades, 252)

	assert.InDelta(t, 1.1*0.5*1.2-1, m.TotalReturn, 1e-12)
	assert.InDelta(t, 0.5, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, 0.5, m.HitRate, 1e-12, "break-even trades are not hits")
	assert.Equal(t, 4, m.Trades)
	assert.Equal(t, 3, m.Periods)
	assert.Less(t, m.Sharpe, 0.0)

	flat := ComputeMetrics([]float64{0.01, 0.01, 0.01}, nil, 252)
	assert.Equal(t, 0.0, flat.Sharpe, "zero variance has no risk-adjusted ratio")
	assert.Equal(t, 0.0, flat.HitRate)
	assert.Equal(t, 0.0, flat.MaxDrawdown)

	empty := ComputeMetrics(nil, nil, 252)
	assert.Equal(t, Metrics{}, empty)
}

func TestRank_TieBreaks(t *testing.T) {
	results := []GridResult{
		{Params: Params{Index: 0}, Metrics: Metrics{Sharpe: 1, MaxDrawdown: 0.2, TotalReturn: 0.1}},
		{Params: Params{Index: 1}, Metrics: Metrics{Sharpe: 1, MaxDrawdown: 0.1, TotalReturn: 0.05}},
		{Params: Params{Index: 2}, Metrics: Metrics{Sharpe: 2, MaxDrawdown: 0.5, TotalReturn: 0.01}},
		{Params: Params{Index: 3}, Metrics: Metrics{Sharpe: 1, MaxDrawdown: 0.1, TotalReturn: 0.09}},
		{Params: Params{Index: 4}, Metrics: Metrics{Sharpe: 1, MaxDrawdown: 0.1, TotalReturn: 0.09}},
	}
	Rank(results)

	order := make([]int, len(results))
	for i, r := range results {
		order[i] = r.Params.Index
		assert.Equal(t, i+1, r.Rank)
	}
	assert.Equal(t, []int{2, 3, 4, 1, 0}, order, "sharpe, then drawdown, then return, then grid order")
}
