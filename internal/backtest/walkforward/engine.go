package walkforward

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/gates"
	logprogress "github.com/sawpanic/tradeguard/internal/log"
	"github.com/sawpanic/tradeguard/internal/quality"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
	"github.com/sawpanic/tradeguard/internal/social"
)

// Config represents walk-forward engine configuration
type Config struct {
	Workers       int     `yaml:"workers"`        // 4 grid points simulated in parallel
	InitialEquity float64 `yaml:"initial_equity"` // Each window starts flat with this equity
	PositionPct   float64 `yaml:"position_pct"`   // 0.10 of equity per entry
	OutputDir     string  `yaml:"output_dir"`     // Empty disables artifacts
	Progress      bool    `yaml:"progress"`       // Log grid progress milestones
}

// DefaultConfig returns default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Workers:       4,
		InitialEquity: 100000,
		PositionPct:   0.10,
	}
}

// Validate rejects unusable engine settings
func (c *Config) Validate() error {
	if c.Workers < 1 || c.Workers > 64 {
		return errs.Configf("backtest.workers", "must be in [1,64], got %d", c.Workers)
	}
	if c.InitialEquity <= 0 {
		return errs.Configf("backtest.initial_equity", "must be > 0, got %v", c.InitialEquity)
	}
	if c.PositionPct <= 0 || c.PositionPct > 1 {
		return errs.Configf("backtest.position_pct", "must be in (0,1], got %v", c.PositionPct)
	}
	return nil
}

// Pipeline is the production scoring and gating chain the engine replays
type Pipeline struct {
	Extractor *social.Extractor
	Filter    *quality.Filter
	Scorer    *sentiment.Scorer
	Gate      *gates.PreTradeGate
}

// Engine replays Pipeline over historical windows under a parameter grid
type Engine struct {
	config   *Config
	pipeline Pipeline
	gate     *gates.PreTradeGate
	now      func() time.Time
	newID    func() string
}

// NewEngine validates config; nil uses defaults
func NewEngine(config *Config, pipeline Pipeline) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if pipeline.Extractor == nil || pipeline.Filter == nil || pipeline.Scorer == nil || pipeline.Gate == nil {
		return nil, errs.Configf("backtest.pipeline", "extractor, filter, scorer and gate are all required")
	}
	return &Engine{
		config:   config,
		pipeline: pipeline,
		gate:     pipeline.Gate.Quiet(),
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// WithClock returns a copy that stamps runs with now
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

// Config returns the engine settings
func (e *Engine) Config() Config {
	return *e.config
}

// pointRuns holds one grid point's results, indexed by pair
type pointRuns struct {
	train []WindowResult
	test  []WindowResult
}

// Run executes the protocol. Configuration problems are returned before any simulation starts.
func (e *Engine) Run(ctx context.Context, req Request, data Dataset) (*Run, error) {
	start := e.now()

	points, err := req.Grid.Points()
	if err != nil {
		return nil, err
	}
	pairs, err := PairsFor(req.Mode, req.Window)
	if err != nil {
		return nil, err
	}
	symbols := normalizeSymbols(req.Symbols)
	if len(symbols) == 0 {
		return nil, errs.Configf("backtest.symbols", "at least one symbol is required")
	}

	steps := logprogress.NewStepLogger("walkforward", []string{"signals", "simulate", "select"})
	steps.StartStep("signals")

	h := newHistory(data, symbols)
	tapes := make([][2]*tape, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for i, pair := range pairs {
		for k, span := range []Span{pair.Train, pair.Test} {
			g.Go(func() error {
				tp, err := e.buildTape(gctx, h, span, req.Window)
				if err != nil {
					return err
				}
				tapes[i][k] = tp
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		steps.Fail(err)
		return nil, err
	}

	steps.StartStep("simulate")
	progressCfg := logprogress.QuietProgressConfig()
	if e.config.Progress {
		progressCfg = logprogress.DefaultProgressConfig()
	}
	progress := logprogress.NewProgressIndicator("walkforward grid", len(points), progressCfg)
	annual := periodsPerYear(req.Window.BarHours)

	runs := make([]pointRuns, len(points))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for pi, p := range points {
		g.Go(func() error {
			pr := pointRuns{
				train: make([]WindowResult, len(pairs)),
				test:  make([]WindowResult, len(pairs)),
			}
			for i := range pairs {
				if err := gctx.Err(); err != nil {
					return err
				}
				pr.train[i] = e.simulate(p, tapes[i][0], i, annual)
				pr.test[i] = e.simulate(p, tapes[i][1], i, annual)
			}
			runs[pi] = pr
			progress.Increment()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		progress.Fail(err)
		steps.Fail(err)
		return nil, err
	}
	progress.Finish()

	steps.StartStep("select")
	results := make([]GridResult, len(points))
	for pi, p := range points {
		results[pi] = GridResult{
			Params:  p,
			Metrics: chain(runs[pi].test, annual),
			Windows: runs[pi].test,
		}
	}

	folds := make([]Fold, len(pairs))
	selected := make([]WindowResult, len(pairs))
	for i, pair := range pairs {
		best := 0
		for pi := 1; pi < len(points); pi++ {
			cand := GridResult{Params: points[pi], Metrics: runs[pi].train[i].Metrics}
			cur := GridResult{Params: points[best], Metrics: runs[best].train[i].Metrics}
			if better(cand, cur) {
				best = pi
			}
		}
		folds[i] = Fold{
			Pair:         pair,
			Selected:     points[best],
			TrainMetrics: runs[best].train[i].Metrics,
			TestMetrics:  runs[best].test[i].Metrics,
		}
		selected[i] = runs[best].test[i]
	}

	Rank(results)
	steps.Finish()

	run := &Run{
		ID:          e.newID(),
		Mode:        req.Mode,
		Symbols:     symbols,
		Grid:        req.Grid,
		Window:      req.Window,
		Pairs:       pairs,
		Results:     results,
		Folds:       folds,
		OutOfSample: chain(selected, annual),
		CreatedAt:   start.UTC(),
		Duration:    e.now().Sub(start).Round(time.Millisecond).String(),
	}

	best := results[0]
	log.Info().
		Str("run_id", run.ID).
		Str("mode", string(run.Mode)).
		Int("grid_points", len(points)).
		Int("pairs", len(pairs)).
		Str("best", best.Params.Key()).
		Float64("best_sharpe", best.Metrics.Sharpe).
		Float64("oos_return", run.OutOfSample.TotalReturn).
		Msg("Walk-forward backtest complete")

	if e.config.OutputDir != "" {
		w := NewWriter(e.config.OutputDir, run.CreatedAt)
		if err := w.WriteAll(run); err != nil {
			return run, fmt.Errorf("write backtest artifacts: %w", err)
		}
	}
	return run, nil
}

// chain concatenates window returns and trades and recomputes metrics over the whole sequence
func chain(windows []WindowResult, annual float64) Metrics {
	var returns []float64
	var trades []Trade
	var orders DecisionCounts
	for _, w := range windows {
		returns = append(returns, w.Returns...)
		trades = append(trades, w.Trades...)
		orders.add(w.Metrics.Orders)
	}
	m := ComputeMetrics(returns, trades, annual)
	m.Orders = orders
	return m
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	var out []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
