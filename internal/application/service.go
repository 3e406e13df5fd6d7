package application

import (
	"context"
	"time"

	"github.com/sawpanic/tradeguard/internal/backtest/walkforward"
	"github.com/sawpanic/tradeguard/internal/baseline"
	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/gates"
	"github.com/sawpanic/tradeguard/internal/persistence"
	"github.com/sawpanic/tradeguard/internal/quality"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
	"github.com/sawpanic/tradeguard/internal/social"
)

// Config holds request defaults for the service facade
type Config struct {
	Subreddits          []string                  `yaml:"subreddits"`
	LookbackHours       int                       `yaml:"lookback_hours"`        // 24h mention window
	BaselineDays        int                       `yaml:"baseline_days"`         // 30 days of rolling history
	FetchLimit          int                       `yaml:"fetch_limit"`           // 0 = client default
	Workers             int                       `yaml:"workers"`               // 4 symbols scored concurrently
	SnapshotMaxAge      time.Duration             `yaml:"snapshot_max_age"`      // 6h before a stored snapshot is rescored
	CallTimeout         time.Duration             `yaml:"call_timeout"`          // 30s per collaborator call
	BacktestHistoryDays int                       `yaml:"backtest_history_days"` // 180 days when the request sets no dates
	Grid                walkforward.Grid          `yaml:"grid"`
	Trending            *sentiment.TrendingConfig `yaml:"trending"`
}

// DefaultConfig returns the facade defaults
func DefaultConfig() *Config {
	return &Config{
		Subreddits:          []string{"wallstreetbets", "stocks", "investing", "options", "StockMarket"},
		LookbackHours:       24,
		BaselineDays:        30,
		Workers:             4,
		SnapshotMaxAge:      6 * time.Hour,
		CallTimeout:         30 * time.Second,
		BacktestHistoryDays: 180,
		Grid:                walkforward.DefaultGrid(),
		Trending:            sentiment.DefaultTrendingConfig(),
	}
}

// Validate rejects unusable request defaults
func (c *Config) Validate() error {
	if c.LookbackHours < 1 || c.LookbackHours > 24*14 {
		return errs.Configf("service.lookback_hours", "must be in [1,336], got %d", c.LookbackHours)
	}
	if c.BaselineDays < 1 || c.BaselineDays > 365 {
		return errs.Configf("service.baseline_days", "must be in [1,365], got %d", c.BaselineDays)
	}
	if c.FetchLimit < 0 {
		return errs.Configf("service.fetch_limit", "must be >= 0, got %d", c.FetchLimit)
	}
	if c.Workers < 1 || c.Workers > 64 {
		return errs.Configf("service.workers", "must be in [1,64], got %d", c.Workers)
	}
	if c.SnapshotMaxAge < 0 {
		return errs.Configf("service.snapshot_max_age", "must be >= 0, got %s", c.SnapshotMaxAge)
	}
	if c.CallTimeout <= 0 {
		return errs.Configf("service.call_timeout", "must be > 0, got %s", c.CallTimeout)
	}
	if c.BacktestHistoryDays < 1 {
		return errs.Configf("service.backtest_history_days", "must be >= 1, got %d", c.BacktestHistoryDays)
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if c.Trending != nil {
		return c.Trending.Validate()
	}
	return nil
}

// Components is the core pipeline the service drives
type Components struct {
	Extractor *social.Extractor
	Filter    *quality.Filter
	Scorer    *sentiment.Scorer
	Gate      *gates.PreTradeGate
	Engine    *walkforward.Engine
}

// Dependencies are the collaborators and stores; nil stores fall back to in-memory ones
type Dependencies struct {
	Social    SocialSource
	Account   AccountSource
	Prices    PriceSource
	Snapshots persistence.SnapshotRepo
	Baselines baseline.Store
	Recorder  Recorder
}

// Service exposes ScoreSentiment, EvaluateOrder, RunBacktest and TrendingTickers
type Service struct {
	config     *Config
	components Components
	deps       Dependencies
	now        func() time.Time
}

// NewService validates config (nil uses defaults) and requires every core component
func NewService(config *Config, components Components, deps Dependencies) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := components
	if c.Extractor == nil || c.Filter == nil || c.Scorer == nil || c.Gate == nil || c.Engine == nil {
		return nil, errs.Configf("service.components", "extractor, filter, scorer, gate and engine are all required")
	}
	if deps.Snapshots == nil {
		deps.Snapshots = persistence.NewMemorySnapshotRepo()
	}
	if deps.Baselines == nil {
		deps.Baselines = baseline.NewMemoryStore()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	return &Service{config: config, components: c, deps: deps, now: time.Now}, nil
}

// NewPipeline builds every core component from their configs; nil configs use defaults
func NewPipeline(ext *social.ExtractorConfig, filter *quality.FilterConfig, scorer *sentiment.Config,
	gate *gates.Config, engine *walkforward.Config) (Components, error) {
	var (
		c   Components
		err error
	)
	if c.Extractor, err = social.NewExtractor(ext); err != nil {
		return Components{}, err
	}
	if c.Filter, err = quality.NewFilter(filter); err != nil {
		return Components{}, err
	}
	if c.Scorer, err = sentiment.NewScorer(scorer, nil); err != nil {
		return Components{}, err
	}
	if c.Gate, err = gates.NewPreTradeGate(gate); err != nil {
		return Components{}, err
	}
	c.Engine, err = walkforward.NewEngine(engine, walkforward.Pipeline{
		Extractor: c.Extractor,
		Filter:    c.Filter,
		Scorer:    c.Scorer,
		Gate:      c.Gate,
	})
	if err != nil {
		return Components{}, err
	}
	return c, nil
}

// WithClock returns a copy that uses now for window ends and snapshot ages
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// Config returns the facade defaults
func (s *Service) Config() Config {
	return *s.config
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.CallTimeout)
}

func (s *Service) observe(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(NewErrorBody(err).Kind)
	}
	s.deps.Recorder.ObserveDuration(operation, result, time.Since(start))
}

func (s *Service) subreddits(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return s.config.Subreddits
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
