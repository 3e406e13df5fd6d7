package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/tradeguard/internal/backtest/walkforward"
	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/social"
)

const day = 24 * time.Hour

// RunBacktest fills request defaults, fetches the history the protocol needs and replays it
func (s *Service) RunBacktest(ctx context.Context, req BacktestRequest) (resp BacktestResponse, err error) {
	start := time.Now()
	defer func() {
		s.observe("run_backtest", start, err)
		resp.Error = NewErrorBody(err)
	}()

	resp.Summary = "Backtest not run."
	wreq := s.backtestRequest(req)
	if len(wreq.Symbols) == 0 {
		return resp, errs.Configf("backtest.symbols", "at least one symbol is required")
	}
	if err := wreq.Window.Validate(); err != nil {
		return resp, err
	}
	if err := wreq.Grid.Validate(); err != nil {
		return resp, err
	}
	if s.deps.Social == nil || s.deps.Prices == nil {
		return resp, errs.Configf("providers", "backtests need both a social and a price source")
	}

	data, err := s.history(ctx, wreq)
	if err != nil {
		return resp, err
	}

	run, err := s.components.Engine.Run(ctx, wreq, data)
	if err != nil {
		return resp, err
	}
	s.deps.Recorder.ObserveBacktest(run)
	resp.Run = run
	resp.Summary = backtestSummary(run)

	// Engine.Run already wrote the artifacts
	if dir := s.components.Engine.Config().OutputDir; dir != "" {
		paths := walkforward.NewWriter(dir, run.CreatedAt).Paths(run)
		resp.Artifacts = &paths
	}
	return resp, nil
}

// backtestRequest applies configured defaults to every zero field
func (s *Service) backtestRequest(req BacktestRequest) walkforward.Request {
	out := walkforward.Request{
		Mode:    req.Mode,
		Symbols: social.ParseSymbols(strings.Join(req.Symbols, ",")),
		Grid:    req.Grid,
		Window:  req.Window,
	}
	if out.Mode == "" {
		out.Mode = walkforward.ModeWalkForward
	}
	if len(out.Grid.SentimentThresholds) == 0 {
		out.Grid.SentimentThresholds = s.config.Grid.SentimentThresholds
	}
	if len(out.Grid.ConfidenceThresholds) == 0 {
		out.Grid.ConfidenceThresholds = s.config.Grid.ConfidenceThresholds
	}

	def := walkforward.DefaultWindowParams()
	def.LookbackHours = s.config.LookbackHours
	def.BaselineDays = s.config.BaselineDays
	w := &out.Window
	w.TrainDays = orDefault(w.TrainDays, def.TrainDays)
	w.TestDays = orDefault(w.TestDays, def.TestDays)
	w.StepDays = orDefault(w.StepDays, def.StepDays)
	w.BarHours = orDefault(w.BarHours, def.BarHours)
	w.LookbackHours = orDefault(w.LookbackHours, def.LookbackHours)
	w.BaselineDays = orDefault(w.BaselineDays, def.BaselineDays)
	if w.End.IsZero() {
		w.End = s.now().UTC().Truncate(day)
	}
	if w.Start.IsZero() {
		w.Start = w.End.Add(-time.Duration(s.config.BacktestHistoryDays) * day)
	}
	return out
}

// history fetches records reaching back far enough to freeze the first baseline, plus bars per symbol
func (s *Service) history(ctx context.Context, req walkforward.Request) (walkforward.Dataset, error) {
	wp := req.Window
	from := wp.Start.Add(-time.Duration(wp.BaselineDays+1)*day - time.Duration(wp.LookbackHours)*time.Hour)

	records, err := s.fetch(ctx, social.Query{
		Symbols:    req.Symbols,
		Subreddits: s.config.Subreddits,
		From:       from,
		To:         wp.End,
	})
	if err != nil {
		return walkforward.Dataset{}, err
	}

	bars := make([][]walkforward.Bar, len(req.Symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, sym := range req.Symbols {
		g.Go(func() error {
			callCtx, cancel := s.callContext(gctx)
			defer cancel()
			series, err := s.deps.Prices.PriceHistory(callCtx, sym, wp.Start, wp.End)
			if err != nil {
				return fmt.Errorf("fetch price history %s: %w", sym, err)
			}
			bars[i] = series
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return walkforward.Dataset{}, err
	}

	data := walkforward.Dataset{Records: records, Bars: make(map[string][]walkforward.Bar, len(req.Symbols))}
	for i, sym := range req.Symbols {
		data.Bars[sym] = bars[i]
	}
	log.Info().
		Strs("symbols", req.Symbols).
		Int("records", len(records)).
		Time("from", from).
		Time("to", wp.End).
		Msg("Backtest history loaded")
	return data, nil
}

func backtestSummary(run *walkforward.Run) string {
	best, ok := run.Best()
	if !ok {
		return fmt.Sprintf("Backtest %s (%s): no results", run.ID, run.Mode)
	}
	return fmt.Sprintf("Backtest %s (%s): %d pairs, %d grid points; best sentiment>=%.2f confidence>=%.2f sharpe=%.2f return=%+.2f%% max_dd=%.2f%%; out-of-sample sharpe=%.2f",
		run.ID, run.Mode, len(run.Pairs), len(run.Results),
		best.Params.SentimentThreshold, best.Params.ConfidenceThreshold,
		best.Metrics.Sharpe, best.Metrics.TotalReturn*100, best.Metrics.MaxDrawdown*100,
		run.OutOfSample.Sharpe)
}
