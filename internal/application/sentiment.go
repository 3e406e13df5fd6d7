package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/tradeguard/internal/baseline"
	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/persistence"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
	"github.com/sawpanic/tradeguard/internal/social"
)

const noSnapshotSummary = "No sentiment snapshot available."

// ScoreSentiment fetches the trailing window once and scores every requested symbol against its baseline
func (s *Service) ScoreSentiment(ctx context.Context, req SentimentRequest) (resp SentimentResponse, err error) {
	start := time.Now()
	defer func() {
		s.observe("score_sentiment", start, err)
		resp.Error = NewErrorBody(err)
	}()

	resp = SentimentResponse{Method: sentiment.MethodRedditV1, Snapshots: []sentiment.Snapshot{}, Summary: noSnapshotSummary}

	symbols := social.ParseSymbols(strings.Join(req.Symbols, ","))
	if len(symbols) == 0 {
		return resp, errs.InputError{Field: "symbols", Reason: "at least one symbol is required"}
	}
	lookback := orDefault(req.LookbackHours, s.config.LookbackHours)
	days := orDefault(req.BaselineDays, s.config.BaselineDays)
	if s.deps.Social == nil {
		return resp, errs.Configf("providers.social", "no social source configured")
	}

	window := social.NewWindow(s.now(), lookback)
	resp.Window = window

	records, err := s.fetch(ctx, social.Query{
		Symbols:    symbols,
		Subreddits: s.subreddits(req.Subreddits),
		From:       window.Start,
		To:         window.End,
		Limit:      s.config.FetchLimit,
	})
	if err != nil {
		return resp, err
	}

	extracted := s.components.Extractor.Extract(records, symbols, window)
	for _, d := range extracted.Dropped {
		log.Debug().Str("record", d.RecordID).Str("field", d.Field).Msg(d.Reason)
	}
	if n := len(extracted.Dropped); n > 0 {
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("%d malformed records dropped", n))
	}

	warmWarnings, err := s.warmBaselines(ctx, symbols, window, days, req.Subreddits)
	if err != nil {
		return resp, err
	}
	resp.Warnings = append(resp.Warnings, warmWarnings...)

	snaps := make([]sentiment.Snapshot, len(symbols))
	warnings := make([][]string, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, sym := range symbols {
		g.Go(func() error {
			snap, warn, err := s.scoreSymbol(gctx, sym, window, extracted, days)
			if err != nil {
				return fmt.Errorf("score %s: %w", sym, err)
			}
			snaps[i] = snap
			warnings[i] = warn
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resp, err
	}

	lines := make([]string, len(snaps))
	for i := range snaps {
		lines[i] = snaps[i].Summary()
		resp.Warnings = append(resp.Warnings, warnings[i]...)
	}
	resp.Snapshots = snaps
	resp.Summary = strings.Join(lines, "\n")

	log.Info().
		Strs("symbols", symbols).
		Int("records", len(records)).
		Int("mentions", len(extracted.Mentions)).
		Int("dropped", len(extracted.Dropped)).
		Dur("duration", time.Since(start)).
		Msg("Sentiment scored")
	return resp, nil
}

// scoreSymbol runs filter, score and baseline update for one symbol. The snapshot is scored
// against the slots before this window's, and repeat polls inside one slot replace its count.
func (s *Service) scoreSymbol(ctx context.Context, symbol string, window social.Window, extracted social.ExtractResult, days int) (sentiment.Snapshot, []string, error) {
	var warnings []string

	filtered := s.components.Filter.Apply(social.ForSymbol(extracted.Mentions, symbol))

	base, err := s.deps.Baselines.Load(ctx, symbol)
	if err != nil {
		return sentiment.Snapshot{}, nil, err
	}

	slot := baseline.Slot(window.End)
	snap := s.components.Scorer.Score(symbol, window, filtered, base.Before(slot))
	obs := baseline.Observation{WindowEnd: slot, Count: snap.Quality.MentionCount}
	if _, err := s.deps.Baselines.Observe(ctx, symbol, obs, retention(days)); err != nil {
		return sentiment.Snapshot{}, nil, err
	}

	if err := s.deps.Snapshots.Insert(ctx, snap); err != nil {
		if !errors.Is(err, persistence.ErrDuplicate) {
			warnings = append(warnings, fmt.Sprintf("%s: snapshot not stored: %v", symbol, err))
		}
		log.Warn().Err(err).Str("symbol", symbol).Msg("Snapshot not stored")
	}
	s.deps.Recorder.ObserveSnapshot(&snap)
	return snap, warnings, nil
}

// warmBaselines rebuilds empty baselines, first from stored snapshot counts, else from the
// days of history before window fetched in one call for every cold symbol
func (s *Service) warmBaselines(ctx context.Context, symbols []string, window social.Window, days int, subreddits []string) ([]string, error) {
	since := window.End.Add(-time.Duration(days) * day)
	var cold []string
	for _, sym := range symbols {
		base, err := s.deps.Baselines.Load(ctx, sym)
		if err != nil {
			return nil, err
		}
		if !base.Empty() {
			continue
		}

		counts, err := s.deps.Snapshots.MentionCounts(ctx, sym, persistence.TimeRange{From: since, To: window.End})
		if err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("Stored mention counts unavailable")
		}
		if len(counts) == 0 {
			cold = append(cold, sym)
			continue
		}
		for i := range counts {
			counts[i].WindowEnd = baseline.Slot(counts[i].WindowEnd)
		}
		log.Info().Str("symbol", sym).Int("observations", len(counts)).Msg("Rebuilding baseline from stored snapshots")
		if _, err := s.deps.Baselines.Rebuild(ctx, sym, counts, retention(days)); err != nil {
			return nil, err
		}
	}
	if len(cold) == 0 {
		return nil, nil
	}

	records, err := s.fetch(ctx, social.Query{
		Symbols:    cold,
		Subreddits: s.subreddits(subreddits),
		From:       since.Add(-window.Duration()),
		To:         window.End.Add(-day),
		Limit:      s.config.FetchLimit,
	})
	if err != nil {
		log.Warn().Err(err).Strs("symbols", cold).Msg("Baseline history unavailable")
		return []string{fmt.Sprintf("baseline history unavailable: %v", err)}, nil
	}
	for _, sym := range cold {
		history := s.dailyCounts(records, sym, window, days)
		log.Info().
			Str("symbol", sym).
			Int("records", len(records)).
			Int("observations", len(history)).
			Msg("Rebuilding baseline from fetched history")
		if _, err := s.deps.Baselines.Rebuild(ctx, sym, history, retention(days)); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// dailyCounts counts filtered mentions in windows shaped like window ending 1..days days earlier
func (s *Service) dailyCounts(records []social.RawRecord, symbol string, window social.Window, days int) []baseline.Observation {
	out := make([]baseline.Observation, 0, days)
	for k := 1; k <= days; k++ {
		w := social.NewWindow(window.End.Add(-time.Duration(k)*day), window.LookbackHours)
		ex := s.components.Extractor.Extract(records, []string{symbol}, w)
		filtered := s.components.Filter.Apply(social.ForSymbol(ex.Mentions, symbol))
		out = append(out, baseline.Observation{WindowEnd: baseline.Slot(w.End), Count: len(filtered.Mentions)})
	}
	return out
}

// retention keeps the current slot plus baselineDays slots before it
func retention(baselineDays int) int {
	return baselineDays + 1
}

func (s *Service) fetch(ctx context.Context, q social.Query) ([]social.RawRecord, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	records, err := s.deps.Social.FetchRecords(callCtx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch social records: %w", err)
	}
	return records, nil
}

// TrendingTickers discovers ticker-shaped tokens across the trailing window without a target list
func (s *Service) TrendingTickers(ctx context.Context, req TrendingRequest) (resp TrendingResponse, err error) {
	start := time.Now()
	defer func() {
		s.observe("trending_tickers", start, err)
		resp.Error = NewErrorBody(err)
	}()

	resp = TrendingResponse{Tickers: []sentiment.TrendingTicker{}, Summary: "No trending tickers."}
	if s.deps.Social == nil {
		return resp, errs.Configf("providers.social", "no social source configured")
	}

	cfg := *sentiment.DefaultTrendingConfig()
	if s.config.Trending != nil {
		cfg = *s.config.Trending
	}
	if req.MinMentions > 0 {
		cfg.MinMentions = req.MinMentions
	}
	if req.Limit > 0 {
		cfg.Limit = req.Limit
	}

	window := social.NewWindow(s.now(), orDefault(req.LookbackHours, s.config.LookbackHours))
	resp.Window = window

	records, err := s.fetch(ctx, social.Query{
		Subreddits: s.subreddits(req.Subreddits),
		From:       window.Start,
		To:         window.End,
		Limit:      s.config.FetchLimit,
	})
	if err != nil {
		return resp, err
	}

	tickers, err := s.components.Scorer.Trending(records, window, s.components.Extractor.Resolver(), &cfg)
	if err != nil {
		return resp, err
	}
	resp.Tickers = tickers
	if len(tickers) > 0 {
		lines := make([]string, len(tickers))
		for i, t := range tickers {
			lines[i] = fmt.Sprintf("%d. %s mentions=%d ($%d) authors=%d sentiment=%+.2f",
				i+1, t.Symbol, t.Mentions, t.DollarMentions, t.UniqueAuthors, t.SentimentScore)
		}
		resp.Summary = strings.Join(lines, "\n")
	}
	return resp, nil
}
