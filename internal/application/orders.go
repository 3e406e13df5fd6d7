package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradeguard/internal/gates"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
)

// EvaluateOrder reviews one order. Missing account facts are fetched; a failed fetch leaves
// them absent so the gate denies. Sentiment-gated orders without a snapshot use a fresh stored
// one, else a live score, else none.
func (s *Service) EvaluateOrder(ctx context.Context, req OrderRequest) (resp OrderResponse, err error) {
	start := time.Now()
	defer func() {
		s.observe("evaluate_order", start, err)
		resp.Error = NewErrorBody(err)
	}()

	if err := ctx.Err(); err != nil {
		return resp, err
	}

	order := req.Order.Normalized()
	facts := req.Account
	if facts == nil && s.deps.Account != nil {
		facts, err = s.accountFacts(ctx)
		if err != nil {
			log.Warn().Err(err).Str("symbol", order.Symbol).Msg("Account facts unavailable")
			resp.Warnings = append(resp.Warnings, err.Error())
			facts, err = nil, nil
		}
	}

	snap := req.Snapshot
	if snap == nil && s.components.Gate.SentimentGated(order) {
		var warn string
		snap, warn = s.resolveSnapshot(ctx, order.Symbol)
		if warn != "" {
			resp.Warnings = append(resp.Warnings, warn)
		}
	}

	decision := s.components.Gate.Evaluate(order, facts, snap)
	s.deps.Recorder.ObserveDecision(&decision)

	resp.Decision = decision
	resp.Summary = decision.Summary
	return resp, nil
}

func (s *Service) accountFacts(ctx context.Context) (*gates.AccountFacts, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	facts, err := s.deps.Account.AccountFacts(callCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch account facts: %w", err)
	}
	return facts, nil
}

// resolveSnapshot prefers a stored snapshot younger than SnapshotMaxAge, then scores live
func (s *Service) resolveSnapshot(ctx context.Context, symbol string) (*sentiment.Snapshot, string) {
	stored, err := s.deps.Snapshots.Latest(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Stored snapshot lookup failed")
	}
	if stored != nil && s.now().Sub(stored.Window.End) <= s.config.SnapshotMaxAge {
		log.Debug().Str("symbol", symbol).Time("window_end", stored.Window.End).Msg("Using stored snapshot")
		return stored, ""
	}

	if s.deps.Social == nil {
		return nil, fmt.Sprintf("%s: %s", symbol, noSnapshotSummary)
	}
	scored, err := s.ScoreSentiment(ctx, SentimentRequest{Symbols: []string{symbol}})
	if err != nil || len(scored.Snapshots) == 0 {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Live sentiment scoring failed")
		return nil, fmt.Sprintf("%s: %s", symbol, noSnapshotSummary)
	}
	snap := scored.Snapshots[0]
	return &snap, ""
}
