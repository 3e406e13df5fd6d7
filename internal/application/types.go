package application

import (
	"context"
	"errors"

	"github.com/sawpanic/tradeguard/internal/backtest/walkforward"
	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/gates"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
	"github.com/sawpanic/tradeguard/internal/social"
)

// Error kinds for failures outside the core taxonomy
const (
	KindUpstream errs.Kind = "UPSTREAM"
	KindTimeout  errs.Kind = "TIMEOUT"
	KindCanceled errs.Kind = "CANCELED"
)

// ErrorBody is the explicit error carried by every response
type ErrorBody struct {
	Kind    errs.Kind `json:"kind"`
	Message string    `json:"message"`
}

// NewErrorBody classifies err; nil yields nil
func NewErrorBody(err error) *ErrorBody {
	if err == nil {
		return nil
	}
	kind := errs.KindOf(err)
	if kind == "" {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			kind = KindTimeout
		case errors.Is(err, context.Canceled):
			kind = KindCanceled
		default:
			kind = KindUpstream
		}
	}
	return &ErrorBody{Kind: kind, Message: err.Error()}
}

// SentimentRequest asks for one snapshot per symbol over the trailing window
type SentimentRequest struct {
	Symbols       []string `json:"symbols"`
	Subreddits    []string `json:"subreddits,omitempty"`     // Empty = configured defaults
	LookbackHours int      `json:"lookback_hours,omitempty"` // 0 = configured default
	BaselineDays  int      `json:"baseline_days,omitempty"`  // 0 = configured default
}

// SentimentResponse carries snapshots in request symbol order
type SentimentResponse struct {
	Window    social.Window        `json:"window"`
	Snapshots []sentiment.Snapshot `json:"snapshots"`
	Method    string               `json:"method"`
	Summary   string               `json:"summary"`
	Warnings  []string             `json:"warnings,omitempty"`
	Error     *ErrorBody           `json:"error,omitempty"`
}

// TrendingRequest asks for discovered tickers without a target list
type TrendingRequest struct {
	Subreddits    []string `json:"subreddits,omitempty"`
	LookbackHours int      `json:"lookback_hours,omitempty"`
	MinMentions   int      `json:"min_mentions,omitempty"` // 0 = configured default
	Limit         int      `json:"limit,omitempty"`        // 0 = configured default
}

// TrendingResponse lists tickers ranked by mention volume
type TrendingResponse struct {
	Window  social.Window              `json:"window"`
	Tickers []sentiment.TrendingTicker `json:"tickers"`
	Summary string                     `json:"summary"`
	Error   *ErrorBody                 `json:"error,omitempty"`
}

// OrderRequest submits one order for review; Account and Snapshot are fetched when omitted
type OrderRequest struct {
	Order    gates.ProposedOrder `json:"order"`
	Account  *gates.AccountFacts `json:"account,omitempty"`
	Snapshot *sentiment.Snapshot `json:"snapshot,omitempty"`
}

// OrderResponse always embeds the full decision
type OrderResponse struct {
	Decision gates.Decision `json:"decision"`
	Summary  string         `json:"summary"`
	Warnings []string       `json:"warnings,omitempty"`
	Error    *ErrorBody     `json:"error,omitempty"`
}

// BacktestRequest describes one run; zero fields take configured defaults
type BacktestRequest struct {
	Mode    walkforward.Mode         `json:"mode,omitempty"`
	Symbols []string                 `json:"symbols"`
	Grid    walkforward.Grid         `json:"grid"`
	Window  walkforward.WindowParams `json:"window_params"`
}

// BacktestResponse carries the completed run
type BacktestResponse struct {
	Run       *walkforward.Run           `json:"run,omitempty"`
	Artifacts *walkforward.ArtifactPaths `json:"artifacts,omitempty"`
	Summary   string                     `json:"summary"`
	Error     *ErrorBody                 `json:"error,omitempty"`
}
