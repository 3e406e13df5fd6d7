package application

import (
	"context"
	"time"

	"github.com/sawpanic/tradeguard/internal/backtest/walkforward"
	"github.com/sawpanic/tradeguard/internal/gates"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
	"github.com/sawpanic/tradeguard/internal/social"
)

// SocialSource delivers raw posts and comments from the social-content client
type SocialSource interface {
	FetchRecords(ctx context.Context, query social.Query) ([]social.RawRecord, error)
}

// AccountSource delivers the broker's current account and risk state
type AccountSource interface {
	AccountFacts(ctx context.Context) (*gates.AccountFacts, error)
}

// PriceSource delivers close prints in [from, to)
type PriceSource interface {
	PriceHistory(ctx context.Context, symbol string, from, to time.Time) ([]walkforward.Bar, error)
}

// Recorder receives instrumentation events; metrics.Registry satisfies it
type Recorder interface {
	ObserveSnapshot(snap *sentiment.Snapshot)
	ObserveDecision(d *gates.Decision)
	ObserveBacktest(run *walkforward.Run)
	ObserveDuration(operation, result string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSnapshot(*sentiment.Snapshot) {}
func (nopRecorder) ObserveDecision(*gates.Decision) {}
func (nopRecorder) ObserveBacktest(*walkforward.Run) {}
func (nopRecorder) ObserveDuration(string, string, time.Duration) {}
