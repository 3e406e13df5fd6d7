package providers

import (
	"context"
	"time"

	"github.com/sawpanic/tradeguard/internal/application"
	"github.com/sawpanic/tradeguard/internal/backtest/walkforward"
	"github.com/sawpanic/tradeguard/internal/gates"
	"github.com/sawpanic/tradeguard/internal/social"
)

// GuardedSocialSource routes every fetch through a Guard
type GuardedSocialSource struct {
	inner application.SocialSource
	guard *Guard
}

var _ application.SocialSource = (*GuardedSocialSource)(nil)

// NewGuardedSocialSource wraps inner
func NewGuardedSocialSource(inner application.SocialSource, guard *Guard) *GuardedSocialSource {
	return &GuardedSocialSource{inner: inner, guard: guard}
}

// FetchRecords fetches under the guard's rate limit, breaker and retry policy
func (s *GuardedSocialSource) FetchRecords(ctx context.Context, q social.Query) ([]social.RawRecord, error) {
	var out []social.RawRecord
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		records, err := s.inner.FetchRecords(ctx, q)
		if err != nil {
			return err
		}
		out = records
		return nil
	})
	return out, err
}

// GuardedAccountSource routes every account read through a Guard
type GuardedAccountSource struct {
	inner application.AccountSource
	guard *Guard
}

var _ application.AccountSource = (*GuardedAccountSource)(nil)

// NewGuardedAccountSource wraps inner
func NewGuardedAccountSource(inner application.AccountSource, guard *Guard) *GuardedAccountSource {
	return &GuardedAccountSource{inner: inner, guard: guard}
}

// AccountFacts reads under the guard
func (s *GuardedAccountSource) AccountFacts(ctx context.Context) (*gates.AccountFacts, error) {
	var out *gates.AccountFacts
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		facts, err := s.inner.AccountFacts(ctx)
		if err != nil {
			return err
		}
		out = facts
		return nil
	})
	return out, err
}

// GuardedPriceSource routes every history read through a Guard
type GuardedPriceSource struct {
	inner application.PriceSource
	guard *Guard
}

var _ application.PriceSource = (*GuardedPriceSource)(nil)

// NewGuardedPriceSource wraps inner
func NewGuardedPriceSource(inner application.PriceSource, guard *Guard) *GuardedPriceSource {
	return &GuardedPriceSource{inner: inner, guard: guard}
}

// PriceHistory reads under the guard
func (s *GuardedPriceSource) PriceHistory(ctx context.Context, symbol string, from, to time.Time) ([]walkforward.Bar, error) {
	var out []walkforward.Bar
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		bars, err := s.inner.PriceHistory(ctx, symbol, from, to)
		if err != nil {
			return err
		}
		out = bars
		return nil
	})
	return out, err
}
