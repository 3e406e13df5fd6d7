package gates

import (
	"strings"

	"github.com/sawpanic/tradeguard/internal/errs"
)

// Config contains the hard pre-trade limits and the sentiment guardrail switches
type Config struct {
	MaxDailyLossPct      float64  `yaml:"max_daily_loss_pct"`      // ≤3% intraday equity drawdown
	MaxOrderNotionalPct  float64  `yaml:"max_order_notional_pct"`  // ≤15% of equity per order
	MaxSymbolExposurePct float64  `yaml:"max_symbol_exposure_pct"` // ≤30% of equity per symbol
	MaxPendingOrders     int      `yaml:"max_pending_orders"`      // <3 pending orders per symbol
	ExcludedSymbols      []string `yaml:"excluded_symbols"`        // Never traded, any side

	QuantityStep       float64 `yaml:"quantity_step"`        // 1 share
	CryptoQuantityStep float64 `yaml:"crypto_quantity_step"` // 1e-8 units

	Sentiment SentimentGuardConfig `yaml:"sentiment"`
}

// SentimentGuardConfig controls the sentiment guardrail and conviction sizing
type SentimentGuardConfig struct {
	Enabled              bool     `yaml:"enabled"`
	FailClosed           bool     `yaml:"fail_closed"`            // Missing/low-confidence sentiment denies
	ConfidenceFloor      float64  `yaml:"confidence_floor"`       // ≥0.25 required on gated paths
	GatedSymbols         []string `yaml:"gated_symbols"`          // Empty = every stock buy is gated
	HypeAdjustConfidence float64  `yaml:"hype_adjust_confidence"` // <0.45 with high hype → downsize
	HypeSizeScale        float64  `yaml:"hype_size_scale"`        // 0.5× requested quantity
}

// DefaultConfig returns production pre-trade limits
func DefaultConfig() *Config {
	return &Config{
		MaxDailyLossPct:      0.03,
		MaxOrderNotionalPct:  0.15,
		MaxSymbolExposurePct: 0.30,
		MaxPendingOrders:     3,
		QuantityStep:         1,
		CryptoQuantityStep:   1e-8,
		Sentiment: SentimentGuardConfig{
			Enabled:              true,
			FailClosed:           true,
			ConfidenceFloor:      0.25,
			HypeAdjustConfidence: 0.45,
			HypeSizeScale:        0.5,
		},
	}
}

// Validate rejects limits outside their meaningful ranges
func (c *Config) Validate() error {
	pcts := []struct {
		field string
		value float64
	}{
		{"gate.max_daily_loss_pct", c.MaxDailyLossPct},
		{"gate.max_order_notional_pct", c.MaxOrderNotionalPct},
		{"gate.max_symbol_exposure_pct", c.MaxSymbolExposurePct},
	}
	for _, p := range pcts {
		if p.value <= 0 || p.value > 1 {
			return errs.Configf(p.field, "must be in (0,1], got %v", p.value)
		}
	}
	if c.MaxPendingOrders < 1 {
		return errs.Configf("gate.max_pending_orders", "must be >= 1, got %d", c.MaxPendingOrders)
	}
	if c.QuantityStep <= 0 {
		return errs.Configf("gate.quantity_step", "must be > 0, got %v", c.QuantityStep)
	}
	if c.CryptoQuantityStep <= 0 {
		return errs.Configf("gate.crypto_quantity_step", "must be > 0, got %v", c.CryptoQuantityStep)
	}
	s := c.Sentiment
	if s.ConfidenceFloor < 0 || s.ConfidenceFloor > 1 {
		return errs.Configf("gate.sentiment.confidence_floor", "must be in [0,1], got %v", s.ConfidenceFloor)
	}
	if s.HypeAdjustConfidence < 0 || s.HypeAdjustConfidence > 1 {
		return errs.Configf("gate.sentiment.hype_adjust_confidence", "must be in [0,1], got %v", s.HypeAdjustConfidence)
	}
	if s.HypeSizeScale <= 0 || s.HypeSizeScale > 1 {
		return errs.Configf("gate.sentiment.hype_size_scale", "must be in (0,1], got %v", s.HypeSizeScale)
	}
	return nil
}

// Limits snapshots the configuration embedded in every decision
func (c *Config) Limits() PolicyLimits {
	return PolicyLimits{
		MaxDailyLossPct:          c.MaxDailyLossPct,
		MaxOrderNotionalPct:      c.MaxOrderNotionalPct,
		MaxSymbolExposurePct:     c.MaxSymbolExposurePct,
		MaxPendingOrders:         c.MaxPendingOrders,
		SentimentEnabled:         c.Sentiment.Enabled,
		SentimentFailClosed:      c.Sentiment.FailClosed,
		SentimentConfidenceFloor: c.Sentiment.ConfidenceFloor,
		HypeAdjustConfidence:     c.Sentiment.HypeAdjustConfidence,
		HypeSizeScale:            c.Sentiment.HypeSizeScale,
	}
}

func symbolSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}
