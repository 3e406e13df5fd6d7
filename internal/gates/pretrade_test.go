package gates

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tradeguard/internal/score/sentiment"
)

func newTestGate(t *testing.T, mutate func(c *Config)) *PreTradeGate {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	g, err := NewPreTradeGate(cfg)
	require.NoError(t, err)
	return g.WithClock(func() time.Time { return time.Date(2025, 9, 8, 14, 30, 0, 0, time.UTC) })
}

func healthyAccount() *AccountFacts {
	return &AccountFacts{
		BuyingPower:         50000,
		Equity:              100000,
		PreviousCloseEquity: 100500,
		Positions: []Position{
			{Symbol: "AAPL", Quantity: 50, Exposure: 10000, IntradayPL: -120},
		},
		PendingOrderCount: 0,
		MarketSession:     SessionRegular,
	}
}

func buy(symbol string, qty, price float64) ProposedOrder {
	return ProposedOrder{Symbol: symbol, Side: SideBuy, Quantity: qty, OrderType: OrderMarket, ReferencePrice: price}
}

func confidentSnapshot(symbol string) *sentiment.Snapshot {
	return &sentiment.Snapshot{
		Symbol:         symbol,
		SentimentScore: 0.4,
		Confidence:     0.7,
		HypeRisk:       sentiment.HypeLow,
		Method:         sentiment.MethodRedditV1,
		Quality:        sentiment.Quality{MentionCount: 25},
	}
}

var allChecks = []string{
	CheckOrderValidity, CheckHardExcludeList, CheckAccountDataRequired, CheckReferencePrice,
	CheckBuyingPower, CheckOrderNotionalLimit, CheckSymbolExposureLimit, CheckPendingOrderLimit,
	CheckDailyLossLimit, CheckMarketSession, CheckSentimentGuardrail, CheckConvictionSize,
}

func reasonNames(d Decision) []string {
	names := make([]string, 0, len(d.Reasons))
	for _, r := range d.Reasons {
		names = append(names, r.Name)
	}
	return names
}

func TestEvaluate_ApprovesHealthyBuy(t *testing.T) {
	g := newTestGate(t, nil)
	d := g.Evaluate(buy("msft", 10, 400), healthyAccount(), confidentSnapshot("MSFT"))

	assert.Equal(t, OutcomeApprove, d.Outcome)
	assert.Nil(t, d.AdjustedQuantity)
	assert.Empty(t, d.BlockedBy)
	assert.Equal(t, allChecks, reasonNames(d))
	assert.Equal(t, "MSFT", d.Order.Symbol)
	assert.InDelta(t, 4000.0, d.Metrics.Notional, 1e-9)
	assert.Equal(t, pnlSourcePreviousClose, d.Metrics.DailyPnLSource)
	assert.InDelta(t, -500.0, d.Metrics.DailyPnL, 1e-9)
	assert.NotEmpty(t, d.ID)
	assert.True(t, d.Allowed())
	require.NotNil(t, d.Sentiment)
	assert.Equal(t, "low", d.Sentiment.HypeRisk)
}

func TestEvaluate_BuyingPowerAlwaysDenies(t *testing.T) {
	g := newTestGate(t, nil)
	facts := healthyAccount()
	facts.BuyingPower = 0

	for _, price := range []float64{0.01, 1, 250, 10000} {
		snap := confidentSnapshot("MSFT")
		snap.Confidence = 1.0
		snap.SentimentScore = 0.9

		d := g.Evaluate(buy("MSFT", 10, price), facts, snap)

		assert.Equal(t, OutcomeDeny, d.Outcome, "price=%v", price)
		assert.Equal(t, CheckBuyingPower, d.BlockedBy)
		r, ok := d.Check(CheckBuyingPower)
		require.True(t, ok)
		assert.Equal(t, "fail", r.Status())
		assert.Equal(t, allChecks, reasonNames(d), "every check recorded on deny")
	}
}

func TestEvaluate_PendingBuyNotionalReservesBuyingPower(t *testing.T) {
	g := newTestGate(t, nil)
	facts := healthyAccount()
	facts.BuyingPower = 5000
	facts.PendingBuyNotional = 2000

	d := g.Evaluate(buy("MSFT", 10, 400), facts, confidentSnapshot("MSFT"))
	assert.Equal(t, OutcomeDeny, d.Outcome)
	assert.Equal(t, CheckBuyingPower, d.BlockedBy)
}

func TestEvaluate_HardGuardrails(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		order     ProposedOrder
		facts     func(f *AccountFacts) *AccountFacts
		blockedBy string
	}{
		{
			name:      "zero_quantity",
			order:     buy("MSFT", 0, 400),
			blockedBy: CheckOrderValidity,
		},
		{
			name:      "unknown_side",
			order:     ProposedOrder{Symbol: "MSFT", Side: "hold", Quantity: 1, ReferencePrice: 10},
			blockedBy: CheckOrderValidity,
		},
		{
			name:      "excluded_sell",
			mutate:    func(c *Config) { c.ExcludedSymbols = []string{"gme"} },
			order:     ProposedOrder{Symbol: "GME", Side: SideSell, Quantity: 1, ReferencePrice: 20},
			blockedBy: CheckHardExcludeList,
		},
		{
			name:      "buy_without_account",
			order:     buy("MSFT", 1, 400),
			facts:     func(*AccountFacts) *AccountFacts { return nil },
			blockedBy: CheckAccountDataRequired,
		},
		{
			name:      "buy_without_price",
			order:     buy("MSFT", 1, 0),
			blockedBy: CheckReferencePrice,
		},
		{
			name:      "order_notional",
			order:     buy("MSFT", 40, 400),
			blockedBy: CheckOrderNotionalLimit,
		},
		{
			name:      "symbol_exposure",
			order:     buy("AAPL", 60, 230),
			facts:     func(f *AccountFacts) *AccountFacts { f.Positions[0].Exposure = 20000; return f },
			blockedBy: CheckSymbolExposureLimit,
		},
		{
			name:      "pending_orders",
			order:     ProposedOrder{Symbol: "MSFT", Side: SideSell, Quantity: 1, ReferencePrice: 400},
			facts:     func(f *AccountFacts) *AccountFacts { f.PendingOrdersBySymbol = map[string]int{"msft": 3}; return f },
			blockedBy: CheckPendingOrderLimit,
		},
		{
			name:      "daily_loss_previous_close",
			order:     buy("MSFT", 1, 400),
			facts:     func(f *AccountFacts) *AccountFacts { f.PreviousCloseEquity = 104000; return f },
			blockedBy: CheckDailyLossLimit,
		},
		{
			name:  "daily_loss_intraday_fallback",
			order: buy("MSFT", 1, 400),
			facts: func(f *AccountFacts) *AccountFacts {
				f.PreviousCloseEquity = 0
				f.Positions[0].IntradayPL = -3500
				return f
			},
			blockedBy: CheckDailyLossLimit,
		},
		{
			name:      "market_buy_after_hours",
			order:     buy("MSFT", 1, 400),
			facts:     func(f *AccountFacts) *AccountFacts { f.MarketSession = SessionPost; return f },
			blockedBy: CheckMarketSession,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate(t, tt.mutate)
			facts := healthyAccount()
			if tt.facts != nil {
				facts = tt.facts(facts)
			}
			d := g.Evaluate(tt.order, facts, confidentSnapshot(tt.order.Normalized().Symbol))

			assert.Equal(t, OutcomeDeny, d.Outcome)
			assert.Equal(t, tt.blockedBy, d.BlockedBy)
			assert.Nil(t, d.AdjustedQuantity)
			assert.Equal(t, allChecks, reasonNames(d))
			assert.Contains(t, d.HardFailures(), tt.blockedBy)
		})
	}
}

func TestEvaluate_UnpricedBuyFailsBuyingPower(t *testing.T) {
	g := newTestGate(t, nil)
	facts := healthyAccount()
	facts.BuyingPower = 0

	d := g.Evaluate(buy("MSFT", 10, 0), facts, confidentSnapshot("MSFT"))
	assert.Equal(t, OutcomeDeny, d.Outcome)
	assert.Equal(t, CheckReferencePrice, d.BlockedBy)
	assert.Equal(t, []string{CheckReferencePrice, CheckBuyingPower}, d.HardFailures())

	bp, ok := d.Check(CheckBuyingPower)
	require.True(t, ok)
	assert.Equal(t, "fail", bp.Status())
	assert.Contains(t, bp.Observed, "order_notional=unknown")

	for _, name := range []string{CheckOrderNotionalLimit, CheckSymbolExposureLimit} {
		r, ok := d.Check(name)
		require.True(t, ok, name)
		assert.Equal(t, "skip", r.Status(), name)
	}
}

func TestEvaluate_SessionExceptions(t *testing.T) {
	g := newTestGate(t, nil)
	facts := healthyAccount()
	facts.MarketSession = SessionPre

	limit := buy("MSFT", 1, 0)
	limit.OrderType = OrderLimit
	limit.LimitPrice = 399
	assert.Equal(t, OutcomeApprove, g.Evaluate(limit, facts, confidentSnapshot("MSFT")).Outcome)

	ext := buy("MSFT", 1, 400)
	ext.ExtendedHours = true
	assert.Equal(t, OutcomeApprove, g.Evaluate(ext, facts, confidentSnapshot("MSFT")).Outcome)

	facts.MarketSession = SessionUnknown
	assert.Equal(t, OutcomeApprove, g.Evaluate(buy("MSFT", 1, 400), facts, confidentSnapshot("MSFT")).Outcome)
}

func TestEvaluate_SentimentFailClosedVsOpen(t *testing.T) {
	closed := newTestGate(t, nil)
	open := newTestGate(t, func(c *Config) { c.Sentiment.FailClosed = false })

	order := buy("MSFT", 10, 400)

	dClosed := closed.Evaluate(order, healthyAccount(), nil)
	assert.Equal(t, OutcomeDeny, dClosed.Outcome)
	assert.Equal(t, CheckSentimentGuardrail, dClosed.BlockedBy)

	dOpen := open.Evaluate(order, healthyAccount(), nil)
	assert.Equal(t, OutcomeApprove, dOpen.Outcome)
	r, ok := dOpen.Check(CheckSentimentGuardrail)
	require.True(t, ok)
	assert.True(t, r.Skipped)
	assert.True(t, r.Passed)

	lowConf := confidentSnapshot("MSFT")
	lowConf.Confidence = 0.1
	assert.Equal(t, OutcomeDeny, closed.Evaluate(order, healthyAccount(), lowConf).Outcome)
	assert.Equal(t, OutcomeApprove, open.Evaluate(order, healthyAccount(), lowConf).Outcome)

	otherSymbol := confidentSnapshot("TSLA")
	assert.Equal(t, OutcomeDeny, closed.Evaluate(order, healthyAccount(), otherSymbol).Outcome, "snapshot for another symbol counts as missing")
}

func TestEvaluate_SentimentGatedPaths(t *testing.T) {
	g := newTestGate(t, func(c *Config) { c.Sentiment.GatedSymbols = []string{"GME"} })

	assert.Equal(t, OutcomeApprove, g.Evaluate(buy("MSFT", 1, 400), healthyAccount(), nil).Outcome, "ungated symbol")
	assert.Equal(t, OutcomeDeny, g.Evaluate(buy("GME", 1, 20), healthyAccount(), nil).Outcome, "gated symbol")

	sell := ProposedOrder{Symbol: "GME", Side: SideSell, Quantity: 1, ReferencePrice: 20}
	assert.Equal(t, OutcomeApprove, g.Evaluate(sell, healthyAccount(), nil).Outcome, "sells are not gated")

	disabled := newTestGate(t, func(c *Config) { c.Sentiment.Enabled = false })
	assert.Equal(t, OutcomeApprove, disabled.Evaluate(buy("GME", 1, 20), healthyAccount(), nil).Outcome)
}

func TestEvaluate_ConvictionSizing(t *testing.T) {
	g := newTestGate(t, nil)

	hype := confidentSnapshot("GME")
	hype.HypeRisk = sentiment.HypeHigh
	hype.Confidence = 0.3

	d := g.Evaluate(buy("GME", 11, 20), healthyAccount(), hype)
	require.Equal(t, OutcomeAdjust, d.Outcome)
	require.NotNil(t, d.AdjustedQuantity)
	assert.Equal(t, 5.0, *d.AdjustedQuantity)
	assert.Equal(t, "GME", d.Order.Symbol)
	assert.Equal(t, SideBuy, d.Order.Side)
	r, ok := d.Check(CheckConvictionSize)
	require.True(t, ok)
	assert.False(t, r.Hard)

	tiny := g.Evaluate(buy("GME", 1, 20), healthyAccount(), hype)
	assert.Equal(t, OutcomeApprove, tiny.Outcome, "cannot shrink below one share")
	assert.Nil(t, tiny.AdjustedQuantity)

	confident := confidentSnapshot("GME")
	confident.HypeRisk = sentiment.HypeHigh
	confident.Confidence = 0.8
	assert.Equal(t, OutcomeApprove, g.Evaluate(buy("GME", 11, 20), healthyAccount(), confident).Outcome)
}

func TestEvaluate_AdjustNeverIncreasesOrBypassesHardCaps(t *testing.T) {
	g := newTestGate(t, func(c *Config) { c.CryptoQuantityStep = 0.001 })
	hype := confidentSnapshot("GME")
	hype.HypeRisk = sentiment.HypeHigh
	hype.Confidence = 0.3

	for _, qty := range []float64{1, 2, 3, 7.5, 10, 33, 37} {
		d := g.Evaluate(buy("GME", qty, 400), healthyAccount(), hype)
		if d.Outcome == OutcomeAdjust {
			require.NotNil(t, d.AdjustedQuantity)
			assert.Less(t, *d.AdjustedQuantity, qty)
			assert.Greater(t, *d.AdjustedQuantity, 0.0)
		}
		if len(d.HardFailures()) > 0 {
			assert.Equal(t, OutcomeDeny, d.Outcome, "qty=%v", qty)
		}
	}

	crypto := ProposedOrder{Symbol: "GME", Side: SideBuy, Quantity: 0.015, ReferencePrice: 400, AssetClass: AssetCrypto}
	d := g.Evaluate(crypto, healthyAccount(), hype)
	require.Equal(t, OutcomeAdjust, d.Outcome)
	assert.InDelta(t, 0.007, *d.AdjustedQuantity, 1e-12, "crypto sizes floor to the crypto step")
	r, ok := d.Check(CheckSentimentGuardrail)
	require.True(t, ok)
	assert.True(t, r.Skipped, "crypto buys are not sentiment-gated")
}

func TestEvaluate_SellWithoutAccountData(t *testing.T) {
	g := newTestGate(t, nil)
	d := g.Evaluate(ProposedOrder{Symbol: "AAPL", Side: SideSell, Quantity: 5}, nil, nil)
	assert.Equal(t, OutcomeApprove, d.Outcome)
	assert.Equal(t, allChecks, reasonNames(d))
}

func TestDecision_JSONShape(t *testing.T) {
	g := newTestGate(t, nil)
	d := g.Evaluate(buy("MSFT", 10, 400), healthyAccount(), confidentSnapshot("MSFT"))

	data, err := json.Marshal(d)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "approve", raw["outcome"])
	assert.NotContains(t, raw, "adjusted_quantity")
	assert.Contains(t, raw, "policy")
	assert.Contains(t, d.DetailedReport(), CheckBuyingPower)
}

func TestNewPreTradeGate_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"daily_loss", func(c *Config) { c.MaxDailyLossPct = 0 }},
		{"notional", func(c *Config) { c.MaxOrderNotionalPct = 1.5 }},
		{"pending", func(c *Config) { c.MaxPendingOrders = 0 }},
		{"floor", func(c *Config) { c.Sentiment.ConfidenceFloor = 2 }},
		{"scale_up", func(c *Config) { c.Sentiment.HypeSizeScale = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			_, err := NewPreTradeGate(cfg)
			require.Error(t, err)
		})
	}
}
