package gates

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
)

// Check names, in evaluation order
const (
	CheckOrderValidity       = "order_validity"
	CheckHardExcludeList     = "hard_exclude_list"
	CheckAccountDataRequired = "account_data_required"
	CheckReferencePrice      = "reference_price"
	CheckBuyingPower         = "buying_power"
	CheckOrderNotionalLimit  = "order_notional_limit"
	CheckSymbolExposureLimit = "symbol_exposure_limit"
	CheckPendingOrderLimit   = "pending_order_limit"
	CheckDailyLossLimit      = "daily_loss_limit"
	CheckMarketSession       = "market_session"
	CheckSentimentGuardrail  = "sentiment_guardrail"
	CheckConvictionSize      = "conviction_size"
)

const (
	pnlSourcePreviousClose = "equity_vs_previous_close"
	pnlSourceIntraday      = "open_positions_intraday_sum"
)

// PreTradeGate evaluates a proposed order against account facts and sentiment
type PreTradeGate struct {
	config   *Config
	excluded map[string]struct{}
	gated    map[string]struct{}
	now      func() time.Time
	newID    func() string
	quiet    bool
}

// NewPreTradeGate validates config; nil uses defaults
func NewPreTradeGate(config *Config) (*PreTradeGate, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &PreTradeGate{
		config:   config,
		excluded: symbolSet(config.ExcludedSymbols),
		gated:    symbolSet(config.Sentiment.GatedSymbols),
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Config returns the limits in force
func (g *PreTradeGate) Config() Config {
	return *g.config
}

// WithClock returns a copy that stamps decisions with now; used by the backtest
func (g *PreTradeGate) WithClock(now func() time.Time) *PreTradeGate {
	cp := *g
	cp.now = now
	return &cp
}

// Quiet returns a copy that logs decisions at debug; used for simulated orders
func (g *PreTradeGate) Quiet() *PreTradeGate {
	cp := *g
	cp.quiet = true
	return &cp
}

// evaluation accumulates reasons for one order
type evaluation struct {
	reasons   []Reason
	blockedBy string
}

func (e *evaluation) hard(name string, passed bool, observed string) {
	e.reasons = append(e.reasons, Reason{Name: name, Passed: passed, Hard: true, Observed: observed})
	if !passed && e.blockedBy == "" {
		e.blockedBy = name
	}
}

func (e *evaluation) skip(name string, hard bool, observed string) {
	e.reasons = append(e.reasons, Reason{Name: name, Passed: true, Hard: hard, Skipped: true, Observed: observed})
}

// Evaluate runs every check and returns the decision. Failures are outcomes, never errors.
func (g *PreTradeGate) Evaluate(order ProposedOrder, facts *AccountFacts, snap *sentiment.Snapshot) Decision {
	order = order.Normalized()
	isBuy := order.Side == SideBuy
	isStock := order.AssetClass == AssetStock
	ev := &evaluation{}

	d := Decision{
		ID:          g.newID(),
		Order:       order,
		Policy:      g.config.Limits(),
		EvaluatedAt: g.now().UTC(),
	}
	if snap != nil {
		d.Sentiment = &SentimentSummary{
			Symbol:         snap.Symbol,
			SentimentScore: snap.SentimentScore,
			Confidence:     snap.Confidence,
			HypeRisk:       string(snap.HypeRisk),
			Method:         snap.Method,
		}
	}

	// 1. order validity
	validSide := order.Side == SideBuy || order.Side == SideSell
	validQty := order.Quantity > 0 && !math.IsInf(order.Quantity, 0) && !math.IsNaN(order.Quantity)
	ev.hard(CheckOrderValidity, order.Symbol != "" && validSide && validQty,
		fmt.Sprintf("symbol=%q, side=%s, quantity=%g", order.Symbol, order.Side, order.Quantity))

	// 2. hard exclusions apply to every side
	_, excluded := g.excluded[order.Symbol]
	ev.hard(CheckHardExcludeList, !excluded, fmt.Sprintf("symbol=%s, excluded=%t", order.Symbol, excluded))

	// 3. risk-increasing orders need account data
	if isBuy {
		ev.hard(CheckAccountDataRequired, facts != nil, fmt.Sprintf("account_data_available=%t", facts != nil))
	} else {
		ev.skip(CheckAccountDataRequired, true, fmt.Sprintf("side=%s, account_data_available=%t", order.Side, facts != nil))
	}

	qty := decFromFloat(order.Quantity)
	price := decFromFloat(order.Price())
	notional := qty.Mul(price)
	if notional.IsNegative() {
		notional = decimal.Zero
	}
	d.Metrics.ReferencePrice = order.Price()
	d.Metrics.Notional = notional.InexactFloat64()

	// 4. buys must be priceable
	if isBuy {
		ev.hard(CheckReferencePrice, price.IsPositive(), fmt.Sprintf("reference_price=%s", price.StringFixed(4)))
	} else {
		ev.skip(CheckReferencePrice, true, fmt.Sprintf("side=%s", order.Side))
	}

	g.accountChecks(ev, &d, order, facts, notional, price.IsPositive(), isBuy, isStock)
	g.sentimentCheck(ev, order, snap, isBuy, isStock)

	d.Reasons = ev.reasons
	d.BlockedBy = ev.blockedBy
	if d.BlockedBy != "" {
		d.Outcome = OutcomeDeny
		ev.skip(CheckConvictionSize, false, "hard guardrail failed: "+d.BlockedBy)
		d.Reasons = ev.reasons
		d.Summary = fmt.Sprintf("Blocked by pre-trade policy: %s.", d.BlockedBy)
		g.logDecision(&d)
		return d
	}

	d.Outcome = OutcomeApprove
	d.Summary = "Pre-trade policy checks passed."
	if adjusted, observed, ok := g.convictionSize(order, snap, isBuy); ok {
		d.Outcome = OutcomeAdjust
		d.AdjustedQuantity = &adjusted
		ev.reasons = append(ev.reasons, Reason{Name: CheckConvictionSize, Passed: false, Hard: false, Observed: observed})
		d.Summary = fmt.Sprintf("Quantity reduced %g -> %g by conviction sizing (%s).", order.Quantity, adjusted, observed)
	} else {
		ev.reasons = append(ev.reasons, Reason{Name: CheckConvictionSize, Passed: true, Hard: false, Observed: observed})
	}
	d.Reasons = ev.reasons
	g.logDecision(&d)
	return d
}

// accountChecks runs checks 5-10, which all depend on account facts. An unpriced buy fails
// buying power and skips the notional caps, since its notional is unknown.
func (g *PreTradeGate) accountChecks(ev *evaluation, d *Decision, order ProposedOrder, facts *AccountFacts, notional decimal.Decimal, priced, isBuy, isStock bool) {
	names := []string{CheckBuyingPower, CheckOrderNotionalLimit, CheckSymbolExposureLimit, CheckPendingOrderLimit, CheckDailyLossLimit, CheckMarketSession}
	if facts == nil {
		for _, name := range names {
			ev.skip(name, true, "account data unavailable")
		}
		return
	}

	buyingPower := decFromFloat(facts.BuyingPower)
	pendingBuy := decFromFloat(math.Max(0, facts.PendingBuyNotional))
	equity := decFromFloat(facts.Equity)
	if !equity.IsPositive() {
		equity = decimal.Max(decimal.Zero, buyingPower.Add(decFromFloat(facts.MarketValue)))
	}
	exposureBefore := decFromFloat(facts.ExposureFor(order.Symbol))
	exposureAfter := exposureBefore
	if isBuy {
		exposureAfter = exposureBefore.Add(notional)
	} else if order.Side == SideSell {
		exposureAfter = decimal.Max(decimal.Zero, exposureBefore.Sub(notional))
	}

	prevClose := decFromFloat(facts.PreviousCloseEquity)
	var dailyPnL decimal.Decimal
	source := pnlSourceIntraday
	if prevClose.IsPositive() && equity.IsPositive() {
		dailyPnL = equity.Sub(prevClose)
		source = pnlSourcePreviousClose
	} else {
		dailyPnL = decFromFloat(facts.IntradayPL())
	}
	pending := facts.PendingFor(order.Symbol)

	d.Metrics.Equity = equity.InexactFloat64()
	d.Metrics.BuyingPower = facts.BuyingPower
	d.Metrics.PendingBuyNotional = pendingBuy.InexactFloat64()
	d.Metrics.PreviousCloseEquity = facts.PreviousCloseEquity
	d.Metrics.DailyPnL = dailyPnL.InexactFloat64()
	d.Metrics.DailyPnLSource = source
	d.Metrics.SymbolExposureBefore = exposureBefore.InexactFloat64()
	d.Metrics.SymbolExposureAfter = exposureAfter.InexactFloat64()
	d.Metrics.PendingForSymbol = pending
	d.Metrics.MarketSession = facts.MarketSession

	// 5. buying power covers this order plus open buys
	switch {
	case isBuy && !priced:
		ev.hard(CheckBuyingPower, false,
			fmt.Sprintf("buying_power=%s, order_notional=unknown, pending_buy_notional=%s", buyingPower.StringFixed(2), pendingBuy.StringFixed(2)))
	case isBuy:
		required := notional.Add(pendingBuy)
		ev.hard(CheckBuyingPower, buyingPower.GreaterThanOrEqual(required),
			fmt.Sprintf("buying_power=%s, order_notional=%s, pending_buy_notional=%s", buyingPower.StringFixed(2), notional.StringFixed(2), pendingBuy.StringFixed(2)))
	default:
		ev.skip(CheckBuyingPower, true, fmt.Sprintf("side=%s", order.Side))
	}

	// 6. per-order notional cap
	maxNotional := equity.Mul(decFromFloat(g.config.MaxOrderNotionalPct))
	switch {
	case !isBuy:
		ev.skip(CheckOrderNotionalLimit, true, fmt.Sprintf("side=%s", order.Side))
	case !priced:
		ev.skip(CheckOrderNotionalLimit, true, "order_notional unknown")
	case !equity.IsPositive():
		ev.skip(CheckOrderNotionalLimit, true, "equity unavailable")
	default:
		ev.hard(CheckOrderNotionalLimit, notional.LessThanOrEqual(maxNotional),
			fmt.Sprintf("order_notional=%s, max_order_notional=%s", notional.StringFixed(2), maxNotional.StringFixed(2)))
	}

	// 7. per-symbol exposure cap
	maxExposure := equity.Mul(decFromFloat(g.config.MaxSymbolExposurePct))
	switch {
	case !isBuy:
		ev.skip(CheckSymbolExposureLimit, true, fmt.Sprintf("side=%s, symbol_exposure_after=%s", order.Side, exposureAfter.StringFixed(2)))
	case !priced:
		ev.skip(CheckSymbolExposureLimit, true, "order_notional unknown")
	case !equity.IsPositive():
		ev.skip(CheckSymbolExposureLimit, true, "equity unavailable")
	default:
		ev.hard(CheckSymbolExposureLimit, exposureAfter.LessThanOrEqual(maxExposure),
			fmt.Sprintf("symbol_exposure_after=%s, max_symbol_exposure=%s", exposureAfter.StringFixed(2), maxExposure.StringFixed(2)))
	}

	// 8. pending order count, every side
	if isStock {
		ev.hard(CheckPendingOrderLimit, pending < g.config.MaxPendingOrders,
			fmt.Sprintf("pending_for_symbol=%d, max=%d", pending, g.config.MaxPendingOrders))
	} else {
		ev.skip(CheckPendingOrderLimit, true, fmt.Sprintf("asset_class=%s", order.AssetClass))
	}

	// 9. daily loss guard blocks new risk once breached
	maxLoss := equity.Mul(decFromFloat(g.config.MaxDailyLossPct)).Neg()
	if isBuy {
		breached := equity.IsPositive() && dailyPnL.LessThanOrEqual(maxLoss)
		ev.hard(CheckDailyLossLimit, !breached,
			fmt.Sprintf("daily_pnl=%s, source=%s, max_loss_allowed=%s", dailyPnL.StringFixed(2), source, maxLoss.StringFixed(2)))
	} else {
		ev.skip(CheckDailyLossLimit, true, fmt.Sprintf("side=%s, daily_pnl=%s", order.Side, dailyPnL.StringFixed(2)))
	}

	// 10. market buys outside the regular session
	session := facts.MarketSession
	sessionOK := true
	if isStock && isBuy && order.OrderType == OrderMarket && !order.ExtendedHours && session != "" && session != SessionUnknown {
		sessionOK = session == SessionRegular
	}
	ev.hard(CheckMarketSession, sessionOK,
		fmt.Sprintf("asset_class=%s, session=%s, order_type=%s, extended_hours=%t", order.AssetClass, sessionOrUnknown(session), order.OrderType, order.ExtendedHours))
}

// sentimentCheck is check 11; fail-closed turns missing or low-confidence sentiment into a hard failure
func (g *PreTradeGate) sentimentCheck(ev *evaluation, order ProposedOrder, snap *sentiment.Snapshot, isBuy, isStock bool) {
	cfg := g.config.Sentiment
	if !cfg.Enabled {
		ev.skip(CheckSentimentGuardrail, true, "guardrail disabled")
		return
	}
	if !g.sentimentGated(order.Symbol, isBuy, isStock) {
		ev.skip(CheckSentimentGuardrail, true, fmt.Sprintf("not a sentiment-gated path (side=%s, asset_class=%s)", order.Side, order.AssetClass))
		return
	}

	if snap != nil && snap.Symbol != "" && snap.Symbol != order.Symbol {
		snap = nil
	}
	var observed string
	ok := true
	switch {
	case snap == nil:
		ok = false
		observed = fmt.Sprintf("fail_closed=%t, sentiment unavailable", cfg.FailClosed)
	case snap.Confidence < cfg.ConfidenceFloor:
		ok = false
		observed = fmt.Sprintf("fail_closed=%t, confidence=%.3f, floor=%.3f", cfg.FailClosed, snap.Confidence, cfg.ConfidenceFloor)
	default:
		observed = fmt.Sprintf("confidence=%.3f, floor=%.3f, hype_risk=%s", snap.Confidence, cfg.ConfidenceFloor, snap.HypeRisk)
	}

	if !ok && !cfg.FailClosed {
		ev.skip(CheckSentimentGuardrail, true, observed+" (fail-open, ignored)")
		return
	}
	ev.hard(CheckSentimentGuardrail, ok, observed)
}

func (g *PreTradeGate) sentimentGated(symbol string, isBuy, isStock bool) bool {
	if !isBuy || !isStock {
		return false
	}
	if len(g.gated) == 0 {
		return true
	}
	_, ok := g.gated[symbol]
	return ok
}

// convictionSize may only scale a buy down; ok=false leaves the requested quantity unchanged
func (g *PreTradeGate) convictionSize(order ProposedOrder, snap *sentiment.Snapshot, isBuy bool) (float64, string, bool) {
	cfg := g.config.Sentiment
	switch {
	case !cfg.Enabled:
		return 0, "sentiment disabled", false
	case !isBuy:
		return 0, fmt.Sprintf("side=%s", order.Side), false
	case snap == nil || (snap.Symbol != "" && snap.Symbol != order.Symbol):
		return 0, "no sentiment snapshot", false
	case snap.HypeRisk != sentiment.HypeHigh || snap.Confidence >= cfg.HypeAdjustConfidence:
		return 0, fmt.Sprintf("hype_risk=%s, confidence=%.3f", snap.HypeRisk, snap.Confidence), false
	}

	step := decFromFloat(g.config.QuantityStep)
	if order.AssetClass == AssetCrypto {
		step = decFromFloat(g.config.CryptoQuantityStep)
	}
	qty := decFromFloat(order.Quantity)
	scaled := floorToStep(qty.Mul(decFromFloat(cfg.HypeSizeScale)), step)
	observed := fmt.Sprintf("hype_risk=high, confidence=%.3f, scale=%.2f", snap.Confidence, cfg.HypeSizeScale)

	if scaled.LessThan(step) || !scaled.LessThan(qty) {
		return 0, observed + ", below one step: unchanged", false
	}
	return scaled.InexactFloat64(), observed, true
}

func (g *PreTradeGate) logDecision(d *Decision) {
	if g.quiet {
		log.Debug().Str("symbol", d.Order.Symbol).Str("outcome", string(d.Outcome)).Str("blocked_by", d.BlockedBy).Msg("Simulated order evaluated")
		return
	}
	evt := log.Info()
	if d.Outcome == OutcomeDeny {
		evt = log.Warn()
		violation := errs.GuardrailViolation{Check: d.BlockedBy}
		if r, ok := d.Check(d.BlockedBy); ok {
			violation.Observed = r.Observed
		}
		evt = evt.Err(violation)
	}
	evt.Str("decision_id", d.ID).
		Str("symbol", d.Order.Symbol).
		Str("side", string(d.Order.Side)).
		Float64("quantity", d.Order.Quantity).
		Str("outcome", string(d.Outcome)).
		Msg("Pre-trade policy evaluated")
}

func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

func decFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func sessionOrUnknown(s Session) Session {
	if s == "" {
		return SessionUnknown
	}
	return s
}

// SentimentGated reports whether order would consult the sentiment guardrail
func (g *PreTradeGate) SentimentGated(order ProposedOrder) bool {
	o := order.Normalized()
	return g.config.Sentiment.Enabled && g.sentimentGated(o.Symbol, o.Side == SideBuy, o.AssetClass == AssetStock)
}
