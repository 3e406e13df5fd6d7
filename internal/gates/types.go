package gates

import (
	"fmt"
	"strings"
	"time"
)

// Side is the order direction
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is market or limit
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// AssetClass selects which checks apply; crypto bypasses stock-session and pending-order rules
type AssetClass string

const (
	AssetStock  AssetClass = "stock"
	AssetCrypto AssetClass = "crypto"
)

// Session is the market session reported by the account collaborator
type Session string

const (
	SessionRegular Session = "regular"
	SessionPre     Session = "pre"
	SessionPost    Session = "post"
	SessionClosed  Session = "closed"
	SessionUnknown Session = "unknown"
)

// ProposedOrder is one order attempt submitted for policy review
type ProposedOrder struct {
	Symbol         string     `json:"symbol"`
	Side           Side       `json:"side"`
	Quantity       float64    `json:"quantity"`
	OrderType      OrderType  `json:"order_type"`
	LimitPrice     float64    `json:"limit_price,omitempty"`
	ReferencePrice float64    `json:"reference_price,omitempty"` // Last quote when no limit price
	ExtendedHours  bool       `json:"extended_hours,omitempty"`
	AssetClass     AssetClass `json:"asset_class,omitempty"` // Empty = stock
}

// Normalized upper-cases the symbol and fills defaults
func (o ProposedOrder) Normalized() ProposedOrder {
	o.Symbol = strings.ToUpper(strings.TrimSpace(o.Symbol))
	o.Side = Side(strings.ToLower(strings.TrimSpace(string(o.Side))))
	o.OrderType = OrderType(strings.ToLower(strings.TrimSpace(string(o.OrderType))))
	if o.OrderType == "" {
		o.OrderType = OrderMarket
	}
	if o.AssetClass != AssetCrypto {
		o.AssetClass = AssetStock
	}
	return o
}

// Price returns the limit price if set, else the reference price
func (o ProposedOrder) Price() float64 {
	if o.LimitPrice > 0 {
		return o.LimitPrice
	}
	return o.ReferencePrice
}

// Position is one open holding
type Position struct {
	Symbol     string  `json:"symbol"`
	Quantity   float64 `json:"quantity"`
	Exposure   float64 `json:"exposure"`    // Current market value
	IntradayPL float64 `json:"intraday_pl"` // Today's P/L on the position
}

// AccountFacts is the account/risk state supplied by the broker collaborator
type AccountFacts struct {
	BuyingPower           float64        `json:"buying_power"`
	Equity                float64        `json:"equity"`
	PreviousCloseEquity   float64        `json:"previous_close_equity"` // 0 = unknown
	MarketValue           float64        `json:"market_value,omitempty"`
	Positions             []Position     `json:"positions"`
	PendingOrderCount     int            `json:"pending_order_count"`
	PendingOrdersBySymbol map[string]int `json:"pending_orders_by_symbol,omitempty"`
	PendingBuyNotional    float64        `json:"pending_buy_notional"` // Reserved by open buys
	MarketSession         Session        `json:"market_session,omitempty"`
}

// ExposureFor sums position exposure in symbol
func (f *AccountFacts) ExposureFor(symbol string) float64 {
	total := 0.0
	for _, p := range f.Positions {
		if strings.EqualFold(p.Symbol, symbol) {
			total += p.Exposure
		}
	}
	return total
}

// PendingFor returns the symbol's pending orders, or the account-wide count when no breakdown is supplied
func (f *AccountFacts) PendingFor(symbol string) int {
	if f.PendingOrdersBySymbol == nil {
		return f.PendingOrderCount
	}
	for sym, n := range f.PendingOrdersBySymbol {
		if strings.EqualFold(sym, symbol) {
			return n
		}
	}
	return 0
}

// IntradayPL sums today's P/L across positions
func (f *AccountFacts) IntradayPL() float64 {
	total := 0.0
	for _, p := range f.Positions {
		total += p.IntradayPL
	}
	return total
}

// Outcome is the gate verdict
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeDeny    Outcome = "deny"
	OutcomeAdjust  Outcome = "adjust"
)

// Reason is one evaluated check, recorded whether it passed or not
type Reason struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Hard     bool   `json:"hard"`
	Skipped  bool   `json:"skipped,omitempty"` // Not applicable to this order path
	Observed string `json:"observed"`
}

// Status renders pass/fail/skip
func (r Reason) Status() string {
	switch {
	case r.Skipped:
		return "skip"
	case r.Passed:
		return "pass"
	}
	return "fail"
}

// PolicyLimits is the configuration in force when the decision was made
type PolicyLimits struct {
	MaxDailyLossPct          float64 `json:"max_daily_loss_pct"`
	MaxOrderNotionalPct      float64 `json:"max_order_notional_pct"`
	MaxSymbolExposurePct     float64 `json:"max_symbol_exposure_pct"`
	MaxPendingOrders         int     `json:"max_pending_orders"`
	SentimentEnabled         bool    `json:"sentiment_enabled"`
	SentimentFailClosed      bool    `json:"sentiment_fail_closed"`
	SentimentConfidenceFloor float64 `json:"sentiment_confidence_floor"`
	HypeAdjustConfidence     float64 `json:"hype_adjust_confidence"`
	HypeSizeScale            float64 `json:"hype_size_scale"`
}

// DecisionMetrics are the computed quantities the checks compared against limits
type DecisionMetrics struct {
	ReferencePrice       float64 `json:"reference_price"`
	Notional             float64 `json:"notional"`
	Equity               float64 `json:"equity"`
	BuyingPower          float64 `json:"buying_power"`
	PendingBuyNotional   float64 `json:"pending_buy_notional"`
	PreviousCloseEquity  float64 `json:"previous_close_equity,omitempty"`
	DailyPnL             float64 `json:"daily_pnl"`
	DailyPnLSource       string  `json:"daily_pnl_source"`
	SymbolExposureBefore float64 `json:"symbol_exposure_before"`
	SymbolExposureAfter  float64 `json:"symbol_exposure_after"`
	PendingForSymbol     int     `json:"pending_for_symbol"`
	MarketSession        Session `json:"market_session,omitempty"`
}

// SentimentSummary is the part of the snapshot the gate consulted
type SentimentSummary struct {
	Symbol         string  `json:"symbol"`
	SentimentScore float64 `json:"sentiment_score"`
	Confidence     float64 `json:"confidence"`
	HypeRisk       string  `json:"hype_risk"`
	Method         string  `json:"method"`
}

// Decision is the auditable result of one order attempt; never mutated after Evaluate returns
type Decision struct {
	ID               string            `json:"id"`
	Order            ProposedOrder     `json:"order"`
	Outcome          Outcome           `json:"outcome"`
	AdjustedQuantity *float64          `json:"adjusted_quantity,omitempty"` // Set iff outcome=adjust
	Reasons          []Reason          `json:"reasons"`
	BlockedBy        string            `json:"blocked_by,omitempty"`
	Policy           PolicyLimits      `json:"policy"`
	Metrics          DecisionMetrics   `json:"metrics"`
	Sentiment        *SentimentSummary `json:"sentiment,omitempty"`
	Summary          string            `json:"summary"`
	EvaluatedAt      time.Time         `json:"evaluated_at"`
}

// Allowed reports approve or adjust
func (d *Decision) Allowed() bool {
	return d.Outcome == OutcomeApprove || d.Outcome == OutcomeAdjust
}

// Check looks up a recorded check by name
func (d *Decision) Check(name string) (Reason, bool) {
	for _, r := range d.Reasons {
		if r.Name == name {
			return r, true
		}
	}
	return Reason{}, false
}

// HardFailures lists failed hard checks in evaluation order
func (d *Decision) HardFailures() []string {
	var out []string
	for _, r := range d.Reasons {
		if r.Hard && !r.Passed {
			out = append(out, r.Name)
		}
	}
	return out
}

// DetailedReport renders every check, one per line
func (d *Decision) DetailedReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pre-trade policy: %s %s x%g -> %s\n", d.Order.Side, d.Order.Symbol, d.Order.Quantity, strings.ToUpper(string(d.Outcome)))
	for _, r := range d.Reasons {
		kind := "soft"
		if r.Hard {
			kind = "hard"
		}
		fmt.Fprintf(&b, "  [%s] %-22s %-4s %s\n", r.Status(), r.Name, kind, r.Observed)
	}
	if d.BlockedBy != "" {
		fmt.Fprintf(&b, "Blocked by: %s\n", d.BlockedBy)
	}
	return b.String()
}
