package walkforward

import (
	"math"
	"time"

	"github.com/sawpanic/tradeguard/internal/gates"
)

type holding struct {
	qty        float64
	entryPrice float64
	entryTime  time.Time
}

// portfolio is private to one simulate call
type portfolio struct {
	symbols  []string // Iteration order for every sum
	cash     float64
	holdings map[string]*holding
	last     map[string]float64
}

func (p *portfolio) marketValue() float64 {
	mv := 0.0
	for _, sym := range p.symbols {
		if h, ok := p.holdings[sym]; ok {
			mv += h.qty * p.last[sym]
		}
	}
	return mv
}

func (p *portfolio) facts(equity, prevEquity float64) *gates.AccountFacts {
	f := &gates.AccountFacts{
		BuyingPower:         p.cash,
		Equity:              equity,
		PreviousCloseEquity: prevEquity,
		MarketValue:         p.marketValue(),
		MarketSession:       gates.SessionRegular,
	}
	for _, sym := range p.symbols {
		if h, ok := p.holdings[sym]; ok {
			f.Positions = append(f.Positions, gates.Position{Symbol: sym, Quantity: h.qty, Exposure: h.qty * p.last[sym]})
		}
	}
	return f
}

func (p *portfolio) close(sym string, at time.Time, price float64, forced bool) Trade {
	h := p.holdings[sym]
	delete(p.holdings, sym)
	p.cash += h.qty * price
	return Trade{
		Symbol:     sym,
		EntryTime:  h.entryTime,
		ExitTime:   at,
		Quantity:   h.qty,
		EntryPrice: h.entryPrice,
		ExitPrice:  price,
		PnL:        h.qty * (price - h.entryPrice),
		Forced:     forced,
	}
}

// simulate replays one grid point over one tape. Each call starts flat.
// Orders decided at bar t fill at t's close; the last bar liquidates everything.
func (e *Engine) simulate(p Params, tp *tape, pair int, annual float64) WindowResult {
	pf := &portfolio{
		symbols:  tp.symbols,
		cash:     e.config.InitialEquity,
		holdings: make(map[string]*holding),
		last:     make(map[string]float64),
	}
	res := WindowResult{Pair: pair, Span: tp.span, Returns: make([]float64, 0, len(tp.times))}
	var orders DecisionCounts
	prevEquity := pf.cash

	for i, t := range tp.times {
		for _, sym := range tp.symbols {
			if pt := tp.rows[sym][i]; pt.ok {
				pf.last[sym] = pt.close
			}
		}
		equity := pf.cash + pf.marketValue()
		res.Returns = append(res.Returns, equity/prevEquity-1)

		if i == len(tp.times)-1 {
			for _, sym := range tp.symbols {
				if _, held := pf.holdings[sym]; held {
					res.Trades = append(res.Trades, pf.close(sym, t, pf.last[sym], true))
				}
			}
			break
		}

		for _, sym := range tp.symbols {
			pt := tp.rows[sym][i]
			if !pt.ok {
				continue
			}
			snap := pt.snap
			long := snap.HasSignal() && snap.SentimentScore >= p.SentimentThreshold && snap.Confidence >= p.ConfidenceThreshold
			_, held := pf.holdings[sym]

			switch {
			case long && !held:
				qty := math.Floor(e.config.PositionPct * equity / pt.close)
				if qty < 1 {
					continue
				}
				order := gates.ProposedOrder{Symbol: sym, Side: gates.SideBuy, Quantity: qty, OrderType: gates.OrderMarket, ReferencePrice: pt.close}
				d := e.gate.Evaluate(order, pf.facts(equity, prevEquity), &snap)
				tally(&orders, d.Outcome)
				if !d.Allowed() {
					continue
				}
				if d.AdjustedQuantity != nil {
					qty = *d.AdjustedQuantity
				}
				pf.cash -= qty * pt.close
				pf.holdings[sym] = &holding{qty: qty, entryPrice: pt.close, entryTime: t}

			case !long && held:
				order := gates.ProposedOrder{Symbol: sym, Side: gates.SideSell, Quantity: pf.holdings[sym].qty, OrderType: gates.OrderMarket, ReferencePrice: pt.close}
				d := e.gate.Evaluate(order, pf.facts(equity, prevEquity), &snap)
				tally(&orders, d.Outcome)
				if !d.Allowed() {
					continue
				}
				res.Trades = append(res.Trades, pf.close(sym, t, pt.close, false))
			}
		}
		prevEquity = equity
	}

	res.Metrics = ComputeMetrics(res.Returns, res.Trades, annual)
	res.Metrics.Orders = orders
	return res
}

func tally(c *DecisionCounts, o gates.Outcome) {
	switch o {
	case gates.OutcomeApprove:
		c.Approved++
	case gates.OutcomeAdjust:
		c.Adjusted++
	case gates.OutcomeDeny:
		c.Denied++
	}
}
