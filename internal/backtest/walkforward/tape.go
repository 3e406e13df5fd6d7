package walkforward

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradeguard/internal/baseline"
	"github.com/sawpanic/tradeguard/internal/quality"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
	"github.com/sawpanic/tradeguard/internal/social"
)

// history is the read-only dataset shared by every worker
type history struct {
	symbols []string
	records []social.RawRecord // Ascending by CreatedUTC
	bars    map[string][]Bar   // Ascending, deduplicated, positive closes only
}

func newHistory(data Dataset, symbols []string) *history {
	records := make([]social.RawRecord, len(data.Records))
	copy(records, data.Records)
	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedUTC < records[j].CreatedUTC })

	bars := make(map[string][]Bar, len(symbols))
	for sym, series := range data.Bars {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		bars[sym] = append(bars[sym], series...)
	}
	for _, sym := range symbols {
		bars[sym] = cleanBars(sym, bars[sym])
	}
	return &history{symbols: symbols, records: records, bars: bars}
}

// cleanBars sorts, drops unusable prints and keeps the last bar per timestamp
func cleanBars(symbol string, series []Bar) []Bar {
	out := make([]Bar, 0, len(series))
	skipped := 0
	for _, b := range series {
		if b.Time.IsZero() || b.Close <= 0 || math.IsNaN(b.Close) || math.IsInf(b.Close, 0) {
			skipped++
			continue
		}
		b.Time = b.Time.UTC()
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	dedup := out[:0]
	for _, b := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Time.Equal(b.Time) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	if skipped > 0 {
		log.Warn().Str("symbol", symbol).Int("skipped", skipped).Msg("Dropped unusable price bars")
	}
	return dedup
}

// recordsIn returns the records created in window without copying
func (h *history) recordsIn(w social.Window) []social.RawRecord {
	lo := sort.Search(len(h.records), func(i int) bool { return !h.records[i].CreatedAt().Before(w.Start) })
	hi := sort.Search(len(h.records), func(i int) bool { return !h.records[i].CreatedAt().Before(w.End) })
	return h.records[lo:hi]
}

// point is one symbol's state at one bar time
type point struct {
	ok    bool
	close float64
	snap  sentiment.Snapshot
}

// tape is the precomputed signal for one span; grid points only read it
type tape struct {
	span    Span
	symbols []string
	times   []time.Time
	rows    map[string][]point
}

// buildTape scores every bar in span against a baseline frozen at span start
func (e *Engine) buildTape(ctx context.Context, h *history, span Span, wp WindowParams) (*tape, error) {
	seen := make(map[time.Time]struct{})
	for _, sym := range h.symbols {
		for _, b := range h.bars[sym] {
			if span.Contains(b.Time) {
				seen[b.Time] = struct{}{}
			}
		}
	}
	tp := &tape{span: span, symbols: h.symbols, rows: make(map[string][]point, len(h.symbols))}
	for t := range seen {
		tp.times = append(tp.times, t)
	}
	sort.Slice(tp.times, func(i, j int) bool { return tp.times[i].Before(tp.times[j]) })
	index := make(map[time.Time]int, len(tp.times))
	for i, t := range tp.times {
		index[t] = i
	}

	for _, sym := range h.symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		base, err := e.frozenBaseline(h, sym, span.Start, wp)
		if err != nil {
			return nil, err
		}
		row := make([]point, len(tp.times))
		for _, b := range h.bars[sym] {
			i, ok := index[b.Time]
			if !ok {
				continue
			}
			window := social.NewWindow(b.Time, wp.LookbackHours)
			filtered := e.filtered(h, sym, window)
			row[i] = point{
				ok:    true,
				close: b.Close,
				snap:  e.pipeline.Scorer.Score(sym, window, filtered, base),
			}
		}
		tp.rows[sym] = row
	}
	return tp, nil
}

// frozenBaseline builds the symbol's rolling stats from windows ending at or before asOf
func (e *Engine) frozenBaseline(h *history, symbol string, asOf time.Time, wp WindowParams) (baseline.Baseline, error) {
	obs := make([]baseline.Observation, 0, wp.BaselineDays)
	for k := 0; k < wp.BaselineDays; k++ {
		end := asOf.Add(-time.Duration(k) * day)
		window := social.NewWindow(end, wp.LookbackHours)
		obs = append(obs, baseline.Observation{
			WindowEnd: window.End,
			Count:     len(e.filtered(h, symbol, window).Mentions),
		})
	}
	return baseline.FromHistory(symbol, obs, asOf, wp.BaselineDays)
}

func (e *Engine) filtered(h *history, symbol string, window social.Window) quality.FilterResult {
	ex := e.pipeline.Extractor.Extract(h.recordsIn(window), []string{symbol}, window)
	return e.pipeline.Filter.Apply(social.ForSymbol(ex.Mentions, symbol))
}
