package social

import (
	"sort"
	"strings"
)

// DefaultAmbiguousSymbols collide with everyday words or finance jargon and only count in $TICKER form
var DefaultAmbiguousSymbols = []string{
	// Common uppercase words
	"A", "AI", "ALL", "AND", "ARE", "AS", "AT", "BE", "CEO", "CFO", "DD", "ELI",
	"FOR", "FROM", "GO", "HOLD", "I", "IMO", "IN", "IPO", "IT", "LOL", "MOON",
	"NOW", "ON", "OR", "OUT", "RSI", "SEC", "SO", "TA", "THE", "TO", "USA", "WTF", "YOLO",
	// Finance terms that are not tickers
	"ATH", "ARPU", "CAGR", "CPA", "CPU", "DAU", "EBIT", "EBITDA", "EPS", "ETF", "EU",
	"FCF", "GDP", "GMV", "IRA", "LLM", "MAU", "PE", "PEG", "PS", "RND", "ROE", "ROI",
	"RSU", "SBC", "SOTP", "TAM", "US", "YOY",
}

// ParseSymbols splits a comma-separated ticker list into sorted, unique, upper-case symbols
func ParseSymbols(csv string) []string {
	seen := make(map[string]struct{})
	for _, token := range strings.Split(csv, ",") {
		sym := strings.TrimLeft(strings.ToUpper(strings.TrimSpace(token)), "$")
		if !isTickerShape(sym, 6) {
			continue
		}
		seen[sym] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// SymbolMatch is one resolved symbol reference within a text
type SymbolMatch struct {
	Symbol  string
	CashTag bool // At least one occurrence was $SYMBOL
}

// TickerResolver maps free text to target symbols while rejecting word collisions
type TickerResolver struct {
	ambiguous map[string]struct{}
}

// NewTickerResolver creates a resolver; nil ambiguous falls back to DefaultAmbiguousSymbols
func NewTickerResolver(ambiguous []string) *TickerResolver {
	if ambiguous == nil {
		ambiguous = DefaultAmbiguousSymbols
	}
	set := make(map[string]struct{}, len(ambiguous))
	for _, s := range ambiguous {
		set[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	return &TickerResolver{ambiguous: set}
}

// IsAmbiguous reports whether symbol requires the cash-tag form
func (r *TickerResolver) IsAmbiguous(symbol string) bool {
	_, ok := r.ambiguous[strings.ToUpper(symbol)]
	return ok
}

// Resolve returns the target symbols referenced by text, in target order
func (r *TickerResolver) Resolve(text string, targets []string) []SymbolMatch {
	if text == "" || len(targets) == 0 {
		return nil
	}
	upper := asciiUpper(text)

	var matches []SymbolMatch
	for _, sym := range targets {
		plain, cash := scanSymbol(upper, sym)
		if r.IsAmbiguous(sym) {
			plain = false
		}
		if plain || cash {
			matches = append(matches, SymbolMatch{Symbol: sym, CashTag: cash})
		}
	}
	return matches
}

// TickerCounts tallies how a discovered ticker appeared in a text
type TickerCounts struct {
	Plain  int
	Dollar int
}

// DiscoverTickers finds any upper-case ticker-shaped tokens, skipping ambiguous words and single letters
func (r *TickerResolver) DiscoverTickers(text string) map[string]TickerCounts {
	found := make(map[string]TickerCounts)
	n := len(text)
	for i := 0; i < n; i++ {
		c := text[i]
		dollar := c == '$'
		if !dollar && !isUpper(c) {
			continue
		}
		if i > 0 && (isAlnum(text[i-1]) || (!dollar && text[i-1] == '$')) {
			continue
		}
		start := i
		if dollar {
			start++
		}
		end := start
		for end < n && isAlnum(text[end]) {
			end++
		}
		token := text[start:end]
		i = end - 1
		if !isTickerShape(token, 5) || len(token) == 1 {
			continue
		}
		if _, skip := r.ambiguous[token]; skip {
			continue
		}
		counts := found[token]
		if dollar {
			counts.Dollar++
		} else {
			counts.Plain++
		}
		found[token] = counts
	}
	return found
}

// scanSymbol looks for sym in an upper-cased text at word boundaries, plain and as $sym
func scanSymbol(upper, sym string) (plain, cash bool) {
	if sym == "" {
		return false, false
	}
	offset := 0
	for {
		idx := strings.Index(upper[offset:], sym)
		if idx < 0 {
			return plain, cash
		}
		pos := offset + idx
		after := pos + len(sym)
		offset = pos + 1

		if after < len(upper) && isAlnum(upper[after]) {
			continue
		}
		if pos == 0 {
			plain = true
			continue
		}
		prev := upper[pos-1]
		switch {
		case prev == '$':
			if pos-1 == 0 || !isAlnum(upper[pos-2]) {
				cash = true
			}
		case !isAlnum(prev):
			plain = true
		}
	}
}

func isTickerShape(s string, maxLen int) bool {
	if len(s) == 0 || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isUpper(s[i]) {
			return false
		}
	}
	return true
}

func asciiUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isAlnum(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
