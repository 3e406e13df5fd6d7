package sentiment

import (
	"sort"
	"strings"
	"unicode"
)

// TextPolarityModel scores one body in [-1, 1]. The lexicon model is the shipped
// implementation; any replacement plugs in without touching aggregation.
type TextPolarityModel interface {
	Name() string
	Score(body string) float64
}

// LexiconConfig lists the terms and phrases of the rule-based model
type LexiconConfig struct {
	BullishTerms   []string `yaml:"bullish_terms"`
	BearishTerms   []string `yaml:"bearish_terms"`
	BullishPhrases []string `yaml:"bullish_phrases"` // Multi-word, matched before single terms
	BearishPhrases []string `yaml:"bearish_phrases"`
	Negators       []string `yaml:"negators"` // Flip the single term that follows
}

// DefaultLexiconConfig returns the reddit_v1 lexicon
func DefaultLexiconConfig() *LexiconConfig {
	return &LexiconConfig{
		BullishTerms: []string{
			"buy", "long", "bull", "bullish", "breakout", "beat", "beats", "undervalued",
			"moon", "rocket", "squeeze", "upside", "upgrade", "strong", "calls",
		},
		BearishTerms: []string{
			"sell", "short", "bear", "bearish", "dump", "miss", "misses", "overvalued",
			"downside", "downgrade", "weak", "fraud", "bagholder", "puts",
		},
		BullishPhrases: []string{
			"to the moon", "short squeeze", "buy the dip", "price target raised", "all time high",
		},
		BearishPhrases: []string{
			"going to zero", "rug pull", "dead cat bounce", "price target cut", "bag holder",
		},
		Negators: []string{"not", "no", "never", "don't", "dont", "isn't", "isnt", "won't", "wont"},
	}
}

// LexiconModel counts bullish and bearish hits: (bull − bear) / (bull + bear + 1)
type LexiconModel struct {
	bullish  map[string]struct{}
	bearish  map[string]struct{}
	negators map[string]struct{}
	phrases  []phrase // Longest first
}

type phrase struct {
	tokens []string
	bull   bool
}

// NewLexiconModel compiles a lexicon; nil config uses the default
func NewLexiconModel(config *LexiconConfig) *LexiconModel {
	if config == nil {
		config = DefaultLexiconConfig()
	}
	m := &LexiconModel{
		bullish:  toSet(config.BullishTerms),
		bearish:  toSet(config.BearishTerms),
		negators: toSet(config.Negators),
	}
	for _, p := range config.BullishPhrases {
		if toks := words(p); len(toks) > 0 {
			m.phrases = append(m.phrases, phrase{tokens: toks, bull: true})
		}
	}
	for _, p := range config.BearishPhrases {
		if toks := words(p); len(toks) > 0 {
			m.phrases = append(m.phrases, phrase{tokens: toks})
		}
	}
	sort.SliceStable(m.phrases, func(i, j int) bool {
		return len(m.phrases[i].tokens) > len(m.phrases[j].tokens)
	})
	return m
}

// Name identifies the model in snapshots
func (m *LexiconModel) Name() string { return "lexicon_v1" }

// Score returns the body's polarity; bodies without lexicon hits score 0
func (m *LexiconModel) Score(body string) float64 {
	toks := words(body)
	if len(toks) == 0 {
		return 0
	}

	bull, bear := 0, 0
	for i := 0; i < len(toks); {
		if p, ok := m.phraseAt(toks, i); ok {
			if p.bull {
				bull++
			} else {
				bear++
			}
			i += len(p.tokens)
			continue
		}

		tok := toks[i]
		negated := i > 0 && m.isNegator(toks[i-1])
		_, isBull := m.bullish[tok]
		_, isBear := m.bearish[tok]
		switch {
		case isBull && !negated, isBear && negated:
			bull++
		case isBear, isBull:
			bear++
		}
		i++
	}
	return float64(bull-bear) / float64(bull+bear+1)
}

func (m *LexiconModel) phraseAt(toks []string, i int) (phrase, bool) {
	for _, p := range m.phrases {
		if i+len(p.tokens) > len(toks) {
			continue
		}
		match := true
		for k, t := range p.tokens {
			if toks[i+k] != t {
				match = false
				break
			}
		}
		if match {
			return p, true
		}
	}
	return phrase{}, false
}

func (m *LexiconModel) isNegator(tok string) bool {
	_, ok := m.negators[tok]
	return ok
}

// words splits on anything that is not a letter or apostrophe, lower-cased
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[strings.ToLower(strings.TrimSpace(it))] = struct{}{}
	}
	return set
}
