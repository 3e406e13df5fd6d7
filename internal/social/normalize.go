package social

import (
	"strings"
	"unicode"
)

// NormalizeBody lower-cases text, strips punctuation and collapses whitespace
func NormalizeBody(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '$':
			b.WriteRune(unicode.ToLower(r))
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens returns the whitespace tokens of the normalized body
func Tokens(text string) []string {
	return strings.Fields(NormalizeBody(text))
}

// Jaccard computes |A∩B| / |A∪B| over token sets; two empty bodies are identical
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Similarity compares two bodies after normalization
type Similarity struct {
	Threshold   float64 // Jaccard threshold for near-duplicates
	PrefixChars int     // Identical normalized prefixes of this length also count; 0 disables
}

// NearDuplicate reports whether two raw bodies are near-identical
func (s Similarity) NearDuplicate(a, b string) bool {
	return s.Matches(NewFingerprint(a), NewFingerprint(b))
}

// Fingerprint caches the normalized form of a body for repeated comparisons
type Fingerprint struct {
	Normalized string
	Tokens     []string
}

// NewFingerprint normalizes text once
func NewFingerprint(text string) Fingerprint {
	n := NormalizeBody(text)
	return Fingerprint{Normalized: n, Tokens: strings.Fields(n)}
}

// Matches is NearDuplicate over precomputed fingerprints
func (s Similarity) Matches(a, b Fingerprint) bool {
	if a.Normalized == b.Normalized {
		return true
	}
	if s.PrefixChars > 0 && len(a.Normalized) >= s.PrefixChars && len(b.Normalized) >= s.PrefixChars &&
		a.Normalized[:s.PrefixChars] == b.Normalized[:s.PrefixChars] {
		return true
	}
	return Jaccard(a.Tokens, b.Tokens) >= s.Threshold
}
