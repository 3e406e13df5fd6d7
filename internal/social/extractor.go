package social

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradeguard/internal/errs"
)

// ExtractorConfig contains dedupe and ticker-resolution parameters
type ExtractorConfig struct {
	DedupeSimilarity  float64  `yaml:"dedupe_similarity"`   // 0.9 Jaccard for same-author collapse
	DedupePrefixChars int      `yaml:"dedupe_prefix_chars"` // 80 identical leading chars also collapse
	AmbiguousSymbols  []string `yaml:"ambiguous_symbols"`   // nil = DefaultAmbiguousSymbols
}

// DefaultExtractorConfig returns production extraction parameters
func DefaultExtractorConfig() *ExtractorConfig {
	return &ExtractorConfig{
		DedupeSimilarity:  0.9,
		DedupePrefixChars: 80,
	}
}

// Validate rejects thresholds that would make dedupe meaningless
func (c *ExtractorConfig) Validate() error {
	if c.DedupeSimilarity <= 0 || c.DedupeSimilarity > 1 {
		return errs.Configf("extractor.dedupe_similarity", "must be in (0,1], got %v", c.DedupeSimilarity)
	}
	if c.DedupePrefixChars < 0 {
		return errs.Configf("extractor.dedupe_prefix_chars", "must be >= 0, got %d", c.DedupePrefixChars)
	}
	return nil
}

// Extractor turns raw posts/comments into deduplicated Mention records
type Extractor struct {
	config   *ExtractorConfig
	resolver *TickerResolver
}

// NewExtractor creates an extractor; nil config uses defaults
func NewExtractor(config *ExtractorConfig) (*Extractor, error) {
	if config == nil {
		config = DefaultExtractorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{
		config:   config,
		resolver: NewTickerResolver(config.AmbiguousSymbols),
	}, nil
}

// Resolver exposes the ticker resolver used by this extractor
func (e *Extractor) Resolver() *TickerResolver {
	return e.resolver
}

// ExtractResult contains the mentions plus accounting for everything that was dropped
type ExtractResult struct {
	Mentions        []Mention         `json:"mentions"`
	PostsScanned    int               `json:"posts_scanned"`
	CommentsScanned int               `json:"comments_scanned"`
	OutOfWindow     int               `json:"out_of_window"`
	Collapsed       int               `json:"collapsed"` // Same-author near-duplicates merged away
	Dropped         []errs.InputError `json:"-"`
}

// Extract resolves symbols, drops malformed records and collapses same-author near-duplicates
func (e *Extractor) Extract(records []RawRecord, symbols []string, window Window) ExtractResult {
	result := ExtractResult{Mentions: []Mention{}}

	candidates := make([]Mention, 0, len(records))
	for _, rec := range records {
		if err := validateRecord(rec); err != nil {
			result.Dropped = append(result.Dropped, *err)
			log.Debug().Str("record_id", rec.ID).Str("reason", err.Reason).Msg("Dropped malformed social record")
			continue
		}

		created := rec.CreatedAt()
		if !window.Contains(created) {
			result.OutOfWindow++
			continue
		}

		isComment := rec.Kind == KindComment
		if isComment {
			result.CommentsScanned++
		} else {
			result.PostsScanned++
		}

		text := rec.Body
		if !isComment && strings.TrimSpace(rec.Title) != "" {
			text = rec.Title + "\n" + rec.Body
		}

		matches := e.resolver.Resolve(text, symbols)
		if len(matches) == 0 {
			continue
		}

		m := Mention{
			SourceID:    rec.ID,
			Body:        text,
			Author:      rec.Author,
			Score:       rec.Score,
			NumComments: rec.NumComments,
			Subreddit:   strings.ToLower(strings.TrimSpace(rec.Subreddit)),
			CreatedAt:   created,
			IsComment:   isComment,
			IsSubmitter: rec.IsSubmitter,
		}
		for _, match := range matches {
			m.Symbols = append(m.Symbols, match.Symbol)
			if match.CashTag {
				m.CashTags = append(m.CashTags, match.Symbol)
			}
		}
		candidates = append(candidates, m)
	}

	kept := e.collapseSameAuthor(candidates)
	result.Collapsed = len(candidates) - len(kept)
	result.Mentions = kept

	if len(result.Dropped) > 0 || result.Collapsed > 0 {
		log.Debug().
			Int("mentions", len(kept)).
			Int("dropped", len(result.Dropped)).
			Int("collapsed", result.Collapsed).
			Msg("Mention extraction complete")
	}
	return result
}

// collapseSameAuthor keeps the highest-engagement instance of each near-identical body per author
func (e *Extractor) collapseSameAuthor(candidates []Mention) []Mention {
	sim := Similarity{Threshold: e.config.DedupeSimilarity, PrefixChars: e.config.DedupePrefixChars}

	ranked := make([]Mention, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return engagementLess(ranked[j], ranked[i])
	})

	byAuthor := make(map[string][]Mention)
	kept := make([]Mention, 0, len(ranked))
	for _, m := range ranked {
		if m.Author == "" {
			kept = append(kept, m)
			continue
		}
		duplicate := false
		for _, prior := range byAuthor[m.Author] {
			if sim.NearDuplicate(prior.Body, m.Body) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		byAuthor[m.Author] = append(byAuthor[m.Author], m)
		kept = append(kept, m)
	}

	SortChronological(kept)
	return kept
}

// SortChronological orders mentions by creation time, then source id
func SortChronological(mentions []Mention) {
	sort.SliceStable(mentions, func(i, j int) bool {
		if !mentions[i].CreatedAt.Equal(mentions[j].CreatedAt) {
			return mentions[i].CreatedAt.Before(mentions[j].CreatedAt)
		}
		return mentions[i].SourceID < mentions[j].SourceID
	})
}

// engagementLess orders a below b when a is less engaging; ties prefer the earlier, then lower id
func engagementLess(a, b Mention) bool {
	if a.Engagement() != b.Engagement() {
		return a.Engagement() < b.Engagement()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.SourceID > b.SourceID
}

// RankByEngagement sorts mentions most-engaging first using the dedupe tie-break rules
func RankByEngagement(mentions []Mention) {
	sort.SliceStable(mentions, func(i, j int) bool {
		return engagementLess(mentions[j], mentions[i])
	})
}

func validateRecord(rec RawRecord) *errs.InputError {
	switch {
	case strings.TrimSpace(rec.ID) == "":
		return &errs.InputError{RecordID: rec.ID, Field: "id", Reason: "missing id"}
	case rec.CreatedUTC <= 0:
		return &errs.InputError{RecordID: rec.ID, Field: "created_utc", Reason: "missing timestamp"}
	case rec.Kind != KindPost && rec.Kind != KindComment && rec.Kind != "":
		return &errs.InputError{RecordID: rec.ID, Field: "kind", Reason: "unknown record kind " + string(rec.Kind)}
	case strings.TrimSpace(rec.Title) == "" && strings.TrimSpace(rec.Body) == "":
		return &errs.InputError{RecordID: rec.ID, Field: "body", Reason: "empty title and body"}
	}
	return nil
}
