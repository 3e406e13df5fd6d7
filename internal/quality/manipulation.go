package quality

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/social"
)

// FilterConfig contains the anti-manipulation thresholds
type FilterConfig struct {
	MinTokens           int     `yaml:"min_tokens"`            // ≥3 tokens unless highly engaged
	HighEngagementScore int     `yaml:"high_engagement_score"` // ≥50 score rescues short bodies
	RingSimilarity      float64 `yaml:"ring_similarity"`       // ≥0.85 Jaccard marks a ring copy
	RingPrefixChars     int     `yaml:"ring_prefix_chars"`     // 0 disables prefix matching
	MaxRingCopies       int     `yaml:"max_ring_copies"`       // ≤1 copy kept per ring
	MaxPerAuthor        int     `yaml:"max_per_author"`        // ≤3 mentions per author (K)
}

// DefaultFilterConfig returns production anti-manipulation parameters
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		MinTokens:           3,
		HighEngagementScore: 50,
		RingSimilarity:      0.85,
		RingPrefixChars:     0,
		MaxRingCopies:       1,
		MaxPerAuthor:        3,
	}
}

// Validate rejects thresholds that would disable or invert a rule
func (c *FilterConfig) Validate() error {
	if c.MinTokens < 0 {
		return errs.Configf("filter.min_tokens", "must be >= 0, got %d", c.MinTokens)
	}
	if c.HighEngagementScore < 0 {
		return errs.Configf("filter.high_engagement_score", "must be >= 0, got %d", c.HighEngagementScore)
	}
	if c.RingSimilarity <= 0 || c.RingSimilarity > 1 {
		return errs.Configf("filter.ring_similarity", "must be in (0,1], got %v", c.RingSimilarity)
	}
	if c.RingPrefixChars < 0 {
		return errs.Configf("filter.ring_prefix_chars", "must be >= 0, got %d", c.RingPrefixChars)
	}
	if c.MaxRingCopies < 1 {
		return errs.Configf("filter.max_ring_copies", "must be >= 1, got %d", c.MaxRingCopies)
	}
	if c.MaxPerAuthor < 1 {
		return errs.Configf("filter.max_per_author", "must be >= 1, got %d", c.MaxPerAuthor)
	}
	return nil
}

// Meta is the quality metadata reported alongside the filtered mentions
type Meta struct {
	InputMentions      int `json:"input_mentions"`
	Kept               int `json:"kept"`
	UniqueAuthors      int `json:"unique_authors"`
	DistinctSubreddits int `json:"distinct_subreddits"`
	PostsScanned       int `json:"posts_scanned"`
	CommentsScanned    int `json:"comments_scanned"`
	DroppedDeleted     int `json:"dropped_deleted"`
	DroppedShort       int `json:"dropped_short"`
	DroppedRing        int `json:"dropped_ring"`
	DroppedAuthorCap   int `json:"dropped_author_cap"`
}

// DroppedTotal sums every rule's drops
func (m Meta) DroppedTotal() int {
	return m.DroppedDeleted + m.DroppedShort + m.DroppedRing + m.DroppedAuthorCap
}

// SpamRatio is spam drops (rules 1-3) over spam drops plus kept mentions.
// Author-cap excess is excluded from both sides so it cannot move the ratio.
func (m Meta) SpamRatio() float64 {
	spam := m.DroppedDeleted + m.DroppedShort + m.DroppedRing
	if spam+m.Kept == 0 {
		return 0
	}
	return float64(spam) / float64(spam+m.Kept)
}

// FilterResult holds surviving mentions in chronological order plus their metadata
type FilterResult struct {
	Mentions []social.Mention `json:"mentions"`
	Meta     Meta             `json:"meta"`
}

// Filter applies the ordered manipulation rules; it keeps no state between calls
type Filter struct {
	config *FilterConfig
}

// NewFilter creates a filter; nil config uses defaults
func NewFilter(config *FilterConfig) (*Filter, error) {
	if config == nil {
		config = DefaultFilterConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Filter{config: config}, nil
}

// Config returns the thresholds in force
func (f *Filter) Config() FilterConfig {
	return *f.config
}

// Apply runs deleted → short → ring → author-cap over one (symbol, Window) mention set
func (f *Filter) Apply(mentions []social.Mention) FilterResult {
	meta := Meta{InputMentions: len(mentions)}
	for _, m := range mentions {
		if m.IsComment {
			meta.CommentsScanned++
		} else {
			meta.PostsScanned++
		}
	}

	stage := make([]social.Mention, 0, len(mentions))
	for _, m := range mentions {
		if isDeletedBody(m.Body) {
			meta.DroppedDeleted++
			continue
		}
		stage = append(stage, m)
	}

	short := stage[:0:0]
	for _, m := range stage {
		if len(social.Tokens(m.Body)) < f.config.MinTokens && m.Score < f.config.HighEngagementScore {
			meta.DroppedShort++
			continue
		}
		short = append(short, m)
	}
	stage = short

	before := len(stage)
	stage = f.collapseRings(stage)
	meta.DroppedRing = before - len(stage)

	before = len(stage)
	stage = f.capAuthors(stage)
	meta.DroppedAuthorCap = before - len(stage)

	authors := make(map[string]struct{})
	subs := make(map[string]struct{})
	for _, m := range stage {
		if m.Author != "" {
			authors[m.Author] = struct{}{}
		}
		if m.Subreddit != "" {
			subs[m.Subreddit] = struct{}{}
		}
	}
	meta.Kept = len(stage)
	meta.UniqueAuthors = len(authors)
	meta.DistinctSubreddits = len(subs)

	if meta.DroppedTotal() > 0 {
		log.Debug().
			Int("input", meta.InputMentions).
			Int("kept", len(stage)).
			Int("deleted", meta.DroppedDeleted).
			Int("short", meta.DroppedShort).
			Int("ring", meta.DroppedRing).
			Int("author_cap", meta.DroppedAuthorCap).
			Msg("Manipulation filter applied")
	}

	return FilterResult{Mentions: stage, Meta: meta}
}

type ring struct {
	lead    social.Fingerprint
	authors map[string]struct{}
	members []social.Mention
}

// collapseRings groups near-identical bodies and keeps the most engaging copies of
// groups posted by more than one author. Single-author groups pass through; those
// are bounded by the extractor dedupe and the author cap.
func (f *Filter) collapseRings(mentions []social.Mention) []social.Mention {
	sim := social.Similarity{Threshold: f.config.RingSimilarity, PrefixChars: f.config.RingPrefixChars}

	ranked := make([]social.Mention, len(mentions))
	copy(ranked, mentions)
	social.RankByEngagement(ranked)

	var rings []*ring
	for _, m := range ranked {
		fp := social.NewFingerprint(m.Body)
		var home *ring
		for _, r := range rings {
			if sim.Matches(r.lead, fp) {
				home = r
				break
			}
		}
		if home == nil {
			home = &ring{lead: fp, authors: make(map[string]struct{})}
			rings = append(rings, home)
		}
		home.authors[authorKey(m)] = struct{}{}
		home.members = append(home.members, m)
	}

	kept := make([]social.Mention, 0, len(mentions))
	for _, r := range rings {
		if len(r.authors) < 2 {
			kept = append(kept, r.members...)
			continue
		}
		n := f.config.MaxRingCopies
		if n > len(r.members) {
			n = len(r.members)
		}
		kept = append(kept, r.members[:n]...)
	}
	social.SortChronological(kept)
	return kept
}

// capAuthors keeps each author's K earliest mentions; input must be chronological
func (f *Filter) capAuthors(mentions []social.Mention) []social.Mention {
	counts := make(map[string]int)
	kept := make([]social.Mention, 0, len(mentions))
	for _, m := range mentions {
		if m.Author == "" {
			kept = append(kept, m)
			continue
		}
		if counts[m.Author] >= f.config.MaxPerAuthor {
			continue
		}
		counts[m.Author]++
		kept = append(kept, m)
	}
	return kept
}

// authorKey treats each anonymous mention as its own author
func authorKey(m social.Mention) string {
	if m.Author == "" {
		return "\x00" + m.SourceID
	}
	return m.Author
}

// isDeletedBody also catches posts whose title survived a removed selftext
func isDeletedBody(body string) bool {
	b := strings.TrimSpace(strings.ToLower(body))
	if i := strings.LastIndexByte(b, '\n'); i >= 0 {
		b = strings.TrimSpace(b[i+1:])
	}
	switch b {
	case "", "[deleted]", "[removed]":
		return true
	}
	return false
}
