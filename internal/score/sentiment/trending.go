package sentiment

import (
	"math"
	"sort"
	"strings"

	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/social"
)

// TrendingConfig bounds ticker discovery
type TrendingConfig struct {
	MinMentions         int `yaml:"min_mentions"`           // ≥15 occurrences in the window
	Limit               int `yaml:"limit"`                  // 1..50 rows returned
	MinAuthorsPlainOnly int `yaml:"min_authors_plain_only"` // ≥2 authors when never cash-tagged
}

// DefaultTrendingConfig returns discovery defaults
func DefaultTrendingConfig() *TrendingConfig {
	return &TrendingConfig{MinMentions: 15, Limit: 20, MinAuthorsPlainOnly: 2}
}

// Validate rejects non-positive bounds
func (c *TrendingConfig) Validate() error {
	if c.MinMentions < 1 {
		return errs.Configf("trending.min_mentions", "must be >= 1, got %d", c.MinMentions)
	}
	if c.Limit < 1 || c.Limit > 50 {
		return errs.Configf("trending.limit", "must be in [1,50], got %d", c.Limit)
	}
	if c.MinAuthorsPlainOnly < 1 {
		return errs.Configf("trending.min_authors_plain_only", "must be >= 1, got %d", c.MinAuthorsPlainOnly)
	}
	return nil
}

// TrendingTicker is one discovered symbol ranked by mention volume
type TrendingTicker struct {
	Symbol         string  `json:"symbol"`
	Mentions       int     `json:"mentions"`
	DollarMentions int     `json:"dollar_mentions"`
	UniqueAuthors  int     `json:"unique_authors"`
	MentionBurstZ  float64 `json:"mention_burst_z"` // Relative to MinMentions
	SentimentScore float64 `json:"sentiment_score"`
	Confidence     float64 `json:"confidence"`
}

type trendStats struct {
	mentions int
	dollar   int
	authors  map[string]struct{}
	polSum   float64
	polN     int
}

// Trending discovers ticker-shaped tokens in records inside window, without a target list
func (s *Scorer) Trending(records []social.RawRecord, window social.Window, resolver *social.TickerResolver, config *TrendingConfig) ([]TrendingTicker, error) {
	if config == nil {
		config = DefaultTrendingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil {
		resolver = social.NewTickerResolver(nil)
	}

	stats := make(map[string]*trendStats)
	for _, rec := range records {
		if rec.ID == "" || rec.CreatedUTC <= 0 || !window.Contains(rec.CreatedAt()) {
			continue
		}
		text := rec.Body
		if strings.TrimSpace(rec.Title) != "" {
			text = rec.Title + "\n" + rec.Body
		}
		found := resolver.DiscoverTickers(text)
		if len(found) == 0 {
			continue
		}
		pol := clamp(s.model.Score(text), -1, 1)
		for sym, counts := range found {
			st, ok := stats[sym]
			if !ok {
				st = &trendStats{authors: make(map[string]struct{})}
				stats[sym] = st
			}
			st.mentions += counts.Plain + counts.Dollar
			st.dollar += counts.Dollar
			if rec.Author != "" {
				st.authors[rec.Author] = struct{}{}
			}
			st.polSum += pol
			st.polN++
		}
	}

	rows := make([]TrendingTicker, 0, len(stats))
	for sym, st := range stats {
		if st.mentions < config.MinMentions {
			continue
		}
		authors := len(st.authors)
		if st.dollar == 0 && authors < config.MinAuthorsPlainOnly {
			continue
		}
		pol := 0.0
		if st.polN > 0 {
			pol = st.polSum / float64(st.polN)
		}
		count := float64(st.mentions)
		conf := math.Min(1, (count/40.0)*math.Min(1, float64(authors)/math.Max(1, count*0.7)))
		rows = append(rows, TrendingTicker{
			Symbol:         sym,
			Mentions:       st.mentions,
			DollarMentions: st.dollar,
			UniqueAuthors:  authors,
			MentionBurstZ:  (count - float64(config.MinMentions)) / math.Sqrt(float64(config.MinMentions)),
			SentimentScore: clamp(pol, -1, 1),
			Confidence:     clamp(conf, 0, 1),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Mentions != rows[j].Mentions {
			return rows[i].Mentions > rows[j].Mentions
		}
		ai, aj := math.Abs(rows[i].SentimentScore), math.Abs(rows[j].SentimentScore)
		if ai != aj {
			return ai > aj
		}
		return rows[i].Symbol < rows[j].Symbol
	})
	if len(rows) > config.Limit {
		rows = rows[:config.Limit]
	}
	return rows, nil
}
