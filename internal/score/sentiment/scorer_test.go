package sentiment

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tradeguard/internal/baseline"
	"github.com/sawpanic/tradeguard/internal/quality"
	"github.com/sawpanic/tradeguard/internal/social"
)

var (
	testEnd    = time.Date(2025, 9, 7, 16, 0, 0, 0, time.UTC)
	testWindow = social.NewWindow(testEnd, 24)
)

func fixedClock() time.Time { return testEnd.Add(time.Minute) }

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(nil, nil)
	require.NoError(t, err)
	return s.WithClock(fixedClock)
}

func m(id, author, sub, body string, score int, minute int) social.Mention {
	return social.Mention{
		SourceID:  id,
		Symbols:   []string{"GME"},
		Body:      body,
		Author:    author,
		Score:     score,
		Subreddit: sub,
		CreatedAt: testWindow.Start.Add(time.Duration(minute) * time.Minute),
	}
}

func filtered(t *testing.T, mentions []social.Mention) quality.FilterResult {
	t.Helper()
	f, err := quality.NewFilter(nil)
	require.NoError(t, err)
	return f.Apply(mentions)
}

func history(t *testing.T, counts ...int) baseline.Baseline {
	t.Helper()
	obs := make([]baseline.Observation, 0, len(counts))
	for i, c := range counts {
		obs = append(obs, baseline.Observation{WindowEnd: testWindow.Start.Add(-time.Duration(i) * 24 * time.Hour), Count: c})
	}
	b, err := baseline.FromHistory("GME", obs, testWindow.Start, 30)
	require.NoError(t, err)
	return b
}

type constModel float64

func (c constModel) Name() string         { return "const" }
func (c constModel) Score(string) float64 { return float64(c) }

func TestLexiconModel(t *testing.T) {
	model := NewLexiconModel(nil)
	tests := []struct {
		body string
		want float64
	}{
		{"", 0},
		{"nothing to see here", 0},
		{"buy buy", 2.0 / 3.0},
		{"not bullish at all", -0.5},
		{"short squeeze incoming", 0.5},
		{"$GME to the moon", 0.5},
		{"this is going to zero, sell", -2.0 / 3.0},
		{"Strong beat but weak guidance", 1.0 / 4.0},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.InDelta(t, tt.want, model.Score(tt.body), 1e-9)
		})
	}
	assert.Equal(t, "lexicon_v1", model.Name())
}

func TestScore_ZeroMentions(t *testing.T) {
	s := newTestScorer(t)
	snap := s.Score("GME", testWindow, filtered(t, nil), baseline.Baseline{})

	assert.Equal(t, 0.0, snap.SentimentScore)
	assert.Equal(t, 0.0, snap.Confidence)
	assert.Equal(t, HypeLow, snap.HypeRisk)
	assert.Equal(t, MethodRedditV1, snap.Method)
	assert.False(t, snap.HasSignal())
	assert.NotNil(t, snap.InsufficientData())
	assert.NotEmpty(t, snap.Warnings)
}

func TestScore_MentionBreakdown(t *testing.T) {
	s := newTestScorer(t)
	mentions := []social.Mention{
		m("p1", "alice", "stocks", "GME   earnings\n\nlook strong for the quarter", 10, 1),
		m("p2", "bob", "wallstreetbets", "GME short interest keeps climbing this week", 21, 2),
		m("c1", "carol", "stocks", "GME holders should watch the options chain", 3, 3),
		m("c2", "dave", "investing", "GME valuation still looks stretched to me", 4, 4),
	}
	mentions[2].IsComment = true
	mentions[3].IsComment = true

	snap := s.Score("GME", testWindow, filtered(t, mentions), baseline.Baseline{})
	require.Equal(t, 4, snap.Quality.MentionCount)

	got := snap.Mentions
	assert.Equal(t, 2, got.PostMentions)
	assert.Equal(t, 2, got.CommentMentions)
	assert.Equal(t, 15.5, got.AvgPostScore)
	assert.Equal(t, 3.5, got.AvgCommentScore)
	require.Len(t, got.SampleContext, MaxSamples)
	for _, sample := range got.SampleContext {
		assert.NotContains(t, sample, "  ")
		assert.NotContains(t, sample, "\n")
	}

	empty := s.Score("GME", testWindow, filtered(t, nil), baseline.Baseline{})
	assert.Zero(t, empty.Mentions.PostMentions)
	assert.NotNil(t, empty.Mentions.SampleContext)
	assert.Empty(t, empty.Mentions.SampleContext)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("  a\tb\n\nc "))
	long := snippet(strings.Repeat("é", SnippetLength+40))
	assert.Equal(t, SnippetLength, utf8.RuneCountInString(long))
}

func TestScore_ClampInvariant(t *testing.T) {
	models := []TextPolarityModel{constModel(5), constModel(-7), NewLexiconModel(nil)}
	bodies := []string{
		"buy buy buy calls moon rocket squeeze breakout upgrade strong long",
		"sell sell dump puts fraud weak downgrade overvalued bearish short",
	}
	for _, model := range models {
		s, err := NewScorer(nil, model)
		require.NoError(t, err)
		for n := 1; n <= 40; n += 13 {
			var mentions []social.Mention
			for i := 0; i < n; i++ {
				mentions = append(mentions, m(fmt.Sprintf("p%d", i), fmt.Sprintf("u%d", i), "securityanalysis", bodies[i%2]+fmt.Sprintf(" variant %d", i), 1000*i, i))
			}
			snap := s.Score("GME", testWindow, filtered(t, mentions), history(t, 1, 2, 3))
			assert.GreaterOrEqual(t, snap.SentimentScore, -1.0)
			assert.LessOrEqual(t, snap.SentimentScore, 1.0)
			assert.GreaterOrEqual(t, snap.Confidence, 0.0)
			assert.LessOrEqual(t, snap.Confidence, 1.0)
		}
	}

	s, err := NewScorer(nil, constModel(5))
	require.NoError(t, err)
	snap := s.Score("GME", testWindow, filtered(t, []social.Mention{m("p1", "a", "securityanalysis", "anything goes right here", 3, 1)}), baseline.Baseline{})
	assert.Equal(t, 1.0, snap.SentimentScore)
}

func TestScore_BurstZeroAtBaselineMean(t *testing.T) {
	s := newTestScorer(t)
	mentions := []social.Mention{
		m("p1", "a", "stocks", "GME earnings look decent this quarter", 3, 1),
		m("p2", "b", "investing", "Holding GME through the report", 5, 2),
		m("p3", "c", "stocks", "GME volume is normal today honestly", 1, 3),
	}
	snap := s.Score("GME", testWindow, filtered(t, mentions), history(t, 2, 3, 4))
	assert.Equal(t, 0.0, snap.MentionBurstZ)
	assert.Equal(t, HypeLow, snap.HypeRisk)
	assert.Equal(t, int64(3), snap.BaselineVersion)
}

func TestScore_AuthorCapInvariant(t *testing.T) {
	s := newTestScorer(t)
	build := func(spam int) []social.Mention {
		out := []social.Mention{
			m("o1", "o1", "stocks", "GME chart looks constructive into the close", 4, 0),
			m("o2", "o2", "investing", "Not convinced by GME valuation at these levels", 6, 0),
		}
		for i := 0; i < spam; i++ {
			out = append(out, m(fmt.Sprintf("s%02d", i), "pumper", "wallstreetbets", "GME rocket buy buy buy now", 1, i+1))
		}
		return out
	}

	base := history(t, 2, 3, 4)
	capped := s.Score("GME", testWindow, filtered(t, build(3)), base)
	flooded := s.Score("GME", testWindow, filtered(t, build(50)), base)

	assert.Equal(t, capped.SentimentScore, flooded.SentimentScore)
	assert.Equal(t, capped.Confidence, flooded.Confidence)
	assert.Equal(t, capped.MentionBurstZ, flooded.MentionBurstZ)
}

func TestScore_ConfidenceMonotonicity(t *testing.T) {
	s := newTestScorer(t)
	base := history(t, 2, 3, 4)

	bodies := []string{
		"GME breakout above resistance today",
		"Thinking about GME calls for next month",
		"GME balance sheet improved a lot",
		"Earnings beat for GME again this quarter",
		"Adding GME on this dip slowly",
		"GME upgrade from a major bank",
	}
	withAuthors := func(authors int) quality.FilterResult {
		var mentions []social.Mention
		for i, body := range bodies {
			mentions = append(mentions, m(fmt.Sprintf("p%d", i), fmt.Sprintf("u%d", i%authors), "stocks", body, 5, i))
		}
		return quality.FilterResult{Mentions: mentions, Meta: quality.Meta{
			InputMentions: len(mentions), Kept: len(mentions), UniqueAuthors: authors, DistinctSubreddits: 1,
		}}
	}

	t.Run("unique_authors", func(t *testing.T) {
		prev := -1.0
		for _, authors := range []int{1, 2, 3, 6} {
			conf := s.Score("GME", testWindow, withAuthors(authors), base).Confidence
			assert.GreaterOrEqual(t, conf, prev, "authors=%d", authors)
			prev = conf
		}
	})

	t.Run("distinct_subreddits", func(t *testing.T) {
		prev := -1.0
		for _, subs := range []int{1, 2, 4} {
			fr := withAuthors(6)
			fr.Meta.DistinctSubreddits = subs
			conf := s.Score("GME", testWindow, fr, base).Confidence
			assert.GreaterOrEqual(t, conf, prev, "subreddits=%d", subs)
			prev = conf
		}
	})

	t.Run("spam_mass", func(t *testing.T) {
		prev := 2.0
		for _, spam := range []int{0, 2, 6, 30} {
			fr := withAuthors(6)
			fr.Meta.DroppedRing = spam
			conf := s.Score("GME", testWindow, fr, base).Confidence
			assert.LessOrEqual(t, conf, prev, "spam=%d", spam)
			prev = conf
		}
	})
}

func TestScore_HypeRisk(t *testing.T) {
	s := newTestScorer(t)

	pump := func(n int) quality.FilterResult {
		var mentions []social.Mention
		for i := 0; i < n; i++ {
			mentions = append(mentions, m(fmt.Sprintf("p%d", i), fmt.Sprintf("u%d", i%2), "wallstreetbets", fmt.Sprintf("GME squeeze call number %d is live", i), 2, i))
		}
		return quality.FilterResult{Mentions: mentions, Meta: quality.Meta{InputMentions: n, Kept: n, UniqueAuthors: 2, DistinctSubreddits: 1}}
	}

	high := s.Score("GME", testWindow, pump(10), history(t, 1, 3))
	assert.InDelta(t, 8.0, high.MentionBurstZ, 1e-9)
	assert.Less(t, high.Confidence, 0.45)
	assert.Equal(t, HypeHigh, high.HypeRisk)

	medium := s.Score("GME", testWindow, pump(7), history(t, 2, 6))
	assert.InDelta(t, 1.5, medium.MentionBurstZ, 1e-9)
	assert.Equal(t, HypeMedium, medium.HypeRisk)
}

func TestScore_UniformWeightsWithoutEngagement(t *testing.T) {
	s, err := NewScorer(nil, nil)
	require.NoError(t, err)
	mentions := []social.Mention{
		m("p1", "a", "stocks", "buy buy GME", 0, 1),
		m("p2", "b", "stocks", "GME sell now", 0, 2),
	}
	fr := quality.FilterResult{Mentions: mentions, Meta: quality.Meta{InputMentions: 2, Kept: 2, UniqueAuthors: 2, DistinctSubreddits: 1}}
	snap := s.Score("GME", testWindow, fr, baseline.Baseline{})

	want := (2.0/3.0 - 0.5) / 2
	assert.InDelta(t, want, snap.Components.TextPolarity, 1e-9)
	assert.InDelta(t, 1.0, snap.Components.SubredditQualityWeight, 1e-9)
	assert.InDelta(t, 0.5, snap.BullishRatio, 1e-9)
	assert.InDelta(t, 0.5, snap.BearishRatio, 1e-9)
	assert.InDelta(t, 0.5, snap.Components.AuthorDiversity, 1e-9)
	assert.Equal(t, 0.0, snap.Components.EngagementWeight)
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	s := newTestScorer(t)
	mentions := []social.Mention{
		m("p1", "a", "stocks", "GME breakout looks strong to me", 12, 1),
		m("p2", "b", "wallstreetbets", "GME is going to zero, sell it", 3, 2),
		m("p3", "c", "investing", "Holding GME long for the turnaround", 7, 3),
	}
	snap := s.Score("GME", testWindow, filtered(t, mentions), history(t, 1, 2, 6))

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, snap, back)
}

func TestNewScorer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"volume_scale", func(c *Config) { c.VolumeScale = 0 }},
		{"breadth_floor", func(c *Config) { c.BreadthFloor = 1.5 }},
		{"spam_penalty", func(c *Config) { c.SpamPenalty = -0.1 }},
		{"hype_order", func(c *Config) { c.HypeNearBaselineZ = 3 }},
		{"subreddit_quality", func(c *Config) { c.SubredditQuality["stocks"] = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			_, err := NewScorer(cfg, nil)
			require.Error(t, err)
		})
	}
}

func TestTrending(t *testing.T) {
	s := newTestScorer(t)
	at := func(hours float64) float64 {
		return float64(testEnd.Add(-time.Duration(hours * float64(time.Hour))).Unix())
	}
	records := []social.RawRecord{
		{ID: "r1", Kind: social.KindPost, Title: "$GME squeeze", Body: "GME again, IT is wild", Author: "a", CreatedUTC: at(1)},
		{ID: "r2", Kind: social.KindPost, Body: "GME GME breakout", Author: "b", CreatedUTC: at(2)},
		{ID: "r3", Kind: social.KindPost, Body: "NVDA NVDA", Author: "a", CreatedUTC: at(3)},
		{ID: "r4", Kind: social.KindPost, Body: "AMD looks weak", Author: "a", CreatedUTC: at(4)},
		{ID: "r5", Kind: social.KindComment, Body: "AMD is fine", Author: "c", CreatedUTC: at(5)},
		{ID: "r6", Kind: social.KindPost, Body: "$TSLA $TSLA $TSLA", Author: "z", CreatedUTC: at(48)},
	}

	rows, err := s.Trending(records, testWindow, nil, &TrendingConfig{MinMentions: 2, Limit: 10, MinAuthorsPlainOnly: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "GME", rows[0].Symbol)
	assert.Equal(t, 4, rows[0].Mentions)
	assert.Equal(t, 1, rows[0].DollarMentions)
	assert.Equal(t, 2, rows[0].UniqueAuthors)
	assert.Greater(t, rows[0].SentimentScore, 0.0)

	assert.Equal(t, "AMD", rows[1].Symbol)
	assert.Less(t, rows[1].SentimentScore, 0.0)

	_, err = s.Trending(records, testWindow, nil, &TrendingConfig{MinMentions: 0, Limit: 10, MinAuthorsPlainOnly: 1})
	require.Error(t, err)
}
