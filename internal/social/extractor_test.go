package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnd = time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)

func ts(hoursBeforeEnd float64) float64 {
	return float64(testEnd.Add(-time.Duration(hoursBeforeEnd * float64(time.Hour))).Unix())
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(nil)
	require.NoError(t, err)
	return e
}

func TestParseSymbols(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, ParseSymbols(" $tsla, AAPL,msft,aapl,"))
	assert.Empty(t, ParseSymbols("TOOLONGSYM,12,"))
}

func TestTickerResolver_Resolve(t *testing.T) {
	r := NewTickerResolver(nil)

	tests := []struct {
		name    string
		text    string
		targets []string
		want    []SymbolMatch
	}{
		{
			name:    "plain_word_boundary",
			text:    "Loading up on AAPL before earnings",
			targets: []string{"AAPL"},
			want:    []SymbolMatch{{Symbol: "AAPL"}},
		},
		{
			name:    "case_insensitive_plain",
			text:    "aapl looks cheap",
			targets: []string{"AAPL"},
			want:    []SymbolMatch{{Symbol: "AAPL"}},
		},
		{
			name:    "cash_tag",
			text:    "$TSLA to the moon",
			targets: []string{"TSLA"},
			want:    []SymbolMatch{{Symbol: "TSLA", CashTag: true}},
		},
		{
			name:    "substring_rejected",
			text:    "AAPLX is a different fund",
			targets: []string{"AAPL"},
			want:    nil,
		},
		{
			name:    "ambiguous_plain_rejected",
			text:    "IT is all about the DD here",
			targets: []string{"IT", "DD", "ALL"},
			want:    nil,
		},
		{
			name:    "ambiguous_cash_tag_accepted",
			text:    "Bought more $IT today, also $all",
			targets: []string{"IT", "ALL"},
			want:    []SymbolMatch{{Symbol: "IT", CashTag: true}, {Symbol: "ALL", CashTag: true}},
		},
		{
			name:    "dollar_inside_word_rejected",
			text:    "US$IT pricing",
			targets: []string{"IT"},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.text, tt.targets))
		})
	}
}

func TestTickerResolver_DiscoverTickers(t *testing.T) {
	r := NewTickerResolver(nil)
	found := r.DiscoverTickers("$GME and GME again, THE CEO said A lot about $NVDA. Xyz")

	assert.Equal(t, TickerCounts{Plain: 1, Dollar: 1}, found["GME"])
	assert.Equal(t, TickerCounts{Dollar: 1}, found["NVDA"])
	assert.NotContains(t, found, "THE")
	assert.NotContains(t, found, "CEO")
	assert.NotContains(t, found, "A")
}

func TestExtractor_DropsMalformedAndOutOfWindow(t *testing.T) {
	e := newTestExtractor(t)
	window := NewWindow(testEnd, 24)

	records := []RawRecord{
		{ID: "", Body: "AAPL", CreatedUTC: ts(1)},
		{ID: "p1", Body: "AAPL", CreatedUTC: 0},
		{ID: "p2", Body: "   ", CreatedUTC: ts(1)},
		{ID: "p3", Kind: "story", Body: "AAPL", CreatedUTC: ts(1)},
		{ID: "p4", Kind: KindPost, Body: "AAPL breakout", Author: "a", CreatedUTC: ts(30)},
		{ID: "p5", Kind: KindPost, Title: "AAPL breakout", Author: "a", CreatedUTC: ts(2)},
		{ID: "c1", Kind: KindComment, Body: "what about aapl", Author: "b", CreatedUTC: ts(1)},
		{ID: "c2", Kind: KindComment, Body: "nothing relevant", Author: "c", CreatedUTC: ts(1)},
	}

	res := e.Extract(records, []string{"AAPL"}, window)

	require.Len(t, res.Dropped, 4)
	assert.Equal(t, "id", res.Dropped[0].Field)
	assert.Equal(t, "created_utc", res.Dropped[1].Field)
	assert.Equal(t, "body", res.Dropped[2].Field)
	assert.Equal(t, "kind", res.Dropped[3].Field)
	assert.Equal(t, 1, res.OutOfWindow)
	assert.Equal(t, 1, res.PostsScanned)
	assert.Equal(t, 2, res.CommentsScanned)

	require.Len(t, res.Mentions, 2)
	assert.Equal(t, "p5", res.Mentions[0].SourceID)
	assert.False(t, res.Mentions[0].IsComment)
	assert.Equal(t, "c1", res.Mentions[1].SourceID)
	assert.True(t, res.Mentions[1].IsComment)
}

func TestExtractor_CollapsesSameAuthorNearDuplicates(t *testing.T) {
	e := newTestExtractor(t)
	window := NewWindow(testEnd, 24)

	records := []RawRecord{
		{ID: "p1", Kind: KindPost, Body: "$GME squeeze is coming, buy now!!", Author: "pumper", Score: 3, CreatedUTC: ts(5)},
		{ID: "p2", Kind: KindPost, Body: "$gme   SQUEEZE is coming buy now", Author: "pumper", Score: 40, CreatedUTC: ts(4)},
		{ID: "p3", Kind: KindPost, Body: "$GME squeeze is coming, buy now", Author: "pumper", Score: 10, CreatedUTC: ts(3)},
		{ID: "p4", Kind: KindPost, Body: "$GME squeeze is coming, buy now", Author: "other", Score: 1, CreatedUTC: ts(2)},
		{ID: "p5", Kind: KindPost, Body: "Different thesis entirely on $GME margins", Author: "pumper", Score: 1, CreatedUTC: ts(1)},
	}

	res := e.Extract(records, []string{"GME"}, window)

	assert.Equal(t, 2, res.Collapsed)
	ids := make([]string, 0, len(res.Mentions))
	for _, m := range res.Mentions {
		ids = append(ids, m.SourceID)
	}
	assert.Equal(t, []string{"p2", "p4", "p5"}, ids, "highest engagement instance retained, chronological output")
	assert.Equal(t, []string{"GME"}, res.Mentions[0].CashTags)
}

func TestNearDuplicate(t *testing.T) {
	sim := Similarity{Threshold: 0.9, PrefixChars: 20}

	assert.True(t, sim.NearDuplicate("Buy NOW!!!", "buy now"))
	assert.True(t, sim.NearDuplicate("this is a very long shared opening line A", "this is a very long shared opening line B"))
	assert.False(t, sim.NearDuplicate("short bull case", "short bear case"))
	assert.InDelta(t, 0.5, Jaccard([]string{"a", "b"}, []string{"b", "c", "a", "d"}), 1e-9)
}

func TestWindow(t *testing.T) {
	w := NewWindow(testEnd, 0)
	assert.Equal(t, 1, w.LookbackHours)
	assert.True(t, w.Contains(w.Start))
	assert.False(t, w.Contains(w.End))
	assert.Equal(t, time.Hour, w.Duration())
}

func TestNewExtractor_InvalidConfig(t *testing.T) {
	_, err := NewExtractor(&ExtractorConfig{DedupeSimilarity: 1.5})
	require.Error(t, err)
}
