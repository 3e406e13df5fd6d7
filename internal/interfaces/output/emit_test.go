package output

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tradeguard/internal/gates"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
	"github.com/sawpanic/tradeguard/internal/social"
)

func snapshots() []sentiment.Snapshot {
	end := time.Date(2025, 9, 8, 14, 0, 0, 0, time.UTC)
	return []sentiment.Snapshot{
		{
			Symbol:         "GME",
			Window:         social.Window{Start: end.Add(-24 * time.Hour), End: end},
			SentimentScore: 0.42,
			Confidence:     0.61,
			HypeRisk:       sentiment.HypeMedium,
			Quality:        sentiment.Quality{MentionCount: 37, UniqueAuthors: 20},
			Mentions:       sentiment.Breakdown{PostMentions: 30, CommentMentions: 7},
			Method:         sentiment.MethodRedditV1,
		},
		{Symbol: "AMC", Window: social.Window{Start: end.Add(-24 * time.Hour), End: end}, HypeRisk: sentiment.HypeLow},
	}
}

func TestEmitSnapshotsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.csv")
	require.NoError(t, NewEmitter().Emit(path, snapshots()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "Symbol", rows[0][0])
	assert.Equal(t, len(rows[0]), len(rows[1]))
	assert.Equal(t, "GME", rows[1][0])
	assert.Equal(t, "2025-09-08T14:00:00Z", rows[1][2])
	assert.Equal(t, "0.4200", rows[1][3])
	assert.Equal(t, "medium", rows[1][6])
	assert.Equal(t, "37", rows[1][9])
	assert.Equal(t, "Posts", rows[0][10])
	assert.Equal(t, "30", rows[1][10])
	assert.Equal(t, "7", rows[1][11])
}

func TestEmitSnapshotsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.json")
	require.NoError(t, NewEmitter().Emit(path, snapshots()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got struct {
		Metadata  map[string]interface{} `json:"metadata"`
		Snapshots []sentiment.Snapshot   `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, float64(2), got.Metadata["count"])
	require.Len(t, got.Snapshots, 2)
	assert.Equal(t, "AMC", got.Snapshots[1].Symbol)
}

func TestEmit_UnknownFormat(t *testing.T) {
	err := NewEmitter().Emit(filepath.Join(t.TempDir(), "snapshots.xml"), snapshots())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestEmitDecisionJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decision.json")
	decision := &gates.Decision{ID: "d-1", Outcome: gates.OutcomeDeny, BlockedBy: "excluded_symbol", Summary: "denied"}
	require.NoError(t, NewEmitter().EmitDecisionJSON(path, decision))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got gates.Decision
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, gates.OutcomeDeny, got.Outcome)
	assert.Equal(t, "excluded_symbol", got.BlockedBy)
}
