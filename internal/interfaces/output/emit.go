package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/tradeguard/internal/gates"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
)

// Emitter writes scored snapshots and gate decisions to files for offline review
type Emitter struct{}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// Emit picks the format from the extension: .csv or .json
func (e *Emitter) Emit(filePath string, snapshots []sentiment.Snapshot) error {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		return e.EmitSnapshotsCSV(filePath, snapshots)
	case ".json":
		return e.EmitSnapshotsJSON(filePath, snapshots)
	default:
		return fmt.Errorf("unsupported output format %q (want .csv or .json)", filepath.Ext(filePath))
	}
}

func (e *Emitter) EmitSnapshotsCSV(filePath string, snapshots []sentiment.Snapshot) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"Symbol", "WindowStart", "WindowEnd", "Sentiment", "Confidence", "BurstZ", "Hype",
		"Bullish", "Bearish", "Mentions", "Posts", "Comments", "Authors", "Subreddits", "SpamRatio",
		"Polarity", "Engagement", "Diversity", "SubredditQuality",
		"BaselineVersion", "BaselineMean", "BaselineStdDev", "Method",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, s := range snapshots {
		record := []string{
			s.Symbol,
			s.Window.Start.UTC().Format(time.RFC3339),
			s.Window.End.UTC().Format(time.RFC3339),
			fmt.Sprintf("%.4f", s.SentimentScore),
			fmt.Sprintf("%.4f", s.Confidence),
			fmt.Sprintf("%.3f", s.MentionBurstZ),
			string(s.HypeRisk),
			fmt.Sprintf("%.3f", s.BullishRatio),
			fmt.Sprintf("%.3f", s.BearishRatio),
			strconv.Itoa(s.Quality.MentionCount),
			strconv.Itoa(s.Mentions.PostMentions),
			strconv.Itoa(s.Mentions.CommentMentions),
			strconv.Itoa(s.Quality.UniqueAuthors),
			strconv.Itoa(s.Quality.DistinctSubreddits),
			fmt.Sprintf("%.3f", s.Quality.SpamRatio),
			fmt.Sprintf("%.4f", s.Components.TextPolarity),
			fmt.Sprintf("%.4f", s.Components.EngagementWeight),
			fmt.Sprintf("%.4f", s.Components.AuthorDiversity),
			fmt.Sprintf("%.4f", s.Components.SubredditQualityWeight),
			strconv.FormatInt(s.BaselineVersion, 10),
			fmt.Sprintf("%.3f", s.BaselineMean),
			fmt.Sprintf("%.3f", s.BaselineStdDev),
			s.Method,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (e *Emitter) EmitSnapshotsJSON(filePath string, snapshots []sentiment.Snapshot) error {
	return writeJSON(filePath, map[string]interface{}{
		"metadata": map[string]interface{}{
			"generated_at": time.Now().UTC(),
			"count":        len(snapshots),
			"method":       sentiment.MethodRedditV1,
		},
		"snapshots": snapshots,
	})
}

// EmitDecisionJSON writes one gate decision with its reasons and metrics
func (e *Emitter) EmitDecisionJSON(filePath string, decision *gates.Decision) error {
	return writeJSON(filePath, decision)
}

func writeJSON(filePath string, v interface{}) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
