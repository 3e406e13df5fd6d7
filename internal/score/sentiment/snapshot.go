package sentiment

import (
	"fmt"
	"time"

	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/social"
)

// MethodRedditV1 tags snapshots produced by the current aggregation formula
const MethodRedditV1 = "reddit_v1"

// Sample snippet limits for Breakdown.SampleContext
const (
	MaxSamples    = 3
	SnippetLength = 160
)

// HypeRisk flags high-volume, low-confidence combinations
type HypeRisk string

const (
	HypeLow    HypeRisk = "low"
	HypeMedium HypeRisk = "medium"
	HypeHigh   HypeRisk = "high"
)

// Components is the auditable breakdown behind sentiment_score
type Components struct {
	TextPolarity           float64 `json:"text_polarity"`            // Engagement-weighted mean polarity
	EngagementWeight       float64 `json:"engagement_weight"`        // Mean ln-engagement / scale, capped at 1
	AuthorDiversity        float64 `json:"author_diversity"`         // 1 − HHI of author shares
	SubredditQualityWeight float64 `json:"subreddit_quality_weight"` // Engagement-weighted mean multiplier
}

// Factors are the three clamped terms multiplied into confidence
type Factors struct {
	DataVolume    float64 `json:"data_volume"`
	Diversity     float64 `json:"diversity"`
	SourceQuality float64 `json:"source_quality"`
}

// Quality carries the filter metadata that fed the snapshot
type Quality struct {
	MentionCount       int     `json:"mention_count"`
	UniqueAuthors      int     `json:"unique_authors"`
	DistinctSubreddits int     `json:"distinct_subreddits"`
	PostsScanned       int     `json:"posts_scanned"`
	CommentsScanned    int     `json:"comments_scanned"`
	DroppedDeleted     int     `json:"dropped_deleted"`
	DroppedShort       int     `json:"dropped_short"`
	DroppedRing        int     `json:"dropped_ring"`
	DroppedAuthorCap   int     `json:"dropped_author_cap"`
	SpamRatio          float64 `json:"spam_ratio"`
}

// Breakdown splits the surviving mentions by kind, with a few snippets to audit them by
type Breakdown struct {
	PostMentions    int      `json:"post_mentions"`
	CommentMentions int      `json:"comment_mentions"`
	AvgPostScore    float64  `json:"avg_post_score"`
	AvgCommentScore float64  `json:"avg_comment_score"`
	SampleContext   []string `json:"sample_context"` // At most MaxSamples, whitespace collapsed
}

// Snapshot is the per (symbol, Window) sentiment record; read-only after scoring
type Snapshot struct {
	Symbol          string        `json:"symbol"`
	Window          social.Window `json:"window"`
	SentimentScore  float64       `json:"sentiment_score"` // [-1, 1]
	MentionBurstZ   float64       `json:"mention_burst_z"`
	BullishRatio    float64       `json:"bullish_ratio"`
	BearishRatio    float64       `json:"bearish_ratio"`
	HypeRisk        HypeRisk      `json:"hype_risk"`
	Confidence      float64       `json:"confidence"` // [0, 1]
	Components      Components    `json:"components"`
	Factors         Factors       `json:"factors"`
	Quality         Quality       `json:"quality"`
	Mentions        Breakdown     `json:"mentions"`
	BaselineVersion int64         `json:"baseline_version"`
	BaselineMean    float64       `json:"baseline_mean"`
	BaselineStdDev  float64       `json:"baseline_stddev"`
	Model           string        `json:"model"`
	Method          string        `json:"method"`
	ComputedAt      time.Time     `json:"computed_at"`
	Warnings        []string      `json:"warnings,omitempty"`
}

// HasSignal reports whether any mention survived filtering
func (s *Snapshot) HasSignal() bool {
	return s != nil && s.Quality.MentionCount > 0
}

// InsufficientData describes why the snapshot carries no signal, or nil
func (s *Snapshot) InsufficientData() *errs.InsufficientDataError {
	if s.HasSignal() {
		return nil
	}
	symbol := ""
	if s != nil {
		symbol = s.Symbol
	}
	return &errs.InsufficientDataError{Symbol: symbol, Reason: "no mentions after filtering"}
}

// Summary renders the one-line human-readable form
func (s *Snapshot) Summary() string {
	return fmt.Sprintf("%s: sentiment=%+.2f, mentions=%d, authors=%d, burst_z=%+.2f, confidence=%.2f, hype=%s",
		s.Symbol, s.SentimentScore, s.Quality.MentionCount, s.Quality.UniqueAuthors,
		s.MentionBurstZ, s.Confidence, s.HypeRisk)
}
