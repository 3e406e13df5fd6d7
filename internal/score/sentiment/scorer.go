package sentiment

import (
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradeguard/internal/baseline"
	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/quality"
	"github.com/sawpanic/tradeguard/internal/social"
)

// Config contains the aggregation and confidence parameters
type Config struct {
	SubredditQuality        map[string]float64 `yaml:"subreddit_quality"`         // Per-community multiplier
	DefaultSubredditQuality float64            `yaml:"default_subreddit_quality"` // 0.9 for unlisted communities
	VolumeScale             float64            `yaml:"volume_scale"`              // 12 mentions ≈ 63% volume factor
	EngagementScale         float64            `yaml:"engagement_scale"`          // 5.0 mean ln-engagement saturates
	MinQualityWeight        float64            `yaml:"min_quality_weight"`        // 0.5 floor on the quality term
	BreadthFloor            float64            `yaml:"breadth_floor"`             // 0.7 breadth at one subreddit
	SpamPenalty             float64            `yaml:"spam_penalty"`              // 1.0 per unit spam ratio
	BurstEpsilon            float64            `yaml:"burst_epsilon"`             // stddev below this → burst 0

	HypeHighBurstZ    float64        `yaml:"hype_high_burst_z"`    // ≥2.0 with low confidence → high
	HypeLowConfidence float64        `yaml:"hype_low_confidence"`  // <0.45
	HypeNearBaselineZ float64        `yaml:"hype_near_baseline_z"` // <1.0 → low
	Lexicon           *LexiconConfig `yaml:"lexicon,omitempty"`    // nil = DefaultLexiconConfig
}

// DefaultConfig returns the reddit_v1 parameters
func DefaultConfig() *Config {
	return &Config{
		SubredditQuality: map[string]float64{
			"securityanalysis": 1.2,
			"stocks":           1.0,
			"investing":        1.0,
			"wallstreetbets":   0.8,
		},
		DefaultSubredditQuality: 0.9,
		VolumeScale:             12,
		EngagementScale:         5.0,
		MinQualityWeight:        0.5,
		BreadthFloor:            0.7,
		SpamPenalty:             1.0,
		BurstEpsilon:            1e-6,
		HypeHighBurstZ:          2.0,
		HypeLowConfidence:       0.45,
		HypeNearBaselineZ:       1.0,
	}
}

// Validate rejects parameters that would break clamping or saturation
func (c *Config) Validate() error {
	if c.DefaultSubredditQuality <= 0 {
		return errs.Configf("scorer.default_subreddit_quality", "must be > 0, got %v", c.DefaultSubredditQuality)
	}
	for sub, q := range c.SubredditQuality {
		if q <= 0 {
			return errs.Configf("scorer.subreddit_quality."+sub, "must be > 0, got %v", q)
		}
	}
	if c.VolumeScale <= 0 {
		return errs.Configf("scorer.volume_scale", "must be > 0, got %v", c.VolumeScale)
	}
	if c.EngagementScale <= 0 {
		return errs.Configf("scorer.engagement_scale", "must be > 0, got %v", c.EngagementScale)
	}
	if c.MinQualityWeight < 0 || c.MinQualityWeight > 1 {
		return errs.Configf("scorer.min_quality_weight", "must be in [0,1], got %v", c.MinQualityWeight)
	}
	if c.BreadthFloor <= 0 || c.BreadthFloor > 1 {
		return errs.Configf("scorer.breadth_floor", "must be in (0,1], got %v", c.BreadthFloor)
	}
	if c.SpamPenalty < 0 || c.SpamPenalty > 1 {
		return errs.Configf("scorer.spam_penalty", "must be in [0,1], got %v", c.SpamPenalty)
	}
	if c.BurstEpsilon <= 0 {
		return errs.Configf("scorer.burst_epsilon", "must be > 0, got %v", c.BurstEpsilon)
	}
	if c.HypeLowConfidence < 0 || c.HypeLowConfidence > 1 {
		return errs.Configf("scorer.hype_low_confidence", "must be in [0,1], got %v", c.HypeLowConfidence)
	}
	if c.HypeNearBaselineZ > c.HypeHighBurstZ {
		return errs.Configf("scorer.hype_near_baseline_z", "must be <= hype_high_burst_z (%v), got %v", c.HypeHighBurstZ, c.HypeNearBaselineZ)
	}
	return nil
}

// QualityFor returns the multiplier for a subreddit
func (c *Config) QualityFor(subreddit string) float64 {
	if q, ok := c.SubredditQuality[strings.ToLower(subreddit)]; ok {
		return q
	}
	return c.DefaultSubredditQuality
}

// Scorer turns a filtered mention set and a baseline into a Snapshot
type Scorer struct {
	config *Config
	model  TextPolarityModel
	now    func() time.Time
}

// NewScorer validates config; nil model uses the lexicon model
func NewScorer(config *Config, model TextPolarityModel) (*Scorer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if model == nil {
		model = NewLexiconModel(config.Lexicon)
	}
	return &Scorer{config: config, model: model, now: time.Now}, nil
}

// WithClock overrides computed_at; used for deterministic replay
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	cp := *s
	cp.now = now
	return &cp
}

// Config returns the parameters in force
func (s *Scorer) Config() Config {
	return *s.config
}

// Model returns the polarity model
func (s *Scorer) Model() TextPolarityModel {
	return s.model
}

// Score aggregates one symbol's filtered mentions. Zero mentions is a valid, zero-confidence snapshot.
func (s *Scorer) Score(symbol string, window social.Window, filtered quality.FilterResult, base baseline.Baseline) Snapshot {
	mentions := filtered.Mentions
	n := len(mentions)
	meta := filtered.Meta

	snap := Snapshot{
		Symbol:          symbol,
		Window:          window,
		HypeRisk:        HypeLow,
		BaselineVersion: base.Version,
		BaselineMean:    base.Mean,
		BaselineStdDev:  base.StdDev,
		Model:           s.model.Name(),
		Method:          MethodRedditV1,
		ComputedAt:      s.now().UTC(),
		Quality: Quality{
			MentionCount:       n,
			UniqueAuthors:      meta.UniqueAuthors,
			DistinctSubreddits: meta.DistinctSubreddits,
			PostsScanned:       meta.PostsScanned,
			CommentsScanned:    meta.CommentsScanned,
			DroppedDeleted:     meta.DroppedDeleted,
			DroppedShort:       meta.DroppedShort,
			DroppedRing:        meta.DroppedRing,
			DroppedAuthorCap:   meta.DroppedAuthorCap,
			SpamRatio:          clamp(meta.SpamRatio(), 0, 1),
		},
	}
	snap.Mentions = breakdown(mentions)
	snap.MentionBurstZ = base.BurstZ(n, s.config.BurstEpsilon)
	if base.Empty() {
		snap.Warnings = append(snap.Warnings, (&errs.InsufficientDataError{Symbol: symbol, Reason: "empty baseline, burst fixed at 0"}).Error())
	}

	if n == 0 {
		snap.Warnings = append(snap.Warnings, snap.InsufficientData().Error())
		return snap
	}

	raw := make([]float64, n)
	total := 0.0
	for i, m := range mentions {
		raw[i] = lnEngagement(m)
		total += raw[i]
	}

	var polarity, weighted, qualityWeight float64
	bull, bear := 0, 0
	for i, m := range mentions {
		w := 1.0 / float64(n)
		if total > 0 {
			w = raw[i] / total
		}
		p := clamp(s.model.Score(m.Body), -1, 1)
		q := s.config.QualityFor(m.Subreddit)

		polarity += w * p
		weighted += w * q * p
		qualityWeight += w * q
		switch {
		case p > 0:
			bull++
		case p < 0:
			bear++
		}
	}

	snap.SentimentScore = clamp(weighted, -1, 1)
	snap.BullishRatio = float64(bull) / float64(n)
	snap.BearishRatio = float64(bear) / float64(n)

	diversity := authorDiversity(mentions)
	snap.Components = Components{
		TextPolarity:           clamp(polarity, -1, 1),
		EngagementWeight:       math.Min(1, (total/float64(n))/s.config.EngagementScale),
		AuthorDiversity:        diversity,
		SubredditQualityWeight: qualityWeight,
	}

	snap.Factors = Factors{
		DataVolume:    clamp(1-math.Exp(-float64(n)/s.config.VolumeScale), 0, 1),
		Diversity:     clamp(diversity, 0, 1),
		SourceQuality: s.sourceQuality(qualityWeight, meta.DistinctSubreddits, snap.Quality.SpamRatio),
	}
	snap.Confidence = clamp(snap.Factors.DataVolume*snap.Factors.Diversity*snap.Factors.SourceQuality, 0, 1)
	snap.HypeRisk = s.hypeRisk(snap.MentionBurstZ, snap.Confidence)

	log.Debug().
		Str("symbol", symbol).
		Int("mentions", n).
		Float64("sentiment", snap.SentimentScore).
		Float64("confidence", snap.Confidence).
		Float64("burst_z", snap.MentionBurstZ).
		Str("hype", string(snap.HypeRisk)).
		Msg("Sentiment scored")

	return snap
}

func (s *Scorer) sourceQuality(qualityWeight float64, subreddits int, spamRatio float64) float64 {
	qw := clamp(qualityWeight, s.config.MinQualityWeight, 1)
	d := float64(subreddits)
	if d < 1 {
		d = 1
	}
	breadth := 1 - (1-s.config.BreadthFloor)/d
	spam := 1 - s.config.SpamPenalty*spamRatio
	return clamp(qw*breadth*spam, 0, 1)
}

func (s *Scorer) hypeRisk(z, confidence float64) HypeRisk {
	switch {
	case z >= s.config.HypeHighBurstZ && confidence < s.config.HypeLowConfidence:
		return HypeHigh
	case z < s.config.HypeNearBaselineZ:
		return HypeLow
	}
	return HypeMedium
}

// breakdown counts posts and comments, averages their scores and keeps the first MaxSamples snippets
func breakdown(mentions []social.Mention) Breakdown {
	b := Breakdown{SampleContext: []string{}}
	var postScore, commentScore int
	for _, m := range mentions {
		if m.IsComment {
			b.CommentMentions++
			commentScore += m.Score
		} else {
			b.PostMentions++
			postScore += m.Score
		}
		if len(b.SampleContext) < MaxSamples {
			b.SampleContext = append(b.SampleContext, snippet(m.Body))
		}
	}
	if b.PostMentions > 0 {
		b.AvgPostScore = round2(float64(postScore) / float64(b.PostMentions))
	}
	if b.CommentMentions > 0 {
		b.AvgCommentScore = round2(float64(commentScore) / float64(b.CommentMentions))
	}
	return b
}

// snippet collapses whitespace and cuts to SnippetLength runes
func snippet(text string) string {
	clean := []rune(strings.Join(strings.Fields(text), " "))
	if len(clean) > SnippetLength {
		clean = clean[:SnippetLength]
	}
	return string(clean)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// lnEngagement is ln(1+score+num_comments) for posts and ln(1+score) for comments, negatives floored
func lnEngagement(m social.Mention) float64 {
	return math.Log1p(float64(m.Engagement()))
}

// authorDiversity is 1 − Σ share²; anonymous mentions each count as a distinct author
func authorDiversity(mentions []social.Mention) float64 {
	if len(mentions) == 0 {
		return 0
	}
	counts := make(map[string]int)
	for _, m := range mentions {
		key := m.Author
		if key == "" {
			key = "\x00" + m.SourceID
		}
		counts[key]++
	}
	hhi := 0.0
	n := float64(len(mentions))
	for _, c := range counts {
		share := float64(c) / n
		hhi += share * share
	}
	return clamp(1-hhi, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
