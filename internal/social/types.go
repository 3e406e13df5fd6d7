package social

import (
	"math"
	"strings"
	"time"
)

// RecordKind distinguishes top-level posts from comments
type RecordKind string

const (
	KindPost    RecordKind = "post"
	KindComment RecordKind = "comment"
)

// RawRecord is one post or comment exactly as delivered by the social-content client
type RawRecord struct {
	ID          string     `json:"id"`
	PostID      string     `json:"post_id,omitempty"` // Parent post for comments
	Kind        RecordKind `json:"kind"`
	Title       string     `json:"title,omitempty"`
	Body        string     `json:"body"`
	Subreddit   string     `json:"subreddit"`
	Author      string     `json:"author"`
	Score       int        `json:"score"`
	NumComments int        `json:"num_comments,omitempty"`
	CreatedUTC  float64    `json:"created_utc"` // Unix seconds
	IsSubmitter bool       `json:"is_submitter,omitempty"`
}

// CreatedAt converts the unix timestamp to a UTC time
func (r RawRecord) CreatedAt() time.Time {
	sec, frac := math.Modf(r.CreatedUTC)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// Mention is one social unit that references at least one candidate symbol
type Mention struct {
	SourceID    string    `json:"source_id"`
	Symbols     []string  `json:"symbols"`
	CashTags    []string  `json:"cash_tags,omitempty"` // Symbols matched in $TICKER form
	Body        string    `json:"body"`
	Author      string    `json:"author"`
	Score       int       `json:"score"`
	NumComments int       `json:"num_comments"`
	Subreddit   string    `json:"subreddit"`
	CreatedAt   time.Time `json:"created_at"`
	IsComment   bool      `json:"is_comment"`
	IsSubmitter bool      `json:"is_submitter"`
}

// Engagement is the non-negative score plus comment count used for dedupe ranking
func (m Mention) Engagement() int {
	e := 0
	if m.Score > 0 {
		e += m.Score
	}
	if !m.IsComment && m.NumComments > 0 {
		e += m.NumComments
	}
	return e
}

// References reports whether the mention names symbol
func (m Mention) References(symbol string) bool {
	for _, s := range m.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Window is the half-open interval [Start, End) that scopes one aggregation
type Window struct {
	Start         time.Time `json:"start_utc"`
	End           time.Time `json:"end_utc"`
	LookbackHours int       `json:"lookback_hours"`
}

// NewWindow builds the window ending at end and spanning lookbackHours (minimum 1h)
func NewWindow(end time.Time, lookbackHours int) Window {
	if lookbackHours < 1 {
		lookbackHours = 1
	}
	end = end.UTC()
	return Window{
		Start:         end.Add(-time.Duration(lookbackHours) * time.Hour),
		End:           end,
		LookbackHours: lookbackHours,
	}
}

// Contains reports start <= t < end
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns End - Start
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// ForSymbol returns the mentions that reference symbol, preserving order
func ForSymbol(mentions []Mention, symbol string) []Mention {
	out := make([]Mention, 0, len(mentions))
	for _, m := range mentions {
		if m.References(symbol) {
			out = append(out, m)
		}
	}
	return out
}

// Query scopes one fetch from the social-content client
type Query struct {
	Symbols    []string  `json:"symbols"`
	Subreddits []string  `json:"subreddits,omitempty"` // Empty = every community
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Limit      int       `json:"limit,omitempty"` // 0 = client default
}

// Matches reports whether rec was created in [From, To) in one of the queried communities
func (q Query) Matches(rec RawRecord) bool {
	at := rec.CreatedAt()
	if !q.From.IsZero() && at.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !at.Before(q.To) {
		return false
	}
	if len(q.Subreddits) == 0 {
		return true
	}
	for _, sub := range q.Subreddits {
		if strings.EqualFold(strings.TrimPrefix(sub, "r/"), rec.Subreddit) {
			return true
		}
	}
	return false
}
