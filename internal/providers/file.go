package providers

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradeguard/internal/application"
	"github.com/sawpanic/tradeguard/internal/backtest/walkforward"
	"github.com/sawpanic/tradeguard/internal/gates"
	"github.com/sawpanic/tradeguard/internal/social"
)

// readJSON decodes path into v. Missing or malformed files are permanent failures.
func readJSON(ctx context.Context, provider, path string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &ProviderError{
			Provider:  provider,
			Message:   "read " + path,
			Retryable: !errors.Is(err, os.ErrNotExist),
			Err:       err,
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &ProviderError{Provider: provider, Message: "decode " + path, Err: err}
	}
	return nil
}

// FileSocialSource serves RawRecords from a JSON array on disk
type FileSocialSource struct {
	path string
}

var _ application.SocialSource = (*FileSocialSource)(nil)

// NewFileSocialSource reads path on every fetch
func NewFileSocialSource(path string) *FileSocialSource {
	return &FileSocialSource{path: path}
}

// FetchRecords returns records matching q, newest first, truncated to q.Limit
func (s *FileSocialSource) FetchRecords(ctx context.Context, q social.Query) ([]social.RawRecord, error) {
	var all []social.RawRecord
	if err := readJSON(ctx, "social_file", s.path, &all); err != nil {
		return nil, err
	}

	out := make([]social.RawRecord, 0, len(all))
	for _, rec := range all {
		if q.Matches(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedUTC > out[j].CreatedUTC })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	log.Debug().
		Str("path", s.path).
		Int("total", len(all)).
		Int("matched", len(out)).
		Msg("Social records loaded")
	return out, nil
}

// FileAccountSource serves AccountFacts from a JSON object on disk
type FileAccountSource struct {
	path string
}

var _ application.AccountSource = (*FileAccountSource)(nil)

// NewFileAccountSource reads path on every call
func NewFileAccountSource(path string) *FileAccountSource {
	return &FileAccountSource{path: path}
}

// AccountFacts decodes the file
func (s *FileAccountSource) AccountFacts(ctx context.Context) (*gates.AccountFacts, error) {
	var facts gates.AccountFacts
	if err := readJSON(ctx, "account_file", s.path, &facts); err != nil {
		return nil, err
	}
	return &facts, nil
}

// FilePriceSource serves bars from a JSON object keyed by symbol
type FilePriceSource struct {
	path string
}

var _ application.PriceSource = (*FilePriceSource)(nil)

// NewFilePriceSource reads path on every call
func NewFilePriceSource(path string) *FilePriceSource {
	return &FilePriceSource{path: path}
}

// PriceHistory returns symbol's bars in [from, to), ascending
func (s *FilePriceSource) PriceHistory(ctx context.Context, symbol string, from, to time.Time) ([]walkforward.Bar, error) {
	var all map[string][]walkforward.Bar
	if err := readJSON(ctx, "price_file", s.path, &all); err != nil {
		return nil, err
	}

	var series []walkforward.Bar
	for sym, bars := range all {
		if strings.EqualFold(sym, symbol) {
			series = bars
			break
		}
	}

	out := make([]walkforward.Bar, 0, len(series))
	for _, b := range series {
		if !b.Time.Before(from) && b.Time.Before(to) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
