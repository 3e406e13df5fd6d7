package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradeguard/internal/baseline"
)

// Config holds the Redis connection settings for the shared baseline store
type Config struct {
	Addr        string        `yaml:"addr" default:"localhost:6379"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db" validate:"gte=0"`
	Prefix      string        `yaml:"prefix" default:"tradeguard"`
	PoolSize    int           `yaml:"pool_size" default:"10" validate:"gte=1"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	MaxRetries  int           `yaml:"max_retries" default:"5" validate:"gte=1"` // Optimistic transaction attempts
	Enabled     bool          `yaml:"enabled"`
}

// DefaultConfig returns local defaults with the store disabled
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		Prefix:      "tradeguard",
		PoolSize:    10,
		DialTimeout: 5 * time.Second,
		MaxRetries:  5,
	}
}

// Open creates a client and verifies connectivity
func Open(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// BaselineStore implements baseline.Store on Redis. Each symbol is one JSON value;
// updates run under WATCH/MULTI so concurrent writers retry instead of interleaving.
type BaselineStore struct {
	client     goredis.UniversalClient
	prefix     string
	maxRetries int
}

var _ baseline.Store = (*BaselineStore)(nil)

// NewBaselineStore wraps client; keys are "<prefix>:baseline:<SYMBOL>"
func NewBaselineStore(client goredis.UniversalClient, cfg Config) *BaselineStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "tradeguard"
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &BaselineStore{client: client, prefix: cfg.Prefix, maxRetries: cfg.MaxRetries}
}

// Key is the value key for symbol
func (s *BaselineStore) Key(symbol string) string {
	return s.prefix + ":baseline:" + symbol
}

// IndexKey is the set of symbols with a stored baseline
func (s *BaselineStore) IndexKey() string {
	return s.prefix + ":baseline:symbols"
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (s *BaselineStore) read(ctx context.Context, g getter, symbol string) (baseline.Baseline, error) {
	data, err := g.Get(ctx, s.Key(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return baseline.Baseline{Symbol: symbol}, nil
		}
		return baseline.Baseline{}, fmt.Errorf("failed to read baseline %s: %w", symbol, err)
	}
	var b baseline.Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return baseline.Baseline{}, fmt.Errorf("failed to decode baseline %s: %w", symbol, err)
	}
	return b, nil
}

// Load returns the symbol's baseline; unknown symbols yield an empty one
func (s *BaselineStore) Load(ctx context.Context, symbol string) (baseline.Baseline, error) {
	return s.read(ctx, s.client, symbol)
}

// Observe merges one Window's count into the stored baseline atomically
func (s *BaselineStore) Observe(ctx context.Context, symbol string, obs baseline.Observation, baselineDays int) (baseline.Baseline, error) {
	return s.update(ctx, symbol, func(cur baseline.Baseline) (baseline.Baseline, error) {
		return baseline.Apply(cur, obs, baselineDays)
	})
}

// Rebuild replaces the stored history, keeping the version monotonic
func (s *BaselineStore) Rebuild(ctx context.Context, symbol string, history []baseline.Observation, baselineDays int) (baseline.Baseline, error) {
	return s.update(ctx, symbol, func(cur baseline.Baseline) (baseline.Baseline, error) {
		rebuilt, err := baseline.FromHistory(symbol, history, baseline.LatestEnd(history), baselineDays)
		if err != nil {
			return cur, err
		}
		rebuilt.Version = cur.Version + 1
		return rebuilt, nil
	})
}

func (s *BaselineStore) update(ctx context.Context, symbol string, apply func(baseline.Baseline) (baseline.Baseline, error)) (baseline.Baseline, error) {
	key := s.Key(symbol)

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var cur, next baseline.Baseline
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			var err error
			if cur, err = s.read(ctx, tx, symbol); err != nil {
				return err
			}
			if next, err = apply(cur); err != nil {
				return err
			}
			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to encode baseline %s: %w", symbol, err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, string(data), 0)
				pipe.SAdd(ctx, s.IndexKey(), symbol)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, goredis.TxFailedErr):
			log.Debug().Str("symbol", symbol).Int("attempt", attempt).Msg("Baseline update conflicted, retrying")
			continue
		default:
			return cur, err
		}
	}
	return baseline.Baseline{}, fmt.Errorf("baseline update for %s aborted after %d conflicting attempts", symbol, s.maxRetries)
}

// Freeze reads every indexed baseline into an independent map
func (s *BaselineStore) Freeze(ctx context.Context) (map[string]baseline.Baseline, error) {
	symbols, err := s.client.SMembers(ctx, s.IndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list baselines: %w", err)
	}
	sort.Strings(symbols)

	out := make(map[string]baseline.Baseline, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = s.Key(sym)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read baselines: %w", err)
	}

	for i, sym := range symbols {
		raw, ok := values[i].(string)
		if !ok {
			out[sym] = baseline.Baseline{Symbol: sym}
			continue
		}
		var b baseline.Baseline
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return nil, fmt.Errorf("failed to decode baseline %s: %w", sym, err)
		}
		out[sym] = b
	}
	return out, nil
}
