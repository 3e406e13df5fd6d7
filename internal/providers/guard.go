package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/tradeguard/internal/errs"
)

// ProviderConfig holds the resilience settings for one collaborator
type ProviderConfig struct {
	Name                string        `yaml:"name"`
	SustainedRate       float64       `yaml:"sustained_rate" default:"5"`       // Requests per second
	BurstLimit          int           `yaml:"burst_limit" default:"10"`         // Token bucket burst
	Timeout             time.Duration `yaml:"timeout" default:"10s"`            // Per attempt
	MaxRetries          int           `yaml:"max_retries" default:"3"`          // Retry attempts after the first
	BackoffBase         time.Duration `yaml:"backoff_base" default:"200ms"`     // Doubled per retry
	BackoffMax          time.Duration `yaml:"backoff_max" default:"30s"`        // Cap on one wait
	FailureThresh       float64       `yaml:"failure_thresh" default:"0.5"`     // Failure ratio that trips the breaker
	WindowRequests      uint32        `yaml:"window_requests" default:"10"`     // Requests before the ratio counts
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"5"` // Trips regardless of ratio
	OpenTimeout         time.Duration `yaml:"open_timeout" default:"60s"`       // Open before half-open
	ProbeRequests       uint32        `yaml:"probe_requests" default:"1"`       // Allowed while half-open
	CountInterval       time.Duration `yaml:"count_interval" default:"60s"`     // Closed-state count reset
}

// DefaultProviderConfig returns resilience defaults for name
func DefaultProviderConfig(name string) ProviderConfig {
	return ProviderConfig{
		Name:                name,
		SustainedRate:       5,
		BurstLimit:          10,
		Timeout:             10 * time.Second,
		MaxRetries:          3,
		BackoffBase:         200 * time.Millisecond,
		BackoffMax:          30 * time.Second,
		FailureThresh:       0.5,
		WindowRequests:      10,
		ConsecutiveFailures: 5,
		OpenTimeout:         60 * time.Second,
		ProbeRequests:       1,
		CountInterval:       60 * time.Second,
	}
}

// Validate rejects settings the limiter or breaker cannot use
func (c ProviderConfig) Validate() error {
	field := "providers." + c.Name
	switch {
	case c.Name == "":
		return errs.Configf("providers.name", "must not be empty")
	case c.SustainedRate <= 0:
		return errs.Configf(field+".sustained_rate", "must be > 0, got %v", c.SustainedRate)
	case c.BurstLimit < 1:
		return errs.Configf(field+".burst_limit", "must be >= 1, got %d", c.BurstLimit)
	case c.Timeout <= 0:
		return errs.Configf(field+".timeout", "must be > 0, got %s", c.Timeout)
	case c.MaxRetries < 0 || c.MaxRetries > 10:
		return errs.Configf(field+".max_retries", "must be in [0,10], got %d", c.MaxRetries)
	case c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase:
		return errs.Configf(field+".backoff_base", "need 0 < base <= max, got %s/%s", c.BackoffBase, c.BackoffMax)
	case c.FailureThresh <= 0 || c.FailureThresh > 1:
		return errs.Configf(field+".failure_thresh", "must be in (0,1], got %v", c.FailureThresh)
	case c.ConsecutiveFailures < 1:
		return errs.Configf(field+".consecutive_failures", "must be >= 1, got %d", c.ConsecutiveFailures)
	case c.OpenTimeout <= 0:
		return errs.Configf(field+".open_timeout", "must be > 0, got %s", c.OpenTimeout)
	}
	return nil
}

// ProviderError represents provider-specific errors with retry guidance
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s error: %s (retry after %v)", e.Provider, msg, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s error: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt could succeed
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return errs.KindOf(err) == ""
}

// Observer receives one event per guarded call; metrics.Registry satisfies it
type Observer interface {
	ObserveProvider(provider, result string)
}

// Guard wraps collaborator calls with rate limiting, circuit breaking, timeouts and retries
type Guard struct {
	config   ProviderConfig
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewGuard validates config; observer may be nil
func NewGuard(config ProviderConfig, observer Observer) (*Guard, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	g := &Guard{
		config:   config,
		limiter:  rate.NewLimiter(rate.Limit(config.SustainedRate), config.BurstLimit),
		observer: observer,
		sleep:    sleepContext,
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:          config.Name,
		MaxRequests:   config.ProbeRequests,
		Interval:      config.CountInterval,
		Timeout:       config.OpenTimeout,
		ReadyToTrip:   g.readyToTrip,
		OnStateChange: g.stateChanged,
		IsSuccessful:  countsAsSuccess,
	})
	return g, nil
}

// Name is the provider label used in logs and metrics
func (g *Guard) Name() string {
	return g.config.Name
}

// Do runs fn until it succeeds, fails permanently, exhausts retries or the breaker opens
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := g.backoff(attempt, lastErr)
			log.Debug().
				Str("provider", g.config.Name).
				Int("attempt", attempt).
				Dur("backoff", wait).
				Err(lastErr).
				Msg("Retrying provider call")
			if err := g.sleep(ctx, wait); err != nil {
				g.observe("canceled")
				return err
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			g.observe("rate_limited")
			return &ProviderError{Provider: g.config.Name, Message: "rate limit wait aborted", Err: err}
		}

		_, err := g.breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
			defer cancel()
			return nil, fn(callCtx)
		})
		switch {
		case err == nil:
			g.observe("ok")
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			g.observe("circuit_open")
			return &ProviderError{Provider: g.config.Name, Message: "circuit breaker open", Err: err}
		case ctx.Err() != nil:
			g.observe("canceled")
			return ctx.Err()
		case !IsRetryable(err):
			g.observe("error")
			return err
		}
		lastErr = err
	}

	g.observe("exhausted")
	return &ProviderError{
		Provider: g.config.Name,
		Message:  fmt.Sprintf("gave up after %d attempts", g.config.MaxRetries+1),
		Err:      lastErr,
	}
}

// backoff doubles from BackoffBase, honoring a larger RetryAfter hint
func (g *Guard) backoff(attempt int, lastErr error) time.Duration {
	wait := g.config.BackoffBase << uint(attempt-1)
	if wait <= 0 || wait > g.config.BackoffMax {
		wait = g.config.BackoffMax
	}
	var pe *ProviderError
	if errors.As(lastErr, &pe) && pe.RetryAfter > wait {
		wait = min(pe.RetryAfter, g.config.BackoffMax)
	}
	return wait
}

func (g *Guard) readyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= g.config.ConsecutiveFailures {
		return true
	}
	if counts.Requests >= g.config.WindowRequests && counts.Requests > 0 {
		return float64(counts.TotalFailures)/float64(counts.Requests) >= g.config.FailureThresh
	}
	return false
}

func (g *Guard) stateChanged(name string, from, to gobreaker.State) {
	event := log.Info()
	if to == gobreaker.StateOpen {
		event = log.Warn()
	}
	event.Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
}

func (g *Guard) observe(result string) {
	if g.observer != nil {
		g.observer.ObserveProvider(g.config.Name, result)
	}
}

// Health reports the breaker state for /health
func (g *Guard) Health() ProviderHealth {
	counts := g.breaker.Counts()
	return ProviderHealth{
		Provider:            g.config.Name,
		State:               g.breaker.State().String(),
		CircuitOpen:         g.breaker.State() == gobreaker.StateOpen,
		Requests:            counts.Requests,
		ConsecutiveFailures: counts.ConsecutiveFailures,
	}
}

// ProviderHealth represents the health status of a provider
type ProviderHealth struct {
	Provider            string `json:"provider"`
	State               string `json:"state"`
	CircuitOpen         bool   `json:"circuit_open"`
	Requests            uint32 `json:"requests"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// countsAsSuccess keeps caller cancellations and permanent errors from tripping the breaker
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return !pe.Retryable && pe.StatusCode != 0 && pe.StatusCode < 500
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
