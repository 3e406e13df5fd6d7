package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradeguard/internal/backtest/walkforward"
	"github.com/sawpanic/tradeguard/internal/gates"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
)

const namespace = "tradeguard"

// Registry holds every tradeguard metric on its own prometheus.Registry
type Registry struct {
	reg *prometheus.Registry

	Snapshots          *prometheus.CounterVec
	MentionsDropped    *prometheus.CounterVec
	SentimentScore     *prometheus.GaugeVec
	Confidence         *prometheus.HistogramVec
	Decisions          *prometheus.CounterVec
	GuardrailFailures  *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	ProviderRequests   *prometheus.CounterVec
	BacktestRuns       *prometheus.CounterVec
	BacktestBestSharpe prometheus.Gauge
}

// NewRegistry creates and registers all metrics; withRuntime adds Go and process collectors
func NewRegistry(withRuntime bool) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_total",
				Help:      "Sentiment snapshots scored by hype risk",
			},
			[]string{"hype_risk"},
		),

		MentionsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mentions_dropped_total",
				Help:      "Mentions removed by the manipulation filter, by rule",
			},
			[]string{"rule"},
		),

		SentimentScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sentiment_score",
				Help:      "Latest sentiment score per symbol (-1 to 1)",
			},
			[]string{"symbol"},
		),

		Confidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_confidence",
				Help:      "Distribution of snapshot confidence",
				Buckets:   []float64{0.1, 0.2, 0.25, 0.3, 0.4, 0.45, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"method"},
		),

		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Pre-trade decisions by outcome",
			},
			[]string{"outcome"},
		),

		GuardrailFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guardrail_failures_total",
				Help:      "Failed hard guardrails by check",
			},
			[]string{"check"},
		),

		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of service operations in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"operation", "result"},
		),

		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Collaborator calls by provider and result",
			},
			[]string{"provider", "result"},
		),

		BacktestRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backtest_runs_total",
				Help:      "Completed backtest runs by mode",
			},
			[]string{"mode"},
		),

		BacktestBestSharpe: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backtest_best_sharpe",
				Help:      "Sharpe ratio of the top-ranked grid point in the latest run",
			},
		),
	}

	r.reg.MustRegister(
		r.Snapshots,
		r.MentionsDropped,
		r.SentimentScore,
		r.Confidence,
		r.Decisions,
		r.GuardrailFailures,
		r.OperationDuration,
		r.ProviderRequests,
		r.BacktestRuns,
		r.BacktestBestSharpe,
	)
	if withRuntime {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveSnapshot records one scored snapshot and its filter drops
func (r *Registry) ObserveSnapshot(snap *sentiment.Snapshot) {
	if snap == nil {
		return
	}
	r.Snapshots.WithLabelValues(string(snap.HypeRisk)).Inc()
	r.SentimentScore.WithLabelValues(snap.Symbol).Set(snap.SentimentScore)
	r.Confidence.WithLabelValues(snap.Method).Observe(snap.Confidence)

	q := snap.Quality
	for rule, n := range map[string]int{
		"deleted":    q.DroppedDeleted,
		"short":      q.DroppedShort,
		"ring":       q.DroppedRing,
		"author_cap": q.DroppedAuthorCap,
	} {
		if n > 0 {
			r.MentionsDropped.WithLabelValues(rule).Add(float64(n))
		}
	}
}

// ObserveDecision records the outcome and every failed hard check
func (r *Registry) ObserveDecision(d *gates.Decision) {
	if d == nil {
		return
	}
	r.Decisions.WithLabelValues(string(d.Outcome)).Inc()
	for _, name := range d.HardFailures() {
		r.GuardrailFailures.WithLabelValues(name).Inc()
	}
}

// ObserveBacktest records a completed run
func (r *Registry) ObserveBacktest(run *walkforward.Run) {
	if run == nil {
		return
	}
	r.BacktestRuns.WithLabelValues(string(run.Mode)).Inc()
	if best, ok := run.Best(); ok {
		r.BacktestBestSharpe.Set(best.Metrics.Sharpe)
	}
}

// ObserveDuration records one operation's latency
func (r *Registry) ObserveDuration(operation, result string, d time.Duration) {
	r.OperationDuration.WithLabelValues(operation, result).Observe(d.Seconds())
}

// ObserveProvider counts one collaborator call
func (r *Registry) ObserveProvider(provider, result string) {
	r.ProviderRequests.WithLabelValues(provider, result).Inc()
}

// Timer tracks execution time for one operation
type Timer struct {
	registry  *Registry
	operation string
	start     time.Time
}

// StartTimer begins timing operation
func (r *Registry) StartTimer(operation string) *Timer {
	return &Timer{registry: r, operation: operation, start: time.Now()}
}

// Stop records the elapsed time under result
func (t *Timer) Stop(result string) time.Duration {
	elapsed := time.Since(t.start)
	t.registry.ObserveDuration(t.operation, result, elapsed)

	log.Debug().
		Str("operation", t.operation).
		Str("result", result).
		Dur("duration", elapsed).
		Msg("Operation completed")
	return elapsed
}
