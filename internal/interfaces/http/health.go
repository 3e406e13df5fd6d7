package http

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sawpanic/tradeguard/internal/persistence"
	"github.com/sawpanic/tradeguard/internal/providers"
)

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ProviderHealthSource is satisfied by *providers.Guard
type ProviderHealthSource interface {
	Health() providers.ProviderHealth
}

// HealthHandler provides system health status endpoint
type HealthHandler struct {
	mu           sync.RWMutex
	repositories map[string]persistence.RepositoryHealth
	checks       map[string]func(ctx context.Context) error
	providers    []ProviderHealthSource
	startTime    time.Time
	version      string
	timeout      time.Duration
}

// NewHealthHandler creates a health handler with nothing registered
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		repositories: make(map[string]persistence.RepositoryHealth),
		checks:       make(map[string]func(ctx context.Context) error),
		startTime:    time.Now(),
		version:      version,
		timeout:      3 * time.Second,
	}
}

// AddRepository registers a storage backend; an unhealthy one makes the service unhealthy
func (h *HealthHandler) AddRepository(name string, repo persistence.RepositoryHealth) *HealthHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.repositories[name] = repo
	return h
}

// AddCheck registers a named probe; a failing probe makes the service unhealthy
func (h *HealthHandler) AddCheck(name string, check func(ctx context.Context) error) *HealthHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
	return h
}

// AddProvider registers a guarded collaborator; an open breaker degrades the service
func (h *HealthHandler) AddProvider(p ProviderHealthSource) *HealthHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.providers = append(h.providers, p)
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                             `json:"status"`
	Timestamp time.Time                          `json:"timestamp"`
	Uptime    string                             `json:"uptime"`
	Version   string                             `json:"version"`
	System    SystemInfo                         `json:"system"`
	Storage   map[string]persistence.HealthCheck `json:"storage"`
	Providers []providers.ProviderHealth         `json:"providers"`
	Checks    map[string]CheckResult             `json:"checks"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// CheckResult represents individual health check results
type CheckResult struct {
	Status   string `json:"status"` // "pass" or "fail"
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration"`
}

// ServeHTTP implements the health check endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := h.Gather(r.Context())
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	status := http.StatusOK
	if response.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// Gather collects all health information
func (h *HealthHandler) Gather(ctx context.Context) HealthResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	response := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version,
		System:    systemInfo(),
		Storage:   make(map[string]persistence.HealthCheck, len(h.repositories)),
		Providers: make([]providers.ProviderHealth, 0, len(h.providers)),
		Checks:    make(map[string]CheckResult, len(h.checks)),
	}

	for name, repo := range h.repositories {
		check := repo.Health(ctx)
		response.Storage[name] = check
		if !check.Healthy {
			response.Status = StatusUnhealthy
		}
	}

	for name, probe := range h.checks {
		start := time.Now()
		result := CheckResult{Status: "pass"}
		if err := probe(ctx); err != nil {
			result = CheckResult{Status: "fail", Message: err.Error()}
			response.Status = StatusUnhealthy
		}
		result.Duration = time.Since(start).String()
		response.Checks[name] = result
	}

	for _, p := range h.providers {
		ph := p.Health()
		response.Providers = append(response.Providers, ph)
		if ph.CircuitOpen && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}
	sort.Slice(response.Providers, func(i, j int) bool {
		return response.Providers[i].Provider < response.Providers[j].Provider
	})

	return response
}

func systemInfo() SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		MemAlloc:      memStats.Alloc,
		NumGC:         memStats.NumGC,
	}
}
