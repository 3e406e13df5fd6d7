package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradeguard/internal/errs"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Server represents the JSON API server
type Server struct {
	router  *mux.Router
	server  *http.Server
	api     *Handlers
	health  *HealthHandler
	metrics http.Handler
	config  ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string        `yaml:"host" default:"127.0.0.1"` // Local-only by default
	Port           int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" default:"120s"` // Backtests can run long
	IdleTimeout    time.Duration `yaml:"idle_timeout" default:"60s"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"90s"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" default:"1048576"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "127.0.0.1",
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   120 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 90 * time.Second,
		MaxBodyBytes:   1 << 20,
	}
}

// Validate rejects timeouts the server cannot honor
func (c ServerConfig) Validate() error {
	switch {
	case c.Port < 1 || c.Port > 65535:
		return errs.Configf("server.port", "must be in [1,65535], got %d", c.Port)
	case c.ReadTimeout <= 0 || c.WriteTimeout <= 0:
		return errs.Configf("server.write_timeout", "read and write timeouts must be > 0")
	case c.RequestTimeout <= 0 || c.RequestTimeout > c.WriteTimeout:
		return errs.Configf("server.request_timeout", "must be in (0, write_timeout], got %s", c.RequestTimeout)
	case c.MaxBodyBytes < 1:
		return errs.Configf("server.max_body_bytes", "must be >= 1, got %d", c.MaxBodyBytes)
	}
	return nil
}

// Addr is host:port
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// NewServer wires routes; metrics may be nil to omit /metrics
func NewServer(config ServerConfig, svc Service, health *HealthHandler, metrics http.Handler) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, errs.Configf("server.service", "a service is required")
	}
	if health == nil {
		health = NewHealthHandler("dev")
	}

	s := &Server{
		router:  mux.NewRouter(),
		api:     NewHandlers(svc, config.MaxBodyBytes),
		health:  health,
		metrics: metrics,
		config:  config,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.Handle("/health", s.health).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.timeoutMiddleware)
	v1.Use(jsonContentTypeMiddleware)
	v1.HandleFunc("/sentiment", s.api.ScoreSentiment).Methods(http.MethodPost)
	v1.HandleFunc("/trending", s.api.TrendingTickers).Methods(http.MethodGet)
	v1.HandleFunc("/orders/evaluate", s.api.EvaluateOrder).Methods(http.MethodPost)
	v1.HandleFunc("/backtests", s.api.RunBacktest).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestIDMiddleware propagates X-Request-ID or assigns a new one
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned by the middleware, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestLoggingMiddleware logs all requests with structured format
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		event := log.Info()
		if wrapper.statusCode >= 500 {
			event = log.Warn()
		}
		event.
			Str("request_id", RequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// timeoutMiddleware bounds every service call
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// jsonContentTypeMiddleware sets JSON content type for API responses
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown; http.ErrServerClosed is not an error
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr()).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// responseWrapper captures HTTP status codes for logging
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
