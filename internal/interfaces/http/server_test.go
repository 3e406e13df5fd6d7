package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tradeguard/internal/application"
	"github.com/sawpanic/tradeguard/internal/errs"
	"github.com/sawpanic/tradeguard/internal/gates"
	"github.com/sawpanic/tradeguard/internal/persistence"
	"github.com/sawpanic/tradeguard/internal/providers"
	"github.com/sawpanic/tradeguard/internal/score/sentiment"
)

type fakeService struct {
	sentimentReq application.SentimentRequest
	trendingReq  application.TrendingRequest
	orderReq     application.OrderRequest
	err          error
}

func (f *fakeService) ScoreSentiment(ctx context.Context, req application.SentimentRequest) (application.SentimentResponse, error) {
	f.sentimentReq = req
	resp := application.SentimentResponse{Method: sentiment.MethodRedditV1, Summary: "ok"}
	resp.Error = application.NewErrorBody(f.err)
	return resp, f.err
}

func (f *fakeService) TrendingTickers(ctx context.Context, req application.TrendingRequest) (application.TrendingResponse, error) {
	f.trendingReq = req
	return application.TrendingResponse{Summary: "No trending tickers."}, nil
}

func (f *fakeService) EvaluateOrder(ctx context.Context, req application.OrderRequest) (application.OrderResponse, error) {
	f.orderReq = req
	return application.OrderResponse{
		Decision: gates.Decision{Outcome: gates.OutcomeDeny, Summary: "denied"},
		Summary:  "denied",
	}, nil
}

func (f *fakeService) RunBacktest(ctx context.Context, req application.BacktestRequest) (application.BacktestResponse, error) {
	if ctx.Err() != nil {
		return application.BacktestResponse{Error: application.NewErrorBody(ctx.Err())}, ctx.Err()
	}
	return application.BacktestResponse{Summary: "done"}, nil
}

type fakeRepo struct{ healthy bool }

func (r fakeRepo) Health(ctx context.Context) persistence.HealthCheck {
	return persistence.HealthCheck{Healthy: r.healthy}
}
func (r fakeRepo) Ping(ctx context.Context) error                   { return nil }
func (r fakeRepo) Stats(ctx context.Context) map[string]interface{} { return nil }

func newTestServer(t *testing.T, svc Service, health *HealthHandler) *Server {
	t.Helper()
	s, err := NewServer(DefaultServerConfig(), svc, health, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	}))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ServerConfig)
		field  string
	}{
		{"defaults", nil, ""},
		{"port zero", func(c *ServerConfig) { c.Port = 0 }, "server.port"},
		{"request outlives write", func(c *ServerConfig) { c.RequestTimeout = c.WriteTimeout * 2 }, "server.request_timeout"},
		{"no body", func(c *ServerConfig) { c.MaxBodyBytes = 0 }, "server.max_body_bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ce errs.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestNewServer_RequiresService(t *testing.T) {
	_, err := NewServer(DefaultServerConfig(), nil, nil, nil)
	assert.True(t, errs.IsConfiguration(err))
}

func TestScoreSentiment_DecodesAndEchoesRequestID(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(t, svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/sentiment", strings.NewReader(`{"symbols":["GME","$amc"],"lookback_hours":12}`))
	req.Header.Set("X-Request-ID", "abc123")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "abc123", rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, []string{"GME", "$amc"}, svc.sentimentReq.Symbols)
	assert.Equal(t, 12, svc.sentimentReq.LookbackHours)

	var resp application.SentimentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, sentiment.MethodRedditV1, resp.Method)
	assert.Nil(t, resp.Error)
}

func TestScoreSentiment_ErrorKindSetsStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   errs.Kind
	}{
		{"input", errs.InputError{Field: "symbols", Reason: "no valid symbols"}, http.StatusBadRequest, errs.KindInput},
		{"configuration", errs.Configf("providers.social", "not configured"), http.StatusUnprocessableEntity, errs.KindConfiguration},
		{"upstream", errors.New("reddit 503"), http.StatusBadGateway, application.KindUpstream},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, application.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeService{err: tt.err}, nil)
			rr := do(t, s, http.MethodPost, "/v1/sentiment", `{"symbols":["GME"]}`)
			assert.Equal(t, tt.status, rr.Code)

			var resp application.SentimentResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.kind, resp.Error.Kind)
		})
	}
}

func TestDecode_RejectsBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"malformed", `{"symbols":`},
		{"unknown field", `{"symbols":["GME"],"subs":["stocks"]}`},
		{"too large", `{"symbols":["` + strings.Repeat("A", 2<<20) + `"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeService{}, nil)
			rr := do(t, s, http.MethodPost, "/v1/sentiment", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, errs.KindInput, resp.Error.Kind)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestTrendingTickers_QueryParams(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(t, svc, nil)

	rr := do(t, s, http.MethodGet, "/v1/trending?subreddits=stocks,options&min_mentions=5&limit=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"stocks", "options"}, svc.trendingReq.Subreddits)
	assert.Equal(t, 5, svc.trendingReq.MinMentions)
	assert.Equal(t, 10, svc.trendingReq.Limit)

	rr = do(t, s, http.MethodGet, "/v1/trending?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEvaluateOrder_DenyIsOK(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(t, svc, nil)

	rr := do(t, s, http.MethodPost, "/v1/orders/evaluate", `{"order":{"symbol":"GME","side":"buy","quantity":10,"limit_price":25}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "GME", svc.orderReq.Order.Symbol)

	var resp application.OrderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, gates.OutcomeDeny, resp.Decision.Outcome)
	assert.Equal(t, "denied", resp.Summary)
}

func TestRoutes_NotFoundAndMethod(t *testing.T) {
	s := newTestServer(t, &fakeService{}, nil)

	rr := do(t, s, http.MethodGet, "/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, s, http.MethodGet, "/v1/sentiment", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "# metrics")
}

func TestBacktest_RoundTrip(t *testing.T) {
	s := newTestServer(t, &fakeService{}, nil)
	body, err := json.Marshal(application.BacktestRequest{Symbols: []string{"MSFT"}})
	require.NoError(t, err)

	rr := do(t, s, http.MethodPost, "/v1/backtests", string(bytes.TrimSpace(body)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"summary":"done"`)
}

func TestHealth_Statuses(t *testing.T) {
	guard, err := providers.NewGuard(providers.DefaultProviderConfig("social"), nil)
	require.NoError(t, err)

	healthy := NewHealthHandler("test").
		AddRepository("postgres", fakeRepo{healthy: true}).
		AddCheck("redis", func(ctx context.Context) error { return nil }).
		AddProvider(guard)
	rr := do(t, newTestServer(t, &fakeService{}, healthy), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "test", resp.Version)
	require.Len(t, resp.Providers, 1)
	assert.Equal(t, "social", resp.Providers[0].Provider)
	assert.Equal(t, "pass", resp.Checks["redis"].Status)
	assert.NotEmpty(t, resp.System.GoVersion)

	sick := NewHealthHandler("test").
		AddRepository("postgres", fakeRepo{healthy: false}).
		AddCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") })
	rr = do(t, newTestServer(t, &fakeService{}, sick), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"].Message)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusFor(nil))
	assert.Equal(t, http.StatusForbidden, StatusFor(&application.ErrorBody{Kind: errs.KindGuardrail}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(&application.ErrorBody{Kind: errs.KindInvariant}))
	assert.Equal(t, http.StatusRequestTimeout, StatusFor(&application.ErrorBody{Kind: application.KindCanceled}))
}
