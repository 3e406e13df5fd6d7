package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sawpanic/tradeguard/internal/application"
	"github.com/sawpanic/tradeguard/internal/errs"
)

// Service is the facade the API exposes; *application.Service satisfies it
type Service interface {
	ScoreSentiment(ctx context.Context, req application.SentimentRequest) (application.SentimentResponse, error)
	TrendingTickers(ctx context.Context, req application.TrendingRequest) (application.TrendingResponse, error)
	EvaluateOrder(ctx context.Context, req application.OrderRequest) (application.OrderResponse, error)
	RunBacktest(ctx context.Context, req application.BacktestRequest) (application.BacktestResponse, error)
}

var _ Service = (*application.Service)(nil)

// Handlers decodes requests, calls the service and writes its response with a status for the error kind
type Handlers struct {
	svc     Service
	maxBody int64
}

// NewHandlers creates the API handlers
func NewHandlers(svc Service, maxBody int64) *Handlers {
	return &Handlers{svc: svc, maxBody: maxBody}
}

// ScoreSentiment handles POST /v1/sentiment
func (h *Handlers) ScoreSentiment(w http.ResponseWriter, r *http.Request) {
	var req application.SentimentRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, _ := h.svc.ScoreSentiment(r.Context(), req)
	writeJSON(w, StatusFor(resp.Error), resp)
}

// TrendingTickers handles GET /v1/trending?subreddits=a,b&lookback_hours=&min_mentions=&limit=
func (h *Handlers) TrendingTickers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := application.TrendingRequest{}
	if subs := strings.TrimSpace(q.Get("subreddits")); subs != "" {
		req.Subreddits = strings.Split(subs, ",")
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"lookback_hours", &req.LookbackHours},
		{"min_mentions", &req.MinMentions},
		{"limit", &req.Limit},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, errs.InputError{Field: p.name, Reason: "must be a non-negative integer"})
			return
		}
		*p.dst = n
	}

	resp, _ := h.svc.TrendingTickers(r.Context(), req)
	writeJSON(w, StatusFor(resp.Error), resp)
}

// EvaluateOrder handles POST /v1/orders/evaluate. A deny is a 200 with the decision.
func (h *Handlers) EvaluateOrder(w http.ResponseWriter, r *http.Request) {
	var req application.OrderRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, _ := h.svc.EvaluateOrder(r.Context(), req)
	writeJSON(w, StatusFor(resp.Error), resp)
}

// RunBacktest handles POST /v1/backtests
func (h *Handlers) RunBacktest(w http.ResponseWriter, r *http.Request) {
	var req application.BacktestRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, _ := h.svc.RunBacktest(r.Context(), req)
	writeJSON(w, StatusFor(resp.Error), resp)
}

// decode reads one JSON object, rejecting unknown fields and oversized bodies
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errs.InputError{Field: "body", Reason: "empty request body"}
		case errors.As(err, &tooLarge):
			return errs.InputError{Field: "body", Reason: "request body too large"}
		default:
			return errs.InputError{Field: "body", Reason: err.Error()}
		}
	}
	return nil
}
