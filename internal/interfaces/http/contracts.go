package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradeguard/internal/application"
	"github.com/sawpanic/tradeguard/internal/errs"
)

// ErrorResponse is the body for failures that never reached the service
type ErrorResponse struct {
	Error     *application.ErrorBody `json:"error"`
	RequestID string                 `json:"request_id,omitempty"`
}

// StatusFor maps an error kind to its HTTP status; nil is 200
func StatusFor(body *application.ErrorBody) int {
	if body == nil {
		return http.StatusOK
	}
	switch body.Kind {
	case errs.KindInput:
		return http.StatusBadRequest
	case errs.KindConfiguration, errs.KindInsufficientData:
		return http.StatusUnprocessableEntity
	case errs.KindGuardrail:
		return http.StatusForbidden
	case application.KindUpstream:
		return http.StatusBadGateway
	case application.KindTimeout:
		return http.StatusGatewayTimeout
	case application.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := application.NewErrorBody(err)
	writeJSON(w, StatusFor(body), ErrorResponse{Error: body, RequestID: RequestID(r.Context())})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error:     &application.ErrorBody{Kind: errs.KindInput, Message: "no route for " + r.URL.Path},
		RequestID: RequestID(r.Context()),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error:     &application.ErrorBody{Kind: errs.KindInput, Message: r.Method + " not allowed on " + r.URL.Path},
		RequestID: RequestID(r.Context()),
	})
}
