package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/skupaj/internal/haul"
	"github.com/erazemk/skupaj/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response failed", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

type errorBody struct {
	Error           string           `json:"error"`
	Field           string           `json:"field,omitempty"`
	Available       *int             `json:"available,omitempty"`
	Requested       *int             `json:"requested,omitempty"`
	Current         *model.RunStatus `json:"current,omitempty"`
	Attempted       *model.RunStatus `json:"attempted,omitempty"`
	WindowExpiresAt *time.Time       `json:"window_expires_at,omitempty"`
}

// writeError maps a service error to its HTTP status and body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		verr  *model.ValidationError
		ferr  *model.ForbiddenError
		stock *model.InsufficientStockError
		trans *model.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		status, body.Error, body.Field = http.StatusUnprocessableEntity, verr.Message, verr.Field
	case errors.Is(err, haul.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.As(err, &ferr):
		status, body.Error, body.WindowExpiresAt = http.StatusForbidden, ferr.Reason, ferr.WindowExpiresAt
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &stock):
		status, body.Available, body.Requested = http.StatusConflict, &stock.Available, &stock.Requested
	case errors.As(err, &trans):
		status, body.Current, body.Attempted = http.StatusConflict, &trans.Current, &trans.Attempted
	case errors.Is(err, model.ErrAlreadyCompleted):
		status = http.StatusConflict
	case errors.Is(err, model.ErrConcurrencyConflict):
		status, body.Error = http.StatusServiceUnavailable, "the item is busy, please try again"
	case errors.Is(err, model.ErrExternalService):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
		if status == http.StatusInternalServerError {
			body = errorBody{Error: "internal error"}
		}
	}
	jsonResponse(w, status, body)
}
