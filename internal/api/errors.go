package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/apresai/pitcharena/internal/auth"
	"github.com/apresai/pitcharena/internal/pitch"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Retryable bool           `json:"retryable,omitempty"`
	Fallback  *fallbackReply `json:"fallback,omitempty"`
}

// fallbackReply is shown in place of an investor turn when the generator is
// down. It is never persisted.
type fallbackReply struct {
	Content  string `json:"content"`
	Fallback bool   `json:"fallback"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		status int
		body   = errorBody{Error: err.Error()}
	)
	switch {
	case errors.Is(err, pitch.ErrInvalidInput):
		status, body.Code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, pitch.ErrSessionTerminal):
		status, body.Code = http.StatusConflict, "session_terminal"
	case errors.Is(err, pitch.ErrNotFound):
		status, body.Code = http.StatusNotFound, "session_not_found"
	case errors.Is(err, pitch.ErrPersonaNotFound):
		status, body.Code = http.StatusNotFound, "persona_not_found"
	case errors.Is(err, pitch.ErrGeneratorUnavailable):
		status, body.Code = http.StatusServiceUnavailable, "generator_unavailable"
		body.Retryable = true
		body.Fallback = &fallbackReply{Content: pitch.ApologyText, Fallback: true}
	case errors.Is(err, pitch.ErrConflict):
		status, body.Code = http.StatusConflict, "conflict"
		body.Retryable = true
	case errors.Is(err, auth.ErrNotConfigured):
		status, body.Code = http.StatusForbidden, "admin_disabled"
	case errors.Is(err, auth.ErrUnauthorized):
		status, body.Code = http.StatusUnauthorized, "unauthorized"
	default:
		status, body.Code = http.StatusInternalServerError, "internal"
		body.Error = "internal server error"
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.WarnContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", pitch.ErrInvalidInput, err)
	}
	return nil
}
