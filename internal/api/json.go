package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/funmi/casi-export/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
	// Period is set for errors tied to one period.
	Period string `json:"period,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps export errors onto status codes. Only invalid input and
// configuration errors echo their message; anything unexpected is logged
// and reported as an internal error.
func writeError(w http.ResponseWriter, period string, err error) {
	body := errResponse{Error: err.Error(), Period: period}
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, apperr.ErrNotFound):
		body.Error = "export not found"
		writeJSON(w, http.StatusNotFound, body)
	case errors.Is(err, apperr.ErrLeaseHeld):
		body.Error = "rebuild already running for period"
		writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, apperr.ErrConfig):
		writeJSON(w, http.StatusPreconditionFailed, body)
	default:
		slog.Error("export request failed", slog.String("period", period), slog.String("error", err.Error()))
		body.Error = "internal error"
		writeJSON(w, http.StatusInternalServerError, body)
	}
}
