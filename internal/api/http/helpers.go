package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/examdesk/examdesk/internal/attempt"
	"github.com/examdesk/examdesk/internal/examdef"
	"github.com/examdesk/examdesk/internal/question"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the domain error taxonomy onto HTTP once, here. Expected
// outcomes (pool too small, attempt already completed) are 4xx and are not
// server faults; anything unrecognized is a storage failure.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attempt.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errBody("invalid_request", err))
	case errors.Is(err, question.ErrInsufficientPool):
		writeJSON(w, http.StatusBadRequest, errBody("insufficient_pool", err))
	case errors.Is(err, attempt.ErrNotActive):
		writeJSON(w, http.StatusConflict, errBody("attempt_not_active", err))
	case errors.Is(err, attempt.ErrNotFound), errors.Is(err, examdef.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody("not_found", err))
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "storage_failure",
		})
	}
}

func errBody(code string, err error) map[string]string {
	return map[string]string{"error": code, "detail": err.Error()}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
