package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/medprep/qbank/internal/qbank"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps domain sentinels to HTTP statuses. Unrecognized errors
// are logged and reported as a generic 500 so storage detail never leaks.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, qbank.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, qbank.ErrAlreadyAnswered):
		http.Error(w, "question already answered in this session", http.StatusConflict)
	case errors.Is(err, qbank.ErrConflict):
		http.Error(w, "session was modified concurrently, retry the request", http.StatusConflict)
	case errors.Is(err, qbank.ErrExpired):
		http.Error(w, "no active session", http.StatusGone)
	case errors.Is(err, qbank.ErrNoMatch):
		http.Error(w, "no questions match the selected filters; relax the category or status filter", http.StatusNotFound)
	case errors.Is(err, qbank.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		log.Printf("api: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

// parseIDList parses a comma-separated id list query value, e.g. "3,17,42".
func parseIDList(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || v <= 0 {
			return nil, qbank.ErrInvalidInput
		}
		out = append(out, v)
	}
	return out, nil
}
