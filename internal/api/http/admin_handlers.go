package http

import (
	"net/http"

	"github.com/medprep/qbank/internal/audit"
	"github.com/medprep/qbank/internal/qbank"
)

// POST /api/admin/sweep  (admin). Manual trigger of the session sweep that
// otherwise runs on a ticker.
func SweepHandler(sessions qbank.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := sessions.Sweep(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// GET /api/admin/events?q=&limit=  (admin). Recent session lifecycle events.
func AuditSearchHandler(events *audit.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
		list, err := events.Search(r.Context(), q, limit)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"events": list})
	}
}
