package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	authmw "github.com/medprep/qbank/internal/auth/middleware"
	"github.com/medprep/qbank/internal/qbank"
)

// GET /api/review/incorrect?categories=3,17
func IncorrectQuestionsHandler(analytics *qbank.Analytics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categoryIDs, err := parseIDList(r.URL.Query().Get("categories"))
		if err != nil {
			http.Error(w, "bad categories parameter", http.StatusBadRequest)
			return
		}
		userID := authmw.SubjectFromContext(r.Context())
		list, err := analytics.IncorrectQuestions(r.Context(), userID, categoryIDs)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"questions": list})
	}
}

// GET /api/review/questions/{questionID}
func ReviewQuestionHandler(analytics *qbank.Analytics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qid, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
		if err != nil || qid <= 0 {
			http.Error(w, "bad question id", http.StatusBadRequest)
			return
		}
		userID := authmw.SubjectFromContext(r.Context())
		detail, err := analytics.ReviewQuestion(r.Context(), userID, qid)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, detail)
	}
}

// POST /api/progress/reset wipes the caller's attempt history.
func ResetProgressHandler(progress qbank.ProgressLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		if err := progress.Reset(r.Context(), userID); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}
