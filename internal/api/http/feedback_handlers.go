package http

import (
	"encoding/json"
	"net/http"

	authmw "github.com/medprep/qbank/internal/auth/middleware"
	"github.com/medprep/qbank/internal/qbank"
)

// POST /api/feedback  { "question_id": n, "feedback_text": "..." }
func SubmitFeedbackHandler(feedback qbank.FeedbackRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID int64  `json:"question_id"`
			Text       string `json:"feedback_text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		userID := authmw.SubjectFromContext(r.Context())
		if err := feedback.AddFeedback(r.Context(), userID, req.QuestionID, req.Text); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]string{"status": "received"})
	}
}

// GET /api/feedback?limit=&offset=  (admin)
func ListFeedbackHandler(feedback qbank.FeedbackRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
		list, err := feedback.ListFeedback(r.Context(), limit, offset)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"feedback": list})
	}
}
