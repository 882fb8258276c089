package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	authmw "github.com/medprep/qbank/internal/auth/middleware"
	"github.com/medprep/qbank/internal/qbank"
)

// POST /api/sessions  { "categories": [..], "status_filter": "...", "mode": "practice|mock" }
func StartSessionHandler(engine *qbank.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req qbank.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		userID := authmw.SubjectFromContext(r.Context())
		tier := qbank.Tier(authmw.TierFromContext(r.Context()))
		res, err := engine.Start(r.Context(), userID, tier, req)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, res)
	}
}

// POST /api/sessions/new deactivates every active session first.
func StartNewSessionHandler(engine *qbank.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req qbank.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		userID := authmw.SubjectFromContext(r.Context())
		tier := qbank.Tier(authmw.TierFromContext(r.Context()))
		res, err := engine.StartNew(r.Context(), userID, tier, req)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, res)
	}
}

func ListSessionsHandler(engine *qbank.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		list, err := engine.ListSessions(r.Context(), userID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": list})
	}
}

// GET /api/sessions/resume?session_id=...  Without session_id the most
// recently updated active session is resumed.
func ResumeSessionHandler(engine *qbank.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		sessionID := r.URL.Query().Get("session_id")
		res, err := engine.Resume(r.Context(), userID, sessionID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// POST /api/sessions/{sessionID}/navigate  { "target_index": n }
func NavigateHandler(engine *qbank.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TargetIndex *int `json:"target_index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetIndex == nil {
			http.Error(w, "target_index required", http.StatusBadRequest)
			return
		}
		userID := authmw.SubjectFromContext(r.Context())
		res, err := engine.Navigate(r.Context(), userID, chi.URLParam(r, "sessionID"), *req.TargetIndex)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// POST /api/sessions/{sessionID}/answers  { "question_id": n, "answer_index": n }
func SubmitAnswerHandler(engine *qbank.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID  int64 `json:"question_id"`
			AnswerIndex *int  `json:"answer_index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AnswerIndex == nil {
			http.Error(w, "question_id and answer_index required", http.StatusBadRequest)
			return
		}
		userID := authmw.SubjectFromContext(r.Context())
		res, err := engine.Submit(r.Context(), userID, chi.URLParam(r, "sessionID"), req.QuestionID, *req.AnswerIndex)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// POST /api/sessions/{sessionID}/finish grades mock sessions and tallies
// practice sessions; either way the session is deactivated.
func FinishSessionHandler(engine *qbank.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		res, err := engine.Finish(r.Context(), userID, chi.URLParam(r, "sessionID"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// DELETE /api/sessions/{sessionID} closes without grading.
func CloseSessionHandler(engine *qbank.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		if err := engine.Close(r.Context(), userID, chi.URLParam(r, "sessionID")); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	}
}

// GET /api/questions/{questionID}/distribution
func DistributionHandler(analytics *qbank.Analytics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qid, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
		if err != nil || qid <= 0 {
			http.Error(w, "bad question id", http.StatusBadRequest)
			return
		}
		dist, err := analytics.Distribution(r.Context(), qid)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, dist)
	}
}
