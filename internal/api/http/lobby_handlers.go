package http

import (
	"net/http"

	authmw "github.com/medprep/qbank/internal/auth/middleware"
	"github.com/medprep/qbank/internal/qbank"
)

// lobbyPayload is the single bootstrap response the client renders the home
// screen from.
type lobbyPayload struct {
	CategoryTree         []*qbank.CategoryNode  `json:"category_tree"`
	TotalQuestions       int                    `json:"total_questions"`
	LifetimeStats        qbank.LifetimeStats    `json:"lifetime_stats"`
	Heatmap              []qbank.HeatmapDay     `json:"heatmap"`
	ActiveSessions       []qbank.SessionSummary `json:"active_sessions"`
	SessionStats         qbank.SessionStats     `json:"session_stats"`
	AllQuestionsAnswered bool                   `json:"all_questions_answered"`
}

// GET /api/lobby
func LobbyHandler(engine *qbank.Engine, tree *qbank.TreeBuilder, analytics *qbank.Analytics, questions qbank.QuestionRepo, progress qbank.ProgressLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := authmw.SubjectFromContext(ctx)
		tier := qbank.Tier(authmw.TierFromContext(ctx))

		nodes, err := tree.Build(ctx, userID, tier)
		if err != nil {
			respondError(w, err)
			return
		}
		total, err := questions.CountQuestions(ctx, tier)
		if err != nil {
			respondError(w, err)
			return
		}
		lifetime, err := progress.LifetimeStats(ctx, userID, tier)
		if err != nil {
			respondError(w, err)
			return
		}
		heatmap, err := analytics.Heatmap(ctx, userID, 0)
		if err != nil {
			respondError(w, err)
			return
		}
		sessions, err := engine.ListSessions(ctx, userID)
		if err != nil {
			respondError(w, err)
			return
		}
		stats, err := engine.SessionStats(ctx, userID)
		if err != nil {
			respondError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, lobbyPayload{
			CategoryTree:         nodes,
			TotalQuestions:       total,
			LifetimeStats:        lifetime,
			Heatmap:              heatmap,
			ActiveSessions:       sessions,
			SessionStats:         stats,
			AllQuestionsAnswered: total > 0 && lifetime.Total >= total,
		})
	}
}

// GET /api/dashboard
func DashboardHandler(analytics *qbank.Analytics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := authmw.SubjectFromContext(ctx)
		tier := qbank.Tier(authmw.TierFromContext(ctx))

		perf, err := analytics.Performance(ctx, userID, tier)
		if err != nil {
			respondError(w, err)
			return
		}
		windowDays := parseIntDefault(r.URL.Query().Get("window_days"), 0)
		heatmap, err := analytics.Heatmap(ctx, userID, windowDays)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"performance": perf,
			"heatmap":     heatmap,
		})
	}
}
