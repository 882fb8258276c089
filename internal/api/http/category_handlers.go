package http

import (
	"encoding/json"
	"net/http"

	authmw "github.com/medprep/qbank/internal/auth/middleware"
	"github.com/medprep/qbank/internal/qbank"
)

// GET /api/categories/tree
func CategoryTreeHandler(tree *qbank.TreeBuilder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		tier := qbank.Tier(authmw.TierFromContext(r.Context()))
		nodes, err := tree.Build(r.Context(), userID, tier)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"tree": nodes})
	}
}

// PUT /api/categories/order  { "parent_id": n, "ordered_ids": [..] }
// Children listed in ordered_ids sort first by position; the rest follow
// alphabetically.
func SetCategoryOrderHandler(categories qbank.CategoryRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ParentID   int64   `json:"parent_id"`
			OrderedIDs []int64 `json:"ordered_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.ParentID < 0 {
			http.Error(w, "bad parent id", http.StatusBadRequest)
			return
		}
		if err := categories.SetOrder(r.Context(), req.ParentID, req.OrderedIDs); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	}
}
