package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	authmw "github.com/medprep/qbank/internal/auth/middleware"
)

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// POST /api/users/change-password
func ChangePasswordHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		if userID == "" {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		var req changePasswordReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if len(req.NewPassword) < 8 {
			http.Error(w, "new password too short", http.StatusBadRequest)
			return
		}

		var storedHash string
		err := db.QueryRowContext(r.Context(),
			`SELECT password_hash FROM users WHERE id=$1`, userID).Scan(&storedHash)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(req.OldPassword)) != nil {
			http.Error(w, "incorrect old password", http.StatusForbidden)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), 12)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if _, err := db.ExecContext(r.Context(),
			`UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), userID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
	}
}

type upsertUserReq struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role"`
	Tier     string `json:"tier"`
}

// PUT /api/admin/users  (admin). Create or update one account.
func UpsertUserHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req upsertUserReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		req.ID = strings.TrimSpace(req.ID)
		req.Username = strings.TrimSpace(req.Username)
		if req.ID == "" || req.Username == "" {
			http.Error(w, "id and username required", http.StatusBadRequest)
			return
		}
		if req.Role == "" {
			req.Role = "student"
		}
		if req.Role != "student" && req.Role != "admin" {
			http.Error(w, "invalid role: "+req.Role, http.StatusBadRequest)
			return
		}
		if req.Tier == "" {
			req.Tier = "free"
		}
		if req.Tier != "free" && req.Tier != "premium" {
			http.Error(w, "invalid tier: "+req.Tier, http.StatusBadRequest)
			return
		}

		var exists bool
		if err := db.QueryRowContext(r.Context(),
			`SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, req.ID).Scan(&exists); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !exists && req.Password == "" {
			http.Error(w, "password required for new user", http.StatusBadRequest)
			return
		}

		var phash string
		if req.Password != "" {
			b, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			phash = string(b)
		}

		var err error
		if exists {
			if phash != "" {
				_, err = db.ExecContext(r.Context(),
					`UPDATE users SET username=$1, role=$2, tier=$3, password_hash=$4 WHERE id=$5`,
					req.Username, req.Role, req.Tier, phash, req.ID)
			} else {
				_, err = db.ExecContext(r.Context(),
					`UPDATE users SET username=$1, role=$2, tier=$3 WHERE id=$4`,
					req.Username, req.Role, req.Tier, req.ID)
			}
		} else {
			_, err = db.ExecContext(r.Context(),
				`INSERT INTO users (id, username, password_hash, role, tier) VALUES ($1,$2,$3,$4,$5)`,
				req.ID, req.Username, phash, req.Role, req.Tier)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "upserted", "id": req.ID})
	}
}
