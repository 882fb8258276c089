package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	auth "github.com/medprep/qbank/internal/auth/middleware"
	"github.com/medprep/qbank/internal/rbac"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	svc := auth.NewAuthService("test-secret")

	tok, err := svc.IssueJWT("user-1", "student", "premium")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Sub != "user-1" || claims.Role != "student" || claims.Tier != "premium" {
		t.Fatalf("bad claims: %+v", claims)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	tok, err := auth.NewAuthService("key-a").IssueJWT("user-1", "student", "free")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := auth.NewAuthService("key-b").Parse(tok); err == nil {
		t.Fatalf("expected parse failure with wrong key")
	}
}

func TestJWTMiddlewareAttachesContext(t *testing.T) {
	svc := auth.NewAuthService("test-secret")
	tok, err := svc.IssueJWT("user-1", "admin", "premium")
	if err != nil {
		t.Fatal(err)
	}

	var gotSub, gotTier, gotRole string
	handler := auth.JWTMiddleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = auth.SubjectFromContext(r.Context())
		gotTier = auth.TierFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/lobby", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if gotSub != "user-1" || gotTier != "premium" || gotRole != "admin" {
		t.Fatalf("context not populated: sub=%q tier=%q role=%q", gotSub, gotTier, gotRole)
	}
}

func TestJWTMiddlewareRejects(t *testing.T) {
	svc := auth.NewAuthService("test-secret")
	handler := auth.JWTMiddleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler reached without valid token")
	}))

	req := httptest.NewRequest("GET", "/api/lobby", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing bearer: status %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/lobby", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", rec.Code)
	}
}

func TestTierDefaultsToFree(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if got := auth.TierFromContext(req.Context()); got != "free" {
		t.Fatalf("expected free default, got %q", got)
	}
}
