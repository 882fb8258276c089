package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/medprep/qbank/internal/api/http"
	"github.com/medprep/qbank/internal/audit"
	auth "github.com/medprep/qbank/internal/auth/middleware"
	"github.com/medprep/qbank/internal/config"
	"github.com/medprep/qbank/internal/db"
	"github.com/medprep/qbank/internal/qbank"
	rbac "github.com/medprep/qbank/internal/rbac"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	store := qbank.NewSQLStore(dbh, cfg.DBDriver,
		qbank.WithSessionTTL(cfg.SessionTTL),
		qbank.WithRetention(cfg.SessionRetention),
	)
	events := audit.NewEventRepo(dbh)
	engine := qbank.NewEngine(store, store, store, store,
		qbank.WithMockQuestionCount(cfg.MockQuestionCount),
		qbank.WithEventSink(events),
	)
	tree := qbank.NewTreeBuilder(store, store)
	analytics := qbank.NewAnalytics(store, store, store)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/auth/login", auth.LoginHandler(dbh, authSvc))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.Get("/api/lobby", api.LobbyHandler(engine, tree, analytics, store, store))
		pr.Get("/api/dashboard", api.DashboardHandler(analytics))
		pr.Get("/api/categories/tree", api.CategoryTreeHandler(tree))

		pr.With(rbac.Require("session:create")).
			Post("/api/sessions", api.StartSessionHandler(engine))
		pr.With(rbac.Require("session:create")).
			Post("/api/sessions/new", api.StartNewSessionHandler(engine))
		pr.With(rbac.Require("session:view-own")).
			Get("/api/sessions", api.ListSessionsHandler(engine))
		pr.With(rbac.Require("session:view-own")).
			Get("/api/sessions/resume", api.ResumeSessionHandler(engine))
		pr.With(rbac.Require("session:view-own")).
			Post("/api/sessions/{sessionID}/navigate", api.NavigateHandler(engine))
		pr.With(rbac.Require("session:answer")).
			Post("/api/sessions/{sessionID}/answers", api.SubmitAnswerHandler(engine))
		pr.With(rbac.Require("session:close")).
			Post("/api/sessions/{sessionID}/finish", api.FinishSessionHandler(engine))
		pr.With(rbac.Require("session:close")).
			Delete("/api/sessions/{sessionID}", api.CloseSessionHandler(engine))

		pr.With(rbac.Require("stats:view")).
			Get("/api/questions/{questionID}/distribution", api.DistributionHandler(analytics))
		pr.With(rbac.Require("review:view")).
			Get("/api/review/incorrect", api.IncorrectQuestionsHandler(analytics))
		pr.With(rbac.Require("review:view")).
			Get("/api/review/questions/{questionID}", api.ReviewQuestionHandler(analytics))

		pr.With(rbac.Require("progress:reset-own")).
			Post("/api/progress/reset", api.ResetProgressHandler(store))
		pr.With(rbac.Require("feedback:create")).
			Post("/api/feedback", api.SubmitFeedbackHandler(store))
		pr.With(rbac.Require("user:change_password")).
			Post("/api/users/change-password", api.ChangePasswordHandler(dbh))

		// Admin surfaces
		pr.With(rbac.Require("feedback:list")).
			Get("/api/feedback", api.ListFeedbackHandler(store))
		pr.With(rbac.Require("categories:order")).
			Put("/api/categories/order", api.SetCategoryOrderHandler(store))
		pr.With(rbac.Require("admin:sweep")).
			Post("/api/admin/sweep", api.SweepHandler(store))
		pr.With(rbac.Require("admin:events")).
			Get("/api/admin/events", api.AuditSearchHandler(events))
		pr.With(rbac.Require("users:upsert")).
			Put("/api/admin/users", api.UpsertUserHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	// Expired sessions are deactivated lazily on read; the sweeper reclaims
	// them and purges old inactive rows out-of-band.
	go sweepLoop(store, cfg.SweepInterval)

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

func sweepLoop(store *qbank.SQLStore, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for range t.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		res, err := store.Sweep(ctx)
		cancel()
		if err != nil {
			log.Printf("session sweep failed: %v", err)
			continue
		}
		if res.Deactivated > 0 || res.Deleted > 0 {
			log.Printf("session sweep: deactivated=%d deleted=%d", res.Deactivated, res.Deleted)
		}
	}
}
