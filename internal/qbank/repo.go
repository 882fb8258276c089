package qbank

import (
	"context"
	"time"
)

// QuestionRepo exposes question content and per-option selection tallies.
type QuestionRepo interface {
	// FindQuestions resolves the candidate pool for a filter. The result is
	// never nil; an empty slice means nothing matched.
	FindQuestions(ctx context.Context, userID string, f Filter) ([]int64, error)
	GetQuestion(ctx context.Context, id int64) (Question, error)
	// RecordSelection increments the cumulative counter for one option. One
	// call per submitted answer; counters only ever grow.
	RecordSelection(ctx context.Context, questionID int64, optionIndex int) error
	// CountQuestions returns the bank size visible to a tier.
	CountQuestions(ctx context.Context, tier Tier) (int, error)
}

// SessionStore persists one record per (user, session token).
type SessionStore interface {
	Create(ctx context.Context, userID string, mode Mode, questionIDs []int64) (Session, error)
	// GetActive returns the most recently updated active, non-expired
	// session, or ErrExpired when there is none.
	GetActive(ctx context.Context, userID string) (Session, error)
	GetByID(ctx context.Context, userID, sessionID string) (Session, error)
	// Update rewrites position and answer state for an already-active
	// session. The write only lands when version still matches the stored
	// row; ErrConflict signals a concurrent writer won, ErrExpired that the
	// row is gone or inactive.
	Update(ctx context.Context, userID, sessionID string, currentIndex int, answers map[int64]int, states map[int64]Outcome, version int64) error
	// Deactivate closes one session, or every active session of the user
	// when sessionID is empty.
	Deactivate(ctx context.Context, userID, sessionID string) error
	ListActive(ctx context.Context, userID string) ([]SessionSummary, error)
	Stats(ctx context.Context, userID string) (SessionStats, error)
	// Sweep deactivates expired sessions and purges inactive ones older than
	// the retention window. Maintenance only, never on the request path.
	Sweep(ctx context.Context) (SweepResult, error)
}

// ProgressLedger records per-user attempt history. First attempts are
// upserted with is_reattempt=false; later attempts append is_reattempt=true
// rows so lifetime accuracy stays pinned to first resolutions.
type ProgressLedger interface {
	Record(ctx context.Context, userID string, questionID int64, answerIndex int, correct bool) error
	// AnsweredOutcomes returns the non-reattempt outcome per question for a
	// user.
	AnsweredOutcomes(ctx context.Context, userID string) (map[int64]Outcome, error)
	LifetimeStats(ctx context.Context, userID string, tier Tier) (LifetimeStats, error)
	// StillIncorrectIDs lists question ids whose first attempt was incorrect
	// and which no reattempt has since resolved correctly, newest first,
	// optionally restricted to directly-assigned categories.
	StillIncorrectIDs(ctx context.Context, userID string, categoryIDs []int64) ([]int64, error)
	// LatestAttempt returns the newest attempt row for the pair, reattempt
	// or not; ErrNotFound when the user never answered the question.
	LatestAttempt(ctx context.Context, userID string, questionID int64) (ProgressRow, error)
	Distribution(ctx context.Context, questionID int64) (Distribution, error)
	Heatmap(ctx context.Context, userID string, since time.Time) ([]HeatmapDay, error)
	Reset(ctx context.Context, userID string) error
}

// CategoryRepo exposes the taxonomy and the admin ordering map.
type CategoryRepo interface {
	AllCategories(ctx context.Context) ([]Category, error)
	// QuestionTerms lists (question, category) membership pairs for
	// questions visible to the tier.
	QuestionTerms(ctx context.Context, tier Tier) ([]QuestionTerm, error)
	// TermsFor maps each question id to its directly-assigned categories.
	TermsFor(ctx context.Context, questionIDs []int64) (map[int64][]Category, error)
	// OrderMap returns the admin-defined child ordering per parent id.
	OrderMap(ctx context.Context) (map[int64][]int64, error)
	SetOrder(ctx context.Context, parentID int64, orderedIDs []int64) error
}

// FeedbackRepo is append-only free-text feedback, unrelated to scoring.
type FeedbackRepo interface {
	AddFeedback(ctx context.Context, userID string, questionID int64, body string) error
	ListFeedback(ctx context.Context, limit, offset int) ([]Feedback, error)
}

// EventSink receives session lifecycle events for the audit log. Appends are
// best-effort; failures never fail the triggering operation.
type EventSink interface {
	Append(ctx context.Context, typ, key string, data any) error
}
