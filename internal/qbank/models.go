package qbank

import "time"

// NumOptions is fixed across the bank: every question carries exactly five
// answer choices (A-E).
const NumOptions = 5

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

type Mode string

const (
	ModePractice Mode = "practice"
	ModeMock     Mode = "mock"
)

type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
)

type StatusFilter string

const (
	StatusAll         StatusFilter = "all"
	StatusUnattempted StatusFilter = "unattempted"
	StatusIncorrect   StatusFilter = "incorrect"
)

type Order string

const (
	OrderNatural Order = "natural"
	OrderRandom  Order = "random"
)

// Question is the full record, correct answer and explanation included.
// Handlers must not serialize it to non-owners; use PublicQuestion.
type Question struct {
	ID           int64    `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
	CategoryIDs  []int64  `json:"category_ids"`
	Tier         Tier     `json:"tier"`
}

// PublicQuestion is the student-safe projection served during a session.
type PublicQuestion struct {
	ID      int64    `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

func (q Question) Public() PublicQuestion {
	return PublicQuestion{ID: q.ID, Prompt: q.Prompt, Options: q.Options}
}

type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parent"` // 0 = root
}

// QuestionTerm is one (question, category) membership pair.
type QuestionTerm struct {
	QuestionID int64
	CategoryID int64
}

// CategoryNode is one node of the aggregated category tree. Totals are
// subtree-union counts: a question tagged at both a parent and a child
// contributes once to the parent.
type CategoryNode struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	ParentID       int64           `json:"parent"`
	TotalQuestions int             `json:"total_questions"`
	UserAnswered   int             `json:"user_answered"`
	Children       []*CategoryNode `json:"children"`
}

// Filter selects the candidate question pool for a new session.
type Filter struct {
	CategoryIDs []int64 // subtree-inclusive; empty = whole bank
	Tier        Tier    // effective caller tier; TierFree restricts to free questions
	Status      StatusFilter
	Limit       int // 0 = no limit
	Order       Order
}

// Session is one user's working state over an ordered question list. The
// question list is immutable after creation; Answers and States grow one
// entry per answered question.
type Session struct {
	ID           string            `json:"session_id"`
	UserID       string            `json:"user_id"`
	Mode         Mode              `json:"mode"`
	QuestionIDs  []int64           `json:"question_ids"`
	CurrentIndex int               `json:"current_index"`
	Answers      map[int64]int     `json:"answers"`
	States       map[int64]Outcome `json:"states"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	Active       bool              `json:"active"`
	// Version increments on every write; Update compares it so stale state
	// never overwrites a newer row.
	Version int64 `json:"-"`
}

// Answered reports whether the question already has an answer in this session.
func (s *Session) Answered(questionID int64) bool {
	_, ok := s.Answers[questionID]
	return ok
}

// Contains reports membership in the session's fixed question list.
func (s *Session) Contains(questionID int64) bool {
	for _, id := range s.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// SessionSummary is the list-view projection with derived progress.
type SessionSummary struct {
	SessionID       string    `json:"session_id"`
	Mode            Mode      `json:"mode"`
	CurrentIndex    int       `json:"current_index"`
	TotalQuestions  int       `json:"total_questions"`
	AnsweredCount   int       `json:"answered_count"`
	ProgressPercent int       `json:"progress_percentage"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// SessionStats are per-user lifetime session counts.
type SessionStats struct {
	TotalSessions    int `json:"total_sessions"`
	PracticeSessions int `json:"practice_sessions"`
	MockSessions     int `json:"mock_sessions"`
	ActiveSessions   int `json:"active_sessions"`
}

// SweepResult reports one maintenance pass over the session table.
type SweepResult struct {
	Deactivated int64 `json:"deactivated"`
	Deleted     int64 `json:"deleted"`
}

// ProgressRow is one recorded attempt. The first-ever attempt for a
// (user, question) pair has IsReattempt=false; every later attempt is
// appended with IsReattempt=true.
type ProgressRow struct {
	UserID      string
	QuestionID  int64
	AnswerIndex int
	Status      Outcome
	IsReattempt bool
	CreatedAt   time.Time
}

type LifetimeStats struct {
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// OptionStat is the distribution entry for one answer choice.
type OptionStat struct {
	Count        int     `json:"count"`
	CorrectCount int     `json:"correct_count"`
	Percentage   float64 `json:"percentage"`
}

// Distribution always carries exactly NumOptions entries, zero-filled for
// options nobody has picked. TotalRespondents counts distinct users, not
// attempts.
type Distribution struct {
	Options          [NumOptions]OptionStat `json:"answer_distribution"`
	TotalRespondents int                    `json:"total_attempts"`
}

type HeatmapDay struct {
	Date      string `json:"date"` // YYYY-MM-DD
	Total     int    `json:"total"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
}

type CategoryScore struct {
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	Correct    int    `json:"correct"`
	Total      int    `json:"total"`
}

// MockResult is the aggregate grade of a finished mock test.
type MockResult struct {
	Total      int             `json:"total"`
	Correct    int             `json:"correct"`
	Incorrect  int             `json:"incorrect"`
	Unanswered int             `json:"unanswered"`
	Categories []CategoryScore `json:"specialty_stats"`
}

// PracticeResult is the informal tally reported when a practice session ends.
type PracticeResult struct {
	Attempted int `json:"attempted"`
	Correct   int `json:"correct"`
}

type Feedback struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	QuestionID int64     `json:"question_id"`
	Body       string    `json:"feedback_text"`
	CreatedAt  time.Time `json:"submitted_at"`
}

// ReviewQuestion is one still-incorrect question with the user's stored
// answer, for the review flow.
type ReviewQuestion struct {
	ID           int64    `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	UserAnswer   int      `json:"user_answer_index"`
	CorrectIndex int      `json:"correct_choice_index"`
	Explanation  string   `json:"explanation"`
}
