package qbank

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
)

// Engine orchestrates the session lifecycle: pool selection, navigation,
// answer scoring and finalization. All state lives in the stores; the engine
// itself is stateless and safe for concurrent use.
type Engine struct {
	questions  QuestionRepo
	sessions   SessionStore
	progress   ProgressLedger
	categories CategoryRepo
	events     EventSink // optional

	mockQuestionCount int
}

// sessionRetries bounds re-reads when a session write loses the version
// compare to a concurrent writer.
const sessionRetries = 3

type EngineOption func(*Engine)

// WithMockQuestionCount overrides the fixed size of mock-test sessions.
func WithMockQuestionCount(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.mockQuestionCount = n
		}
	}
}

// WithEventSink attaches a best-effort audit sink for lifecycle events.
func WithEventSink(sink EventSink) EngineOption {
	return func(e *Engine) { e.events = sink }
}

func NewEngine(questions QuestionRepo, sessions SessionStore, progress ProgressLedger, categories CategoryRepo, opts ...EngineOption) *Engine {
	e := &Engine{
		questions:         questions,
		sessions:          sessions,
		progress:          progress,
		categories:        categories,
		mockQuestionCount: 50,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// StartRequest describes the pool a new session draws from.
type StartRequest struct {
	CategoryIDs []int64      `json:"categories"`
	Status      StatusFilter `json:"status_filter"`
	Mode        Mode         `json:"mode"`
}

// StartResult returns the first question of the new session.
type StartResult struct {
	SessionID      string         `json:"session_id"`
	Question       PublicQuestion `json:"question"`
	TotalQuestions int            `json:"total_questions"`
	CurrentIndex   int            `json:"current_index"`
	Mode           Mode           `json:"mode"`
}

// NavigateResult is the view of one question plus any stored answer state so
// the client can redisplay an attempted question without resubmitting.
type NavigateResult struct {
	Question       PublicQuestion `json:"question"`
	CurrentIndex   int            `json:"current_index"`
	TotalQuestions int            `json:"total_questions"`
	SessionID      string         `json:"session_id"`
	Mode           Mode           `json:"mode"`
	IsAttempted    bool           `json:"is_attempted"`
	UserAnswer     *int           `json:"user_answer,omitempty"`
	IsCorrect      *bool          `json:"is_correct,omitempty"`
	CorrectIndex   *int           `json:"correct_index,omitempty"`
	Explanation    string         `json:"explanation,omitempty"`
}

// SubmitResult is the immediate feedback for one scored answer.
type SubmitResult struct {
	IsCorrect    bool         `json:"is_correct"`
	CorrectIndex int          `json:"correct_index"`
	Explanation  string       `json:"explanation"`
	Distribution Distribution `json:"distribution"`
}

// Start creates a session from the filtered pool. Practice sessions shuffle
// the pool uniformly; mock sessions keep the repository order (random per
// filter) truncated to the configured count.
func (e *Engine) Start(ctx context.Context, userID string, tier Tier, req StartRequest) (StartResult, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModePractice
	}
	if mode != ModePractice && mode != ModeMock {
		return StartResult{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, req.Mode)
	}
	status := req.Status
	if status == "" {
		status = StatusAll
	}
	if status != StatusAll && status != StatusUnattempted && status != StatusIncorrect {
		return StartResult{}, fmt.Errorf("%w: unknown status filter %q", ErrInvalidInput, req.Status)
	}
	for _, id := range req.CategoryIDs {
		if id <= 0 {
			return StartResult{}, fmt.Errorf("%w: bad category id %d", ErrInvalidInput, id)
		}
	}

	f := Filter{
		CategoryIDs: req.CategoryIDs,
		Tier:        tier,
		Status:      status,
		Order:       OrderNatural,
	}
	if mode == ModeMock {
		f.Limit = e.mockQuestionCount
		f.Order = OrderRandom
	}

	ids, err := e.questions.FindQuestions(ctx, userID, f)
	if err != nil {
		return StartResult{}, err
	}
	if len(ids) == 0 {
		return StartResult{}, ErrNoMatch
	}
	if mode != ModeMock {
		rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}

	sess, err := e.sessions.Create(ctx, userID, mode, ids)
	if err != nil {
		return StartResult{}, err
	}
	first, err := e.questions.GetQuestion(ctx, ids[0])
	if err != nil {
		return StartResult{}, err
	}
	e.emit(ctx, "SessionStarted", sess.ID, map[string]any{"user_id": userID, "mode": mode, "total": len(ids)})

	return StartResult{
		SessionID:      sess.ID,
		Question:       first.Public(),
		TotalQuestions: len(ids),
		CurrentIndex:   0,
		Mode:           mode,
	}, nil
}

// StartNew deactivates every active session for the user before starting a
// fresh one.
func (e *Engine) StartNew(ctx context.Context, userID string, tier Tier, req StartRequest) (StartResult, error) {
	if err := e.sessions.Deactivate(ctx, userID, ""); err != nil {
		return StartResult{}, err
	}
	return e.Start(ctx, userID, tier, req)
}

// Navigate moves the position to targetIndex and returns that question.
// Out-of-range targets are rejected with ErrInvalidInput and leave the
// stored index unchanged. A lost version compare re-reads so a racing
// submission's answers are carried into the write, never overwritten.
func (e *Engine) Navigate(ctx context.Context, userID, sessionID string, targetIndex int) (NavigateResult, error) {
	for attempt := 0; ; attempt++ {
		sess, err := e.sessions.GetByID(ctx, userID, sessionID)
		if err != nil {
			return NavigateResult{}, err
		}
		if targetIndex < 0 || targetIndex >= len(sess.QuestionIDs) {
			return NavigateResult{}, fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidInput, targetIndex, len(sess.QuestionIDs))
		}
		err = e.sessions.Update(ctx, userID, sessionID, targetIndex, sess.Answers, sess.States, sess.Version)
		if errors.Is(err, ErrConflict) && attempt < sessionRetries {
			continue
		}
		if err != nil {
			return NavigateResult{}, err
		}
		sess.CurrentIndex = targetIndex
		return e.questionView(ctx, &sess, targetIndex)
	}
}

// Resume returns the session's current question. With an empty sessionID the
// most recently updated active session is resumed.
func (e *Engine) Resume(ctx context.Context, userID, sessionID string) (NavigateResult, error) {
	var (
		sess Session
		err  error
	)
	if sessionID == "" {
		sess, err = e.sessions.GetActive(ctx, userID)
	} else {
		sess, err = e.sessions.GetByID(ctx, userID, sessionID)
	}
	if err != nil {
		return NavigateResult{}, err
	}
	return e.questionView(ctx, &sess, sess.CurrentIndex)
}

func (e *Engine) questionView(ctx context.Context, sess *Session, index int) (NavigateResult, error) {
	qid := sess.QuestionIDs[index]
	q, err := e.questions.GetQuestion(ctx, qid)
	if err != nil {
		return NavigateResult{}, err
	}
	res := NavigateResult{
		Question:       q.Public(),
		CurrentIndex:   index,
		TotalQuestions: len(sess.QuestionIDs),
		SessionID:      sess.ID,
		Mode:           sess.Mode,
	}
	if answer, ok := sess.Answers[qid]; ok {
		correct := answer == q.CorrectIndex
		res.IsAttempted = true
		res.UserAnswer = &answer
		res.IsCorrect = &correct
		ci := q.CorrectIndex
		res.CorrectIndex = &ci
		res.Explanation = q.Explanation
	}
	return res, nil
}

// Submit scores one answer. The version-compared session update claims the
// question before any ledger write: a racing duplicate loses the compare,
// re-reads, and is rejected by the Answered check, so ledger rows and
// selection counters land at most once per question.
func (e *Engine) Submit(ctx context.Context, userID, sessionID string, questionID int64, answerIndex int) (SubmitResult, error) {
	if answerIndex < 0 || answerIndex >= NumOptions {
		return SubmitResult{}, fmt.Errorf("%w: answer index %d out of range [0,%d)", ErrInvalidInput, answerIndex, NumOptions)
	}
	var (
		q       Question
		correct bool
	)
	for attempt := 0; ; attempt++ {
		sess, err := e.sessions.GetByID(ctx, userID, sessionID)
		if err != nil {
			return SubmitResult{}, err
		}
		if !sess.Contains(questionID) {
			return SubmitResult{}, fmt.Errorf("%w: question %d is not part of this session", ErrInvalidInput, questionID)
		}
		if sess.Answered(questionID) {
			return SubmitResult{}, ErrAlreadyAnswered
		}
		if attempt == 0 {
			q, err = e.questions.GetQuestion(ctx, questionID)
			if err != nil {
				return SubmitResult{}, err
			}
			correct = answerIndex == q.CorrectIndex
		}

		sess.Answers[questionID] = answerIndex
		if correct {
			sess.States[questionID] = OutcomeCorrect
		} else {
			sess.States[questionID] = OutcomeIncorrect
		}
		err = e.sessions.Update(ctx, userID, sessionID, sess.CurrentIndex, sess.Answers, sess.States, sess.Version)
		if errors.Is(err, ErrConflict) && attempt < sessionRetries {
			continue
		}
		if err != nil {
			return SubmitResult{}, err
		}
		break
	}

	if err := e.progress.Record(ctx, userID, questionID, answerIndex, correct); err != nil {
		return SubmitResult{}, err
	}
	if err := e.questions.RecordSelection(ctx, questionID, answerIndex); err != nil {
		return SubmitResult{}, err
	}

	dist, err := e.progress.Distribution(ctx, questionID)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		IsCorrect:    correct,
		CorrectIndex: q.CorrectIndex,
		Explanation:  q.Explanation,
		Distribution: dist,
	}, nil
}

// FinishMock grades the whole session: every question is classified as
// correct, incorrect or unanswered, with per-category tallies at the
// directly-assigned term level. The session is deactivated.
func (e *Engine) FinishMock(ctx context.Context, userID, sessionID string) (MockResult, error) {
	sess, err := e.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return MockResult{}, err
	}

	terms, err := e.categories.TermsFor(ctx, sess.QuestionIDs)
	if err != nil {
		return MockResult{}, err
	}

	res := MockResult{Total: len(sess.QuestionIDs)}
	byCat := make(map[int64]*CategoryScore)
	for _, qid := range sess.QuestionIDs {
		for _, cat := range terms[qid] {
			score, ok := byCat[cat.ID]
			if !ok {
				score = &CategoryScore{CategoryID: cat.ID, Name: cat.Name}
				byCat[cat.ID] = score
			}
			score.Total++
		}
		outcome, answered := sess.States[qid]
		switch {
		case !answered:
			res.Unanswered++
		case outcome == OutcomeCorrect:
			res.Correct++
			for _, cat := range terms[qid] {
				byCat[cat.ID].Correct++
			}
		default:
			res.Incorrect++
		}
	}
	for _, score := range byCat {
		res.Categories = append(res.Categories, *score)
	}
	sort.Slice(res.Categories, func(i, j int) bool { return res.Categories[i].Name < res.Categories[j].Name })

	if err := e.sessions.Deactivate(ctx, userID, sessionID); err != nil {
		return MockResult{}, err
	}
	e.emit(ctx, "MockFinished", sessionID, res)
	return res, nil
}

// FinishPractice deactivates the session and reports the informal running
// tally; practice sessions are not formally graded.
func (e *Engine) FinishPractice(ctx context.Context, userID, sessionID string) (PracticeResult, error) {
	sess, err := e.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return PracticeResult{}, err
	}
	res := PracticeResult{Attempted: len(sess.Answers)}
	for _, outcome := range sess.States {
		if outcome == OutcomeCorrect {
			res.Correct++
		}
	}
	if err := e.sessions.Deactivate(ctx, userID, sessionID); err != nil {
		return PracticeResult{}, err
	}
	e.emit(ctx, "PracticeFinished", sessionID, res)
	return res, nil
}

// Finish ends a session according to its mode.
func (e *Engine) Finish(ctx context.Context, userID, sessionID string) (any, error) {
	sess, err := e.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Mode == ModeMock {
		return e.FinishMock(ctx, userID, sessionID)
	}
	return e.FinishPractice(ctx, userID, sessionID)
}

// Close deactivates a session without grading it.
func (e *Engine) Close(ctx context.Context, userID, sessionID string) error {
	if err := e.sessions.Deactivate(ctx, userID, sessionID); err != nil {
		return err
	}
	e.emit(ctx, "SessionClosed", sessionID, map[string]any{"user_id": userID})
	return nil
}

// ListSessions returns the caller's active, non-expired sessions.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionSummary, error) {
	return e.sessions.ListActive(ctx, userID)
}

func (e *Engine) SessionStats(ctx context.Context, userID string) (SessionStats, error) {
	return e.sessions.Stats(ctx, userID)
}

func (e *Engine) emit(ctx context.Context, typ, key string, data any) {
	if e.events == nil {
		return
	}
	if err := e.events.Append(ctx, typ, key, data); err != nil {
		log.Printf("qbank: event append failed: %v", err)
	}
}
