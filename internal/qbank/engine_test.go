package qbank_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/medprep/qbank/internal/qbank"
)

func fiveOptions() []string {
	return []string{"A", "B", "C", "D", "E"}
}

func seedEngine(t *testing.T, n int) (*fakeQuestions, *fakeSessions, *fakeLedger, *fakeCategories, *qbank.Engine) {
	t.Helper()
	qs := make([]qbank.Question, 0, n)
	for i := 1; i <= n; i++ {
		qs = append(qs, qbank.Question{
			ID:           int64(i),
			Prompt:       fmt.Sprintf("question %d", i),
			Options:      fiveOptions(),
			CorrectIndex: 0,
			Explanation:  "because",
			CategoryIDs:  []int64{1},
			Tier:         qbank.TierFree,
		})
	}
	questions := newFakeQuestions(qs...)
	sessions := newFakeSessions()
	ledger := &fakeLedger{}
	categories := &fakeCategories{
		cats:  []qbank.Category{{ID: 1, Name: "Cardiology"}},
		terms: termsForAll(n, 1),
	}
	engine := qbank.NewEngine(questions, sessions, ledger, categories)
	return questions, sessions, ledger, categories, engine
}

func termsForAll(n int, categoryID int64) []qbank.QuestionTerm {
	terms := make([]qbank.QuestionTerm, 0, n)
	for i := 1; i <= n; i++ {
		terms = append(terms, qbank.QuestionTerm{QuestionID: int64(i), CategoryID: categoryID})
	}
	return terms
}

func TestEngine_StartPractice(t *testing.T) {
	_, _, _, _, engine := seedEngine(t, 4)

	res, err := engine.Start(context.Background(), "u1", qbank.TierFree, qbank.StartRequest{Mode: qbank.ModePractice})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalQuestions != 4 {
		t.Fatalf("expected 4 questions, got %d", res.TotalQuestions)
	}
	if res.CurrentIndex != 0 {
		t.Fatalf("expected index 0, got %d", res.CurrentIndex)
	}
	if res.Question.ID < 1 || res.Question.ID > 4 {
		t.Fatalf("first question %d not in pool", res.Question.ID)
	}
}

func TestEngine_StartEmptyPool(t *testing.T) {
	_, _, _, _, engine := seedEngine(t, 3)

	_, err := engine.Start(context.Background(), "u1", qbank.TierFree, qbank.StartRequest{
		Mode:        qbank.ModePractice,
		CategoryIDs: []int64{99},
	})
	if !errors.Is(err, qbank.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestEngine_StartRejectsBadInput(t *testing.T) {
	_, _, _, _, engine := seedEngine(t, 3)
	ctx := context.Background()

	if _, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{Mode: "speedrun"}); !errors.Is(err, qbank.ErrInvalidInput) {
		t.Fatalf("bad mode: expected ErrInvalidInput, got %v", err)
	}
	if _, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{Status: "maybe"}); !errors.Is(err, qbank.ErrInvalidInput) {
		t.Fatalf("bad status: expected ErrInvalidInput, got %v", err)
	}
	if _, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{CategoryIDs: []int64{-1}}); !errors.Is(err, qbank.ErrInvalidInput) {
		t.Fatalf("bad category: expected ErrInvalidInput, got %v", err)
	}
}

func TestEngine_StartMockTruncates(t *testing.T) {
	questions, sessions, ledger, categories, _ := seedEngine(t, 10)
	engine := qbank.NewEngine(questions, sessions, ledger, categories, qbank.WithMockQuestionCount(3))

	res, err := engine.Start(context.Background(), "u1", qbank.TierFree, qbank.StartRequest{Mode: qbank.ModeMock})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalQuestions != 3 {
		t.Fatalf("expected mock truncated to 3 questions, got %d", res.TotalQuestions)
	}
}

func TestEngine_NavigateBounds(t *testing.T) {
	_, sessions, _, _, engine := seedEngine(t, 3)
	ctx := context.Background()

	start, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Navigate(ctx, "u1", start.SessionID, 3); !errors.Is(err, qbank.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for index 3, got %v", err)
	}
	if _, err := engine.Navigate(ctx, "u1", start.SessionID, -1); !errors.Is(err, qbank.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for index -1, got %v", err)
	}
	// A rejected move leaves the stored index unchanged.
	if sessions.sessions[start.SessionID].CurrentIndex != 0 {
		t.Fatalf("stored index moved after rejected navigation")
	}

	res, err := engine.Navigate(ctx, "u1", start.SessionID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CurrentIndex != 2 {
		t.Fatalf("expected index 2, got %d", res.CurrentIndex)
	}
	if res.IsAttempted {
		t.Fatalf("unanswered question reported attempted")
	}
}

func TestEngine_SubmitScoresAndRecordsOnce(t *testing.T) {
	questions, sessions, ledger, _, engine := seedEngine(t, 3)
	ctx := context.Background()

	start, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{})
	if err != nil {
		t.Fatal(err)
	}
	qid := start.Question.ID

	res, err := engine.Submit(ctx, "u1", start.SessionID, qid, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsCorrect || res.CorrectIndex != 0 {
		t.Fatalf("expected correct answer at index 0, got %+v", res)
	}
	if res.Explanation != "because" {
		t.Fatalf("expected explanation in result")
	}
	if len(ledger.rows) != 1 || ledger.rows[0].IsReattempt {
		t.Fatalf("expected one non-reattempt ledger row, got %+v", ledger.rows)
	}
	if got := len(questions.selections[qid]); got != 1 {
		t.Fatalf("expected 1 recorded selection, got %d", got)
	}

	// Second submission for the same question is rejected with no writes.
	if _, err := engine.Submit(ctx, "u1", start.SessionID, qid, 1); !errors.Is(err, qbank.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}
	if len(ledger.rows) != 1 {
		t.Fatalf("double submit reached the ledger")
	}
	if got := len(questions.selections[qid]); got != 1 {
		t.Fatalf("double submit reached the counters")
	}
	if sessions.sessions[start.SessionID].Answers[qid] != 0 {
		t.Fatalf("stored answer changed on rejected resubmit")
	}
}

func TestEngine_SubmitValidation(t *testing.T) {
	_, _, _, _, engine := seedEngine(t, 2)
	ctx := context.Background()

	start, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Submit(ctx, "u1", start.SessionID, start.Question.ID, 5); !errors.Is(err, qbank.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for option 5, got %v", err)
	}
	if _, err := engine.Submit(ctx, "u1", start.SessionID, 999, 0); !errors.Is(err, qbank.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for foreign question, got %v", err)
	}
	if _, err := engine.Submit(ctx, "u1", "no-such-session", start.Question.ID, 0); !errors.Is(err, qbank.ErrExpired) {
		t.Fatalf("expected ErrExpired for unknown session, got %v", err)
	}
}

// A submission that loses the session write race re-reads and reapplies, so
// the answer stored by the other writer survives alongside its own.
func TestEngine_SubmitRetainsRacingAnswer(t *testing.T) {
	_, sessions, ledger, _, engine := seedEngine(t, 2)
	ctx := context.Background()

	start, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{})
	if err != nil {
		t.Fatal(err)
	}

	// A second submission lands in full between the first one's read and
	// write of the session row.
	sessions.beforeUpdate = func() {
		if _, err := engine.Submit(ctx, "u1", start.SessionID, 2, 3); err != nil {
			t.Fatalf("interleaved submit: %v", err)
		}
	}
	if _, err := engine.Submit(ctx, "u1", start.SessionID, 1, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}

	stored := sessions.sessions[start.SessionID]
	if got, ok := stored.Answers[2]; !ok || got != 3 {
		t.Fatalf("racing answer lost: %v", stored.Answers)
	}
	if got, ok := stored.Answers[1]; !ok || got != 0 {
		t.Fatalf("retried answer missing: %v", stored.Answers)
	}
	if len(ledger.rows) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(ledger.rows))
	}
}

// Two racing submissions for the same question: the loser is rejected on
// re-read before it reaches the ledger or the counters.
func TestEngine_SubmitDuplicateRaceCountsOnce(t *testing.T) {
	questions, sessions, ledger, _, engine := seedEngine(t, 2)
	ctx := context.Background()

	start, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{})
	if err != nil {
		t.Fatal(err)
	}

	sessions.beforeUpdate = func() {
		if _, err := engine.Submit(ctx, "u1", start.SessionID, 1, 4); err != nil {
			t.Fatalf("interleaved submit: %v", err)
		}
	}
	if _, err := engine.Submit(ctx, "u1", start.SessionID, 1, 0); !errors.Is(err, qbank.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	if len(ledger.rows) != 1 {
		t.Fatalf("duplicate race reached the ledger: %+v", ledger.rows)
	}
	if got := len(questions.selections[1]); got != 1 {
		t.Fatalf("duplicate race reached the counters: %d", got)
	}
	if sessions.sessions[start.SessionID].Answers[1] != 4 {
		t.Fatalf("winning answer overwritten: %v", sessions.sessions[start.SessionID].Answers)
	}
}

func TestEngine_FinishMockClassifies(t *testing.T) {
	questions, sessions, ledger, categories, _ := seedEngine(t, 3)
	engine := qbank.NewEngine(questions, sessions, ledger, categories, qbank.WithMockQuestionCount(3))
	ctx := context.Background()

	start, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{Mode: qbank.ModeMock})
	if err != nil {
		t.Fatal(err)
	}
	qids := sessions.sessions[start.SessionID].QuestionIDs

	if _, err := engine.Submit(ctx, "u1", start.SessionID, qids[0], 0); err != nil { // correct
		t.Fatal(err)
	}
	if _, err := engine.Submit(ctx, "u1", start.SessionID, qids[1], 2); err != nil { // incorrect
		t.Fatal(err)
	}
	// qids[2] left unanswered.

	res, err := engine.FinishMock(ctx, "u1", start.SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 3 || res.Correct != 1 || res.Incorrect != 1 || res.Unanswered != 1 {
		t.Fatalf("bad classification: %+v", res)
	}
	if len(res.Categories) != 1 {
		t.Fatalf("expected 1 category score, got %d", len(res.Categories))
	}
	if cs := res.Categories[0]; cs.Name != "Cardiology" || cs.Total != 3 || cs.Correct != 1 {
		t.Fatalf("bad category score: %+v", cs)
	}
	if sessions.sessions[start.SessionID].Active {
		t.Fatalf("finished mock still active")
	}

	// Finished sessions reject further operations.
	if _, err := engine.Submit(ctx, "u1", start.SessionID, qids[2], 0); !errors.Is(err, qbank.ErrExpired) {
		t.Fatalf("expected ErrExpired after finish, got %v", err)
	}
}

func TestEngine_FinishPracticeTallies(t *testing.T) {
	_, sessions, _, _, engine := seedEngine(t, 3)
	ctx := context.Background()

	start, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{})
	if err != nil {
		t.Fatal(err)
	}
	qids := sessions.sessions[start.SessionID].QuestionIDs
	if _, err := engine.Submit(ctx, "u1", start.SessionID, qids[0], 0); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Submit(ctx, "u1", start.SessionID, qids[1], 3); err != nil {
		t.Fatal(err)
	}

	res, err := engine.FinishPractice(ctx, "u1", start.SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempted != 2 || res.Correct != 1 {
		t.Fatalf("bad tally: %+v", res)
	}
}

func TestEngine_StartNewDeactivatesPrior(t *testing.T) {
	_, sessions, _, _, engine := seedEngine(t, 3)
	ctx := context.Background()

	first, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.StartNew(ctx, "u1", qbank.TierFree, qbank.StartRequest{})
	if err != nil {
		t.Fatal(err)
	}

	if sessions.sessions[first.SessionID].Active {
		t.Fatalf("prior session still active after StartNew")
	}
	if !sessions.sessions[second.SessionID].Active {
		t.Fatalf("new session not active")
	}
}

func TestEngine_ResumeMostRecent(t *testing.T) {
	_, _, _, _, engine := seedEngine(t, 3)
	ctx := context.Background()

	start, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Navigate(ctx, "u1", start.SessionID, 1); err != nil {
		t.Fatal(err)
	}

	res, err := engine.Resume(ctx, "u1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SessionID != start.SessionID {
		t.Fatalf("resumed wrong session: %s", res.SessionID)
	}
	if res.CurrentIndex != 1 {
		t.Fatalf("expected resume at index 1, got %d", res.CurrentIndex)
	}

	// No active session for a fresh user.
	if _, err := engine.Resume(ctx, "u2", ""); !errors.Is(err, qbank.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestEngine_ResumeShowsStoredAnswer(t *testing.T) {
	_, sessions, _, _, engine := seedEngine(t, 2)
	ctx := context.Background()

	start, err := engine.Start(ctx, "u1", qbank.TierFree, qbank.StartRequest{})
	if err != nil {
		t.Fatal(err)
	}
	qid := sessions.sessions[start.SessionID].QuestionIDs[0]
	if _, err := engine.Submit(ctx, "u1", start.SessionID, qid, 2); err != nil {
		t.Fatal(err)
	}

	res, err := engine.Resume(ctx, "u1", start.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsAttempted {
		t.Fatalf("expected attempted state on resume")
	}
	if res.UserAnswer == nil || *res.UserAnswer != 2 {
		t.Fatalf("expected stored answer 2, got %v", res.UserAnswer)
	}
	if res.IsCorrect == nil || *res.IsCorrect {
		t.Fatalf("expected incorrect state")
	}
	if res.CorrectIndex == nil || *res.CorrectIndex != 0 {
		t.Fatalf("expected correct index revealed after attempt")
	}
}
