package qbank_test

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/medprep/qbank/internal/qbank"
)

/* ---------------- In-memory fakes that satisfy the qbank store interfaces ---------------- */

type fakeQuestions struct {
	questions  map[int64]qbank.Question
	selections map[int64][]int // questionID -> recorded option indexes
}

func newFakeQuestions(qs ...qbank.Question) *fakeQuestions {
	f := &fakeQuestions{
		questions:  map[int64]qbank.Question{},
		selections: map[int64][]int{},
	}
	for _, q := range qs {
		f.questions[q.ID] = q
	}
	return f
}

func (f *fakeQuestions) FindQuestions(_ context.Context, _ string, fl qbank.Filter) ([]int64, error) {
	ids := make([]int64, 0, len(f.questions))
	for id, q := range f.questions {
		if fl.Tier == qbank.TierFree && q.Tier != qbank.TierFree {
			continue
		}
		if len(fl.CategoryIDs) > 0 && !hasAnyCategory(q, fl.CategoryIDs) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if fl.Limit > 0 && len(ids) > fl.Limit {
		ids = ids[:fl.Limit]
	}
	return ids, nil
}

func hasAnyCategory(q qbank.Question, cats []int64) bool {
	for _, want := range cats {
		for _, have := range q.CategoryIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

func (f *fakeQuestions) GetQuestion(_ context.Context, id int64) (qbank.Question, error) {
	q, ok := f.questions[id]
	if !ok {
		return qbank.Question{}, fmt.Errorf("question %d: %w", id, qbank.ErrNotFound)
	}
	return q, nil
}

func (f *fakeQuestions) RecordSelection(_ context.Context, questionID int64, optionIndex int) error {
	f.selections[questionID] = append(f.selections[questionID], optionIndex)
	return nil
}

func (f *fakeQuestions) CountQuestions(_ context.Context, tier qbank.Tier) (int, error) {
	n := 0
	for _, q := range f.questions {
		if tier == qbank.TierFree && q.Tier != qbank.TierFree {
			continue
		}
		n++
	}
	return n, nil
}

type fakeSessions struct {
	sessions map[string]*qbank.Session
	seq      int
	now      time.Time

	// beforeUpdate runs once at the top of the next Update call, letting a
	// test interleave a second writer between a caller's read and write.
	beforeUpdate func()
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*qbank.Session{}, now: time.Now()}
}

func (f *fakeSessions) Create(_ context.Context, userID string, mode qbank.Mode, questionIDs []int64) (qbank.Session, error) {
	f.seq++
	sess := qbank.Session{
		ID:          fmt.Sprintf("sess-%d", f.seq),
		UserID:      userID,
		Mode:        mode,
		QuestionIDs: append([]int64(nil), questionIDs...),
		Answers:     map[int64]int{},
		States:      map[int64]qbank.Outcome{},
		CreatedAt:   f.now,
		UpdatedAt:   f.now,
		ExpiresAt:   f.now.Add(24 * time.Hour),
		Active:      true,
	}
	f.sessions[sess.ID] = &sess
	return sess, nil
}

func (f *fakeSessions) live(userID, sessionID string) *qbank.Session {
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID || !s.Active || !s.ExpiresAt.After(f.now) {
		return nil
	}
	return s
}

func (f *fakeSessions) GetActive(_ context.Context, userID string) (qbank.Session, error) {
	var latest *qbank.Session
	for _, s := range f.sessions {
		if s.UserID != userID || !s.Active || !s.ExpiresAt.After(f.now) {
			continue
		}
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return qbank.Session{}, qbank.ErrExpired
	}
	return cloneSession(latest), nil
}

func (f *fakeSessions) GetByID(_ context.Context, userID, sessionID string) (qbank.Session, error) {
	s := f.live(userID, sessionID)
	if s == nil {
		return qbank.Session{}, qbank.ErrExpired
	}
	return cloneSession(s), nil
}

func (f *fakeSessions) Update(_ context.Context, userID, sessionID string, currentIndex int, answers map[int64]int, states map[int64]qbank.Outcome, version int64) error {
	if f.beforeUpdate != nil {
		hook := f.beforeUpdate
		f.beforeUpdate = nil
		hook()
	}
	s := f.live(userID, sessionID)
	if s == nil {
		return qbank.ErrExpired
	}
	if s.Version != version {
		return qbank.ErrConflict
	}
	s.CurrentIndex = currentIndex
	s.Answers = answers
	s.States = states
	s.UpdatedAt = f.now
	s.Version++
	return nil
}

func (f *fakeSessions) Deactivate(_ context.Context, userID, sessionID string) error {
	for _, s := range f.sessions {
		if s.UserID != userID {
			continue
		}
		if sessionID == "" || s.ID == sessionID {
			s.Active = false
		}
	}
	return nil
}

func (f *fakeSessions) ListActive(_ context.Context, userID string) ([]qbank.SessionSummary, error) {
	out := make([]qbank.SessionSummary, 0)
	for _, s := range f.sessions {
		if s.UserID != userID || !s.Active || !s.ExpiresAt.After(f.now) {
			continue
		}
		out = append(out, qbank.SessionSummary{
			SessionID:      s.ID,
			Mode:           s.Mode,
			CurrentIndex:   s.CurrentIndex,
			TotalQuestions: len(s.QuestionIDs),
			AnsweredCount:  len(s.Answers),
		})
	}
	return out, nil
}

func (f *fakeSessions) Stats(_ context.Context, userID string) (qbank.SessionStats, error) {
	var st qbank.SessionStats
	for _, s := range f.sessions {
		if s.UserID != userID {
			continue
		}
		st.TotalSessions++
		if s.Mode == qbank.ModeMock {
			st.MockSessions++
		} else {
			st.PracticeSessions++
		}
		if s.Active && s.ExpiresAt.After(f.now) {
			st.ActiveSessions++
		}
	}
	return st, nil
}

func (f *fakeSessions) Sweep(_ context.Context) (qbank.SweepResult, error) {
	return qbank.SweepResult{}, nil
}

func cloneSession(s *qbank.Session) qbank.Session {
	out := *s
	out.QuestionIDs = append([]int64(nil), s.QuestionIDs...)
	out.Answers = map[int64]int{}
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	out.States = map[int64]qbank.Outcome{}
	for k, v := range s.States {
		out.States[k] = v
	}
	return out
}

type fakeLedger struct {
	rows []qbank.ProgressRow
	seq  int
}

func (f *fakeLedger) Record(_ context.Context, userID string, questionID int64, answerIndex int, correct bool) error {
	status := qbank.OutcomeIncorrect
	if correct {
		status = qbank.OutcomeCorrect
	}
	reattempt := false
	for _, r := range f.rows {
		if r.UserID == userID && r.QuestionID == questionID && !r.IsReattempt {
			reattempt = true
			break
		}
	}
	f.seq++
	f.rows = append(f.rows, qbank.ProgressRow{
		UserID:      userID,
		QuestionID:  questionID,
		AnswerIndex: answerIndex,
		Status:      status,
		IsReattempt: reattempt,
		CreatedAt:   time.Now().Add(time.Duration(f.seq) * time.Second),
	})
	return nil
}

func (f *fakeLedger) AnsweredOutcomes(_ context.Context, userID string) (map[int64]qbank.Outcome, error) {
	out := map[int64]qbank.Outcome{}
	for _, r := range f.rows {
		if r.UserID == userID && !r.IsReattempt {
			out[r.QuestionID] = r.Status
		}
	}
	return out, nil
}

func (f *fakeLedger) LifetimeStats(_ context.Context, userID string, _ qbank.Tier) (qbank.LifetimeStats, error) {
	var st qbank.LifetimeStats
	for _, r := range f.rows {
		if r.UserID != userID || r.IsReattempt {
			continue
		}
		st.Total++
		if r.Status == qbank.OutcomeCorrect {
			st.Correct++
		}
	}
	if st.Total > 0 {
		st.Percentage = float64(st.Correct) / float64(st.Total) * 100
	}
	return st, nil
}

func (f *fakeLedger) StillIncorrectIDs(_ context.Context, userID string, _ []int64) ([]int64, error) {
	resolved := map[int64]bool{}
	for _, r := range f.rows {
		if r.UserID == userID && r.IsReattempt && r.Status == qbank.OutcomeCorrect {
			resolved[r.QuestionID] = true
		}
	}
	var ids []int64
	for i := len(f.rows) - 1; i >= 0; i-- {
		r := f.rows[i]
		if r.UserID == userID && !r.IsReattempt && r.Status == qbank.OutcomeIncorrect && !resolved[r.QuestionID] {
			ids = append(ids, r.QuestionID)
		}
	}
	return ids, nil
}

func (f *fakeLedger) LatestAttempt(_ context.Context, userID string, questionID int64) (qbank.ProgressRow, error) {
	for i := len(f.rows) - 1; i >= 0; i-- {
		r := f.rows[i]
		if r.UserID == userID && r.QuestionID == questionID {
			return r, nil
		}
	}
	return qbank.ProgressRow{}, qbank.ErrNotFound
}

func (f *fakeLedger) Distribution(_ context.Context, questionID int64) (qbank.Distribution, error) {
	var dist qbank.Distribution
	users := map[string]bool{}
	for _, r := range f.rows {
		if r.QuestionID != questionID {
			continue
		}
		users[r.UserID] = true
		if r.AnswerIndex >= 0 && r.AnswerIndex < qbank.NumOptions {
			dist.Options[r.AnswerIndex].Count++
		}
	}
	dist.TotalRespondents = len(users)
	return dist, nil
}

func (f *fakeLedger) Heatmap(_ context.Context, userID string, since time.Time) ([]qbank.HeatmapDay, error) {
	byDay := map[string]*qbank.HeatmapDay{}
	for _, r := range f.rows {
		if r.UserID != userID || r.CreatedAt.Before(since) {
			continue
		}
		key := r.CreatedAt.UTC().Format("2006-01-02")
		d, ok := byDay[key]
		if !ok {
			d = &qbank.HeatmapDay{Date: key}
			byDay[key] = d
		}
		d.Total++
		if r.Status == qbank.OutcomeCorrect {
			d.Correct++
		} else {
			d.Incorrect++
		}
	}
	out := make([]qbank.HeatmapDay, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (f *fakeLedger) Reset(_ context.Context, userID string) error {
	kept := f.rows[:0]
	for _, r := range f.rows {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	f.rows = kept
	return nil
}

type fakeCategories struct {
	cats     []qbank.Category
	terms    []qbank.QuestionTerm
	orderMap map[int64][]int64
}

func (f *fakeCategories) AllCategories(_ context.Context) ([]qbank.Category, error) {
	return f.cats, nil
}

func (f *fakeCategories) QuestionTerms(_ context.Context, _ qbank.Tier) ([]qbank.QuestionTerm, error) {
	return f.terms, nil
}

func (f *fakeCategories) TermsFor(_ context.Context, questionIDs []int64) (map[int64][]qbank.Category, error) {
	byID := map[int64]qbank.Category{}
	for _, c := range f.cats {
		byID[c.ID] = c
	}
	out := map[int64][]qbank.Category{}
	for _, qid := range questionIDs {
		for _, t := range f.terms {
			if t.QuestionID == qid {
				out[qid] = append(out[qid], byID[t.CategoryID])
			}
		}
	}
	return out, nil
}

func (f *fakeCategories) OrderMap(_ context.Context) (map[int64][]int64, error) {
	if f.orderMap == nil {
		return map[int64][]int64{}, nil
	}
	return f.orderMap, nil
}

func (f *fakeCategories) SetOrder(_ context.Context, parentID int64, orderedIDs []int64) error {
	if f.orderMap == nil {
		f.orderMap = map[int64][]int64{}
	}
	f.orderMap[parentID] = orderedIDs
	return nil
}
