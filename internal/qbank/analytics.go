package qbank

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// Analytics computes distribution and accuracy aggregates from the progress
// ledger. Lifetime and per-specialty figures count first attempts only, so
// repeated practice never shifts the long-run accuracy base.
type Analytics struct {
	questions  QuestionRepo
	progress   ProgressLedger
	categories CategoryRepo
}

func NewAnalytics(questions QuestionRepo, progress ProgressLedger, categories CategoryRepo) *Analytics {
	return &Analytics{questions: questions, progress: progress, categories: categories}
}

// Distribution reports the per-option selection spread for one question,
// always all five slots, percentages against distinct respondents.
func (a *Analytics) Distribution(ctx context.Context, questionID int64) (Distribution, error) {
	if _, err := a.questions.GetQuestion(ctx, questionID); err != nil {
		return Distribution{}, err
	}
	return a.progress.Distribution(ctx, questionID)
}

// SpecialtyNode is per-category accuracy, aggregated upward by set union
// like the category tree.
type SpecialtyNode struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	ParentID int64            `json:"parent"`
	Correct  int              `json:"correct"`
	Total    int              `json:"total"`
	Children []*SpecialtyNode `json:"children"`
}

// PerformanceStats is the dashboard payload: lifetime accuracy plus the
// per-specialty breakdown.
type PerformanceStats struct {
	OverallCorrect    int              `json:"overall_correct"`
	OverallTotal      int              `json:"overall_total"`
	OverallPercentage float64          `json:"overall_percentage"`
	Specialties       []*SpecialtyNode `json:"specialties"`
}

func (a *Analytics) Performance(ctx context.Context, userID string, tier Tier) (PerformanceStats, error) {
	lifetime, err := a.progress.LifetimeStats(ctx, userID, tier)
	if err != nil {
		return PerformanceStats{}, err
	}
	stats := PerformanceStats{
		OverallCorrect:    lifetime.Correct,
		OverallTotal:      lifetime.Total,
		OverallPercentage: lifetime.Percentage,
	}

	cats, err := a.categories.AllCategories(ctx)
	if err != nil {
		return PerformanceStats{}, err
	}
	terms, err := a.categories.QuestionTerms(ctx, tier)
	if err != nil {
		return PerformanceStats{}, err
	}
	answered, err := a.progress.AnsweredOutcomes(ctx, userID)
	if err != nil {
		return PerformanceStats{}, err
	}

	totalSeed := make(map[int64]map[int64]struct{})
	correctSeed := make(map[int64]map[int64]struct{})
	for _, t := range terms {
		outcome, ok := answered[t.QuestionID]
		if !ok {
			continue
		}
		addToSet(totalSeed, t.CategoryID, t.QuestionID)
		if outcome == OutcomeCorrect {
			addToSet(correctSeed, t.CategoryID, t.QuestionID)
		}
	}

	nodes := make(map[int64]*SpecialtyNode, len(cats))
	for _, c := range cats {
		nodes[c.ID] = &SpecialtyNode{ID: c.ID, Name: c.Name, ParentID: c.ParentID}
	}
	children := childIndex(cats)

	var roots []*SpecialtyNode
	for _, c := range cats {
		if c.ParentID == 0 || nodes[c.ParentID] == nil {
			roots = append(roots, nodes[c.ID])
		}
	}
	for _, root := range roots {
		aggregateSpecialty(root, nodes, children, totalSeed, correctSeed, make(map[int64]bool))
	}
	sort.Slice(roots, func(i, j int) bool {
		return strings.ToLower(roots[i].Name) < strings.ToLower(roots[j].Name)
	})
	stats.Specialties = roots
	return stats, nil
}

func aggregateSpecialty(node *SpecialtyNode, nodes map[int64]*SpecialtyNode, children map[int64][]int64, totalSeed, correctSeed map[int64]map[int64]struct{}, visited map[int64]bool) (total, correct map[int64]struct{}) {
	if visited[node.ID] {
		return nil, nil
	}
	visited[node.ID] = true

	total = copySet(totalSeed[node.ID])
	correct = copySet(correctSeed[node.ID])
	for _, cid := range children[node.ID] {
		child := nodes[cid]
		if child == nil {
			continue
		}
		ct, cc := aggregateSpecialty(child, nodes, children, totalSeed, correctSeed, visited)
		node.Children = append(node.Children, child)
		mergeSet(total, ct)
		mergeSet(correct, cc)
	}
	sort.Slice(node.Children, func(i, j int) bool {
		return strings.ToLower(node.Children[i].Name) < strings.ToLower(node.Children[j].Name)
	})
	node.Total = len(total)
	node.Correct = len(correct)
	return total, correct
}

// Heatmap returns per-day attempt counts over a trailing window, every
// attempt included (reattempts too), for activity display.
func (a *Analytics) Heatmap(ctx context.Context, userID string, windowDays int) ([]HeatmapDay, error) {
	if windowDays <= 0 {
		windowDays = 180
	}
	since := time.Now().AddDate(0, 0, -windowDays)
	return a.progress.Heatmap(ctx, userID, since)
}

// IncorrectQuestions lists the caller's still-incorrect questions, newest
// first, for the review flow. A question is still incorrect only while no
// reattempt has resolved it correctly.
func (a *Analytics) IncorrectQuestions(ctx context.Context, userID string, categoryIDs []int64) ([]ReviewQuestion, error) {
	ids, err := a.progress.StillIncorrectIDs(ctx, userID, categoryIDs)
	if err != nil {
		return nil, err
	}
	out := make([]ReviewQuestion, 0, len(ids))
	for _, id := range ids {
		q, err := a.questions.GetQuestion(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // question removed since the attempt
		}
		if err != nil {
			return nil, err
		}
		attempt, err := a.progress.LatestAttempt(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, ReviewQuestion{
			ID:           q.ID,
			Prompt:       q.Prompt,
			Options:      q.Options,
			UserAnswer:   attempt.AnswerIndex,
			CorrectIndex: q.CorrectIndex,
			Explanation:  q.Explanation,
		})
	}
	return out, nil
}

// ReviewDetail is the single-question review payload: stored answer,
// correctness, explanation and the crowd distribution.
type ReviewDetail struct {
	Question     PublicQuestion `json:"question"`
	UserAnswer   *int           `json:"user_answer_index"`
	IsCorrect    *bool          `json:"is_correct"`
	CorrectIndex int            `json:"correct_choice_index"`
	Explanation  string         `json:"explanation"`
	Distribution Distribution   `json:"distribution"`
}

func (a *Analytics) ReviewQuestion(ctx context.Context, userID string, questionID int64) (ReviewDetail, error) {
	q, err := a.questions.GetQuestion(ctx, questionID)
	if err != nil {
		return ReviewDetail{}, err
	}
	dist, err := a.progress.Distribution(ctx, questionID)
	if err != nil {
		return ReviewDetail{}, err
	}
	detail := ReviewDetail{
		Question:     q.Public(),
		CorrectIndex: q.CorrectIndex,
		Explanation:  q.Explanation,
		Distribution: dist,
	}
	attempt, err := a.progress.LatestAttempt(ctx, userID, questionID)
	switch {
	case err == nil:
		answer := attempt.AnswerIndex
		correct := attempt.Status == OutcomeCorrect
		detail.UserAnswer = &answer
		detail.IsCorrect = &correct
	case !errors.Is(err, ErrNotFound):
		return ReviewDetail{}, err
	}
	return detail, nil
}

func addToSet(m map[int64]map[int64]struct{}, key, val int64) {
	set, ok := m[key]
	if !ok {
		set = make(map[int64]struct{})
		m[key] = set
	}
	set[val] = struct{}{}
}

func copySet(src map[int64]struct{}) map[int64]struct{} {
	dst := make(map[int64]struct{}, len(src))
	for k := range src {
		dst[k] = struct{}{}
	}
	return dst
}

func mergeSet(dst, src map[int64]struct{}) {
	for k := range src {
		dst[k] = struct{}{}
	}
}
