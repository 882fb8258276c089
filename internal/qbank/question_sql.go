package qbank

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

func (s *SQLStore) FindQuestions(ctx context.Context, userID string, f Filter) ([]int64, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Tier == TierFree {
		where = append(where, "q.tier = "+arg(string(TierFree)))
	}
	if len(f.CategoryIDs) > 0 {
		subtree, err := s.expandSubtree(ctx, f.CategoryIDs)
		if err != nil {
			return nil, err
		}
		marks := make([]string, len(subtree))
		for i, id := range subtree {
			marks[i] = arg(id)
		}
		where = append(where, fmt.Sprintf(
			"q.id IN (SELECT qc.question_id FROM question_categories qc WHERE qc.category_id IN (%s))",
			strings.Join(marks, ",")))
	}
	switch f.Status {
	case "", StatusAll:
	case StatusUnattempted:
		// Any progress row, reattempts included, excludes a question.
		where = append(where, fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM user_progress pr WHERE pr.user_id = %s AND pr.question_id = q.id)",
			arg(userID)))
	case StatusIncorrect:
		// First attempt incorrect and never since resolved by a correct
		// reattempt.
		where = append(where, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM user_progress p1
			   WHERE p1.user_id = %s AND p1.question_id = q.id
			     AND p1.status = 'incorrect' AND p1.is_reattempt = 0)
			 AND NOT EXISTS (SELECT 1 FROM user_progress p2
			   WHERE p2.user_id = %s AND p2.question_id = q.id
			     AND p2.status = 'correct' AND p2.is_reattempt = 1)`,
			arg(userID), arg(userID)))
	default:
		return nil, fmt.Errorf("%w: unknown status filter %q", ErrInvalidInput, f.Status)
	}

	query := "SELECT q.id FROM questions q"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch f.Order {
	case OrderRandom:
		query += " ORDER BY RANDOM()"
	default:
		query += " ORDER BY q.id"
	}
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) GetQuestion(ctx context.Context, id int64) (Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, prompt, options, correct_index, explanation, tier FROM questions WHERE id = $1`, id)
	var (
		q           Question
		optionsJSON string
	)
	if err := row.Scan(&q.ID, &q.Prompt, &optionsJSON, &q.CorrectIndex, &q.Explanation, &q.Tier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, fmt.Errorf("question %d: %w", id, ErrNotFound)
		}
		return Question{}, err
	}
	if err := json.Unmarshal([]byte(optionsJSON), &q.Options); err != nil {
		return Question{}, fmt.Errorf("question %d: corrupt options: %v", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category_id FROM question_categories WHERE question_id = $1 ORDER BY category_id`, id)
	if err != nil {
		return Question{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int64
		if err := rows.Scan(&cid); err != nil {
			return Question{}, err
		}
		q.CategoryIDs = append(q.CategoryIDs, cid)
	}
	return q, rows.Err()
}

// RecordSelection bumps the cumulative tally for one option. Each call is
// one real selection event; the counter only grows.
func (s *SQLStore) RecordSelection(ctx context.Context, questionID int64, optionIndex int) error {
	if optionIndex < 0 || optionIndex >= NumOptions {
		return fmt.Errorf("%w: option index %d", ErrInvalidInput, optionIndex)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO option_counts (question_id, option_index, count) VALUES ($1, $2, 1)
		 ON CONFLICT (question_id, option_index) DO UPDATE SET count = option_counts.count + 1`,
		questionID, optionIndex)
	return err
}

// OptionCounts returns the raw cumulative selection counters. Distribution
// percentages come from the ledger instead, for consistency with
// correctness semantics.
func (s *SQLStore) OptionCounts(ctx context.Context, questionID int64) ([NumOptions]int64, error) {
	var counts [NumOptions]int64
	rows, err := s.db.QueryContext(ctx,
		`SELECT option_index, count FROM option_counts WHERE question_id = $1`, questionID)
	if err != nil {
		return counts, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			idx int
			n   int64
		)
		if err := rows.Scan(&idx, &n); err != nil {
			return counts, err
		}
		if idx >= 0 && idx < NumOptions {
			counts[idx] = n
		}
	}
	return counts, rows.Err()
}

func (s *SQLStore) CountQuestions(ctx context.Context, tier Tier) (int, error) {
	query := `SELECT COUNT(*) FROM questions`
	var args []any
	if tier == TierFree {
		query += ` WHERE tier = $1`
		args = append(args, string(TierFree))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// AddQuestion inserts a question with its category memberships. Used by
// seeding and tests; the import pipeline itself lives elsewhere.
func (s *SQLStore) AddQuestion(ctx context.Context, q Question) (int64, error) {
	if len(q.Options) != NumOptions {
		return 0, fmt.Errorf("%w: question needs exactly %d options", ErrInvalidInput, NumOptions)
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= NumOptions {
		return 0, fmt.Errorf("%w: correct index %d", ErrInvalidInput, q.CorrectIndex)
	}
	tier := q.Tier
	if tier == "" {
		tier = TierFree
	}
	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO questions (prompt, options, correct_index, explanation, tier)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		q.Prompt, string(optionsJSON), q.CorrectIndex, q.Explanation, string(tier)).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, cid := range q.CategoryIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO question_categories (question_id, category_id) VALUES ($1, $2)`, id, cid); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLStore) expandSubtree(ctx context.Context, selected []int64) ([]int64, error) {
	cats, err := s.AllCategories(ctx)
	if err != nil {
		return nil, err
	}
	return SubtreeIDs(cats, selected), nil
}
