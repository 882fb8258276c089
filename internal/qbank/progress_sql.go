package qbank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Record writes one attempt. The first resolution for a (user, question)
// pair is upserted as the non-reattempt row; later attempts append
// is_reattempt=1 rows so first-attempt semantics survive any amount of
// re-practice.
func (s *SQLStore) Record(ctx context.Context, userID string, questionID int64, answerIndex int, correct bool) error {
	if answerIndex < 0 || answerIndex >= NumOptions {
		return fmt.Errorf("%w: answer index %d", ErrInvalidInput, answerIndex)
	}
	status := OutcomeIncorrect
	if correct {
		status = OutcomeCorrect
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM user_progress WHERE user_id = $1 AND question_id = $2 AND is_reattempt = 0 LIMIT 1`,
		userID, questionID).Scan(&existing)
	isReattempt := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if !isReattempt {
		// Replace semantics: never two non-reattempt rows for one pair.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_progress WHERE user_id = $1 AND question_id = $2 AND is_reattempt = 0`,
			userID, questionID); err != nil {
			return err
		}
	}
	reattemptInt := 0
	if isReattempt {
		reattemptInt = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_progress (user_id, question_id, status, answer_index, is_reattempt, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, questionID, string(status), answerIndex, reattemptInt, s.now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) AnsweredOutcomes(ctx context.Context, userID string) (map[int64]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, status FROM user_progress WHERE user_id = $1 AND is_reattempt = 0`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]Outcome)
	for rows.Next() {
		var (
			qid    int64
			status string
		)
		if err := rows.Scan(&qid, &status); err != nil {
			return nil, err
		}
		out[qid] = Outcome(status)
	}
	return out, rows.Err()
}

func (s *SQLStore) LifetimeStats(ctx context.Context, userID string, tier Tier) (LifetimeStats, error) {
	query := `SELECT COUNT(CASE WHEN pr.status = 'correct' THEN 1 END), COUNT(*)
		FROM user_progress pr
		JOIN questions q ON q.id = pr.question_id
		WHERE pr.user_id = $1 AND pr.is_reattempt = 0`
	args := []any{userID}
	if tier == TierFree {
		query += ` AND q.tier = $2`
		args = append(args, string(TierFree))
	}
	var st LifetimeStats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&st.Correct, &st.Total); err != nil {
		return LifetimeStats{}, err
	}
	if st.Total > 0 {
		st.Percentage = round1(float64(st.Correct) / float64(st.Total) * 100)
	}
	return st, nil
}

func (s *SQLStore) StillIncorrectIDs(ctx context.Context, userID string, categoryIDs []int64) ([]int64, error) {
	query := `SELECT p1.question_id
		FROM user_progress p1
		WHERE p1.user_id = $1 AND p1.status = 'incorrect' AND p1.is_reattempt = 0
		  AND NOT EXISTS (SELECT 1 FROM user_progress p2
		    WHERE p2.user_id = $1 AND p2.question_id = p1.question_id
		      AND p2.is_reattempt = 1 AND p2.status = 'correct')`
	args := []any{userID}
	if len(categoryIDs) > 0 {
		query += fmt.Sprintf(` AND p1.question_id IN (
			SELECT qc.question_id FROM question_categories qc WHERE qc.category_id IN (%s))`,
			placeholders(2, len(categoryIDs)))
		args = append(args, int64Args(categoryIDs)...)
	}
	query += ` ORDER BY p1.created_at DESC, p1.id DESC`

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

func (s *SQLStore) LatestAttempt(ctx context.Context, userID string, questionID int64) (ProgressRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, question_id, answer_index, status, is_reattempt, created_at
		 FROM user_progress WHERE user_id = $1 AND question_id = $2
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID, questionID)
	var (
		pr           ProgressRow
		status       string
		reattemptInt int
		createdUnix  int64
	)
	err := row.Scan(&pr.UserID, &pr.QuestionID, &pr.AnswerIndex, &status, &reattemptInt, &createdUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProgressRow{}, fmt.Errorf("attempt for question %d: %w", questionID, ErrNotFound)
		}
		return ProgressRow{}, err
	}
	pr.Status = Outcome(status)
	pr.IsReattempt = reattemptInt == 1
	pr.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return pr, nil
}

// Distribution counts every attempt (reattempts included) per option, with
// percentages against the number of distinct users who ever answered.
func (s *SQLStore) Distribution(ctx context.Context, questionID int64) (Distribution, error) {
	var dist Distribution

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM user_progress WHERE question_id = $1`,
		questionID).Scan(&dist.TotalRespondents); err != nil {
		return Distribution{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT answer_index,
		        COUNT(*),
		        COUNT(CASE WHEN status = 'correct' THEN 1 END)
		 FROM user_progress
		 WHERE question_id = $1 AND answer_index >= 0
		 GROUP BY answer_index ORDER BY answer_index`,
		questionID)
	if err != nil {
		return Distribution{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var idx, count, correct int
		if err := rows.Scan(&idx, &count, &correct); err != nil {
			return Distribution{}, err
		}
		if idx < 0 || idx >= NumOptions {
			continue
		}
		stat := OptionStat{Count: count, CorrectCount: correct}
		if dist.TotalRespondents > 0 {
			stat.Percentage = round1(float64(count) / float64(dist.TotalRespondents) * 100)
		}
		dist.Options[idx] = stat
	}
	return dist, rows.Err()
}

func (s *SQLStore) Heatmap(ctx context.Context, userID string, since time.Time) ([]HeatmapDay, error) {
	day := `date(created_at, 'unixepoch')`
	if s.driver == "postgres" {
		day = `to_char(to_timestamp(created_at), 'YYYY-MM-DD')`
	}
	query := fmt.Sprintf(
		`SELECT %s AS day,
		        COUNT(*),
		        COUNT(CASE WHEN status = 'correct' THEN 1 END),
		        COUNT(CASE WHEN status = 'incorrect' THEN 1 END)
		 FROM user_progress
		 WHERE user_id = $1 AND created_at >= $2
		 GROUP BY day ORDER BY day`, day)

	rows, err := s.db.QueryContext(ctx, query, userID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]HeatmapDay, 0)
	for rows.Next() {
		var d HeatmapDay
		if err := rows.Scan(&d.Date, &d.Total, &d.Correct, &d.Incorrect); err != nil {
			return nil, err
		}
		d.Date = strings.TrimSpace(d.Date)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLStore) Reset(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_progress WHERE user_id = $1`, userID)
	return err
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
