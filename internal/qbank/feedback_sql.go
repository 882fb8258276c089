package qbank

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *SQLStore) AddFeedback(ctx context.Context, userID string, questionID int64, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Errorf("%w: empty feedback", ErrInvalidInput)
	}
	if _, err := s.GetQuestion(ctx, questionID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (user_id, question_id, body, created_at) VALUES ($1, $2, $3, $4)`,
		userID, questionID, body, s.now().Unix())
	return err
}

func (s *SQLStore) ListFeedback(ctx context.Context, limit, offset int) ([]Feedback, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, question_id, body, created_at
		 FROM feedback ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Feedback, 0)
	for rows.Next() {
		var (
			f           Feedback
			createdUnix int64
		)
		if err := rows.Scan(&f.ID, &f.UserID, &f.QuestionID, &f.Body, &createdUnix); err != nil {
			return nil, err
		}
		f.CreatedAt = time.Unix(createdUnix, 0).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}
