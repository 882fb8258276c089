package qbank

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medprep/qbank/internal/id"
)

// Session rows keep the question list and answer maps as JSON columns, one
// row per (user, token). Expiry is evaluated lazily at read time against the
// stored unix timestamp; nothing wakes up to expire a session.

func (s *SQLStore) Create(ctx context.Context, userID string, mode Mode, questionIDs []int64) (Session, error) {
	if len(questionIDs) == 0 {
		return Session{}, fmt.Errorf("%w: empty question list", ErrInvalidInput)
	}
	now := s.now()
	sess := Session{
		ID:          id.Token(),
		UserID:      userID,
		Mode:        mode,
		QuestionIDs: questionIDs,
		Answers:     map[int64]int{},
		States:      map[int64]Outcome{},
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.sessionTTL),
		Active:      true,
	}
	qids, err := json.Marshal(sess.QuestionIDs)
	if err != nil {
		return Session{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_sessions
		   (user_id, session_id, mode, question_ids, current_index, answers, states, created_at, updated_at, expires_at, is_active, version)
		 VALUES ($1, $2, $3, $4, 0, '{}', '{}', $5, $6, $7, 1, 0)`,
		userID, sess.ID, string(mode), string(qids),
		now.Unix(), now.Unix(), sess.ExpiresAt.Unix())
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *SQLStore) GetActive(ctx context.Context, userID string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, session_id, mode, question_ids, current_index, answers, states,
		        created_at, updated_at, expires_at, is_active, version
		 FROM user_sessions
		 WHERE user_id = $1 AND is_active = 1 AND expires_at > $2
		 ORDER BY updated_at DESC LIMIT 1`,
		userID, s.now().Unix())
	return scanSession(row)
}

func (s *SQLStore) GetByID(ctx context.Context, userID, sessionID string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, session_id, mode, question_ids, current_index, answers, states,
		        created_at, updated_at, expires_at, is_active, version
		 FROM user_sessions
		 WHERE user_id = $1 AND session_id = $2 AND is_active = 1 AND expires_at > $3`,
		userID, sessionID, s.now().Unix())
	return scanSession(row)
}

// Update is a compare-and-swap on the session row: the write only applies
// while the stored version equals the one the caller read. A lost compare
// distinguishes a concurrent writer (ErrConflict) from a closed or missing
// row (ErrExpired).
func (s *SQLStore) Update(ctx context.Context, userID, sessionID string, currentIndex int, answers map[int64]int, states map[int64]Outcome, version int64) error {
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	statesJSON, err := json.Marshal(states)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_sessions
		 SET current_index = $1, answers = $2, states = $3, updated_at = $4, version = version + 1
		 WHERE user_id = $5 AND session_id = $6 AND is_active = 1 AND version = $7`,
		currentIndex, string(answersJSON), string(statesJSON), s.now().Unix(),
		userID, sessionID, version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var stored int64
		err := s.db.QueryRowContext(ctx,
			`SELECT version FROM user_sessions WHERE user_id = $1 AND session_id = $2 AND is_active = 1`,
			userID, sessionID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrExpired
		}
		if err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (s *SQLStore) Deactivate(ctx context.Context, userID, sessionID string) error {
	query := `UPDATE user_sessions SET is_active = 0, updated_at = $1 WHERE user_id = $2 AND is_active = 1`
	args := []any{s.now().Unix(), userID}
	if sessionID != "" {
		query += ` AND session_id = $3`
		args = append(args, sessionID)
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLStore) ListActive(ctx context.Context, userID string) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, mode, question_ids, current_index, answers, created_at, expires_at
		 FROM user_sessions
		 WHERE user_id = $1 AND is_active = 1 AND expires_at > $2
		 ORDER BY created_at DESC`,
		userID, s.now().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SessionSummary, 0)
	for rows.Next() {
		var (
			sum          SessionSummary
			qidsJSON     string
			answersJSON  string
			createdUnix  int64
			expiresUnix  int64
			currentIndex int
		)
		if err := rows.Scan(&sum.SessionID, &sum.Mode, &qidsJSON, &currentIndex, &answersJSON, &createdUnix, &expiresUnix); err != nil {
			return nil, err
		}
		var qids []int64
		if err := json.Unmarshal([]byte(qidsJSON), &qids); err != nil {
			return nil, fmt.Errorf("session %s: corrupt question list: %v", sum.SessionID, err)
		}
		answers := map[int64]int{}
		if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
			return nil, fmt.Errorf("session %s: corrupt answers: %v", sum.SessionID, err)
		}
		sum.CurrentIndex = currentIndex
		sum.TotalQuestions = len(qids)
		sum.AnsweredCount = len(answers)
		if sum.TotalQuestions > 0 {
			sum.ProgressPercent = int(float64(sum.AnsweredCount)/float64(sum.TotalQuestions)*100 + 0.5)
		}
		sum.CreatedAt = time.Unix(createdUnix, 0).UTC()
		sum.ExpiresAt = time.Unix(expiresUnix, 0).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLStore) Stats(ctx context.Context, userID string) (SessionStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(CASE WHEN mode = 'practice' THEN 1 END),
		        COUNT(CASE WHEN mode = 'mock' THEN 1 END),
		        COUNT(CASE WHEN is_active = 1 AND expires_at > $2 THEN 1 END)
		 FROM user_sessions WHERE user_id = $1`,
		userID, s.now().Unix())
	var st SessionStats
	if err := row.Scan(&st.TotalSessions, &st.PracticeSessions, &st.MockSessions, &st.ActiveSessions); err != nil {
		return SessionStats{}, err
	}
	return st, nil
}

// Sweep deactivates sessions past expiry and hard-deletes inactive ones
// older than the retention window. Safe to run alongside live traffic: it
// only touches rows already expired or long inactive.
func (s *SQLStore) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	var res SweepResult

	r1, err := s.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = 0, updated_at = $1 WHERE is_active = 1 AND expires_at <= $1`,
		now.Unix())
	if err != nil {
		return res, err
	}
	res.Deactivated, _ = r1.RowsAffected()

	r2, err := s.db.ExecContext(ctx,
		`DELETE FROM user_sessions WHERE is_active = 0 AND updated_at < $1`,
		now.Add(-s.retention).Unix())
	if err != nil {
		return res, err
	}
	res.Deleted, _ = r2.RowsAffected()
	return res, nil
}

func scanSession(row *sql.Row) (Session, error) {
	var (
		sess        Session
		qidsJSON    string
		answersJSON string
		statesJSON  string
		createdUnix int64
		updatedUnix int64
		expiresUnix int64
		activeInt   int
	)
	err := row.Scan(&sess.UserID, &sess.ID, &sess.Mode, &qidsJSON, &sess.CurrentIndex,
		&answersJSON, &statesJSON, &createdUnix, &updatedUnix, &expiresUnix, &activeInt, &sess.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrExpired
		}
		return Session{}, err
	}
	if err := json.Unmarshal([]byte(qidsJSON), &sess.QuestionIDs); err != nil {
		return Session{}, fmt.Errorf("session %s: corrupt question list: %v", sess.ID, err)
	}
	sess.Answers = map[int64]int{}
	if err := json.Unmarshal([]byte(answersJSON), &sess.Answers); err != nil {
		return Session{}, fmt.Errorf("session %s: corrupt answers: %v", sess.ID, err)
	}
	sess.States = map[int64]Outcome{}
	if err := json.Unmarshal([]byte(statesJSON), &sess.States); err != nil {
		return Session{}, fmt.Errorf("session %s: corrupt states: %v", sess.ID, err)
	}
	sess.CreatedAt = time.Unix(createdUnix, 0).UTC()
	sess.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
	sess.ExpiresAt = time.Unix(expiresUnix, 0).UTC()
	sess.Active = activeInt == 1
	return sess, nil
}
