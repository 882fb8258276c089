package qbank

import (
	"context"
	"encoding/json"
	"fmt"
)

func (s *SQLStore) AllCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, parent_id FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (s *SQLStore) AddCategory(ctx context.Context, name string, parentID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (name, parent_id) VALUES ($1, $2) RETURNING id`,
		name, parentID).Scan(&id)
	return id, err
}

func (s *SQLStore) QuestionTerms(ctx context.Context, tier Tier) ([]QuestionTerm, error) {
	query := `SELECT qc.question_id, qc.category_id
		FROM question_categories qc
		JOIN questions q ON q.id = qc.question_id`
	var args []any
	if tier == TierFree {
		query += ` WHERE q.tier = $1`
		args = append(args, string(TierFree))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []QuestionTerm
	for rows.Next() {
		var t QuestionTerm
		if err := rows.Scan(&t.QuestionID, &t.CategoryID); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

func (s *SQLStore) TermsFor(ctx context.Context, questionIDs []int64) (map[int64][]Category, error) {
	out := make(map[int64][]Category)
	if len(questionIDs) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT qc.question_id, c.id, c.name, c.parent_id
		FROM question_categories qc
		JOIN categories c ON c.id = qc.category_id
		WHERE qc.question_id IN (%s)`, placeholders(1, len(questionIDs)))
	rows, err := s.db.QueryContext(ctx, query, int64Args(questionIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			qid int64
			c   Category
		)
		if err := rows.Scan(&qid, &c.ID, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		out[qid] = append(out[qid], c)
	}
	return out, rows.Err()
}

func (s *SQLStore) OrderMap(ctx context.Context) (map[int64][]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT parent_id, ordered_ids FROM category_order`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]int64)
	for rows.Next() {
		var (
			parentID int64
			idsJSON  string
		)
		if err := rows.Scan(&parentID, &idsJSON); err != nil {
			return nil, err
		}
		var ids []int64
		if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
			return nil, fmt.Errorf("category order for parent %d: corrupt id list: %v", parentID, err)
		}
		out[parentID] = ids
	}
	return out, rows.Err()
}

func (s *SQLStore) SetOrder(ctx context.Context, parentID int64, orderedIDs []int64) error {
	if parentID < 0 {
		return fmt.Errorf("%w: parent id %d", ErrInvalidInput, parentID)
	}
	buf, err := json.Marshal(orderedIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO category_order (parent_id, ordered_ids) VALUES ($1, $2)
		 ON CONFLICT (parent_id) DO UPDATE SET ordered_ids = excluded.ordered_ids`,
		parentID, string(buf))
	return err
}
