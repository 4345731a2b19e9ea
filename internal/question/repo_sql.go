package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrInsufficientPool means the eligible question pool is smaller than the
// requested sample size. Surfaced before any attempt row is written.
var ErrInsufficientPool = errors.New("not enough questions in pool")

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

// SampleIDs picks count distinct question ids uniformly at random from the
// eligible pool. categoryID == "" means the whole bank. The pool size is
// verified first so callers never start writing with a short sample.
func (r *SQLRepo) SampleIDs(ctx context.Context, categoryID string, count int) ([]string, error) {
	if count < 1 {
		return nil, fmt.Errorf("sample count must be >= 1, got %d", count)
	}

	var (
		pool int
		err  error
	)
	if categoryID == "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&pool)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE category_id=$1`, categoryID).Scan(&pool)
	}
	if err != nil {
		return nil, fmt.Errorf("count pool: %w", err)
	}
	if pool < count {
		return nil, ErrInsufficientPool
	}

	var rows *sql.Rows
	if categoryID == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id FROM questions ORDER BY RANDOM() LIMIT $1`, count)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id FROM questions WHERE category_id=$1 ORDER BY RANDOM() LIMIT $2`, categoryID, count)
	}
	if err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, count)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) < count {
		// Pool shrank between the count and the select.
		return nil, ErrInsufficientPool
	}
	return ids, nil
}

// GetMany loads the given questions with their full choice lists, answer keys
// included. Callers serving students must strip the is_correct flags
// themselves. Missing ids are an error: a snapshot should never reference a
// question the bank cannot produce.
func (r *SQLRepo) GetMany(ctx context.Context, ids []string) ([]Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	in := strings.Join(ph, ",")

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, qtype, prompt, explanation, category_id FROM questions WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Question, len(ids))
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.Type, &q.Prompt, &q.Explanation, &q.CategoryID); err != nil {
			return nil, err
		}
		byID[q.ID] = &q
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(byID) != len(ids) {
		return nil, fmt.Errorf("question bank missing %d of %d requested questions", len(ids)-len(byID), len(ids))
	}

	crows, err := r.db.QueryContext(ctx,
		`SELECT question_id, id, label, is_correct FROM question_choices WHERE question_id IN (`+in+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("load choices: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var (
			qid string
			c   Choice
		)
		if err := crows.Scan(&qid, &c.ID, &c.Label, &c.IsCorrect); err != nil {
			return nil, err
		}
		if q, ok := byID[qid]; ok {
			q.Choices = append(q.Choices, c)
		}
	}
	if err := crows.Err(); err != nil {
		return nil, err
	}

	// Preserve caller order.
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byID[id])
	}
	return out, nil
}
