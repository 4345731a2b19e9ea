package examdef

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("exam not found")

// Definition is the read-only view of an exam as configured by the admin
// surface. This service never mutates it.
type Definition struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	DurationSec   int    `json:"duration_sec"`
	QuestionCount int    `json:"question_count"`
	CategoryID    string `json:"category_id,omitempty"`
}

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) GetByID(ctx context.Context, id string) (Definition, error) {
	var d Definition
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, duration_sec, question_count, category_id FROM exams WHERE id=$1`, id).
		Scan(&d.ID, &d.Title, &d.DurationSec, &d.QuestionCount, &d.CategoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return Definition{}, ErrNotFound
	}
	if err != nil {
		return Definition{}, fmt.Errorf("load exam: %w", err)
	}
	return d, nil
}
