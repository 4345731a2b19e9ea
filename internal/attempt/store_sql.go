package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/examdesk/examdesk/internal/grading"
	"github.com/examdesk/examdesk/internal/question"
)

// SQLStore owns the attempts, attempt_questions and attempt_answers tables.
// All coordination between concurrent submitters is expressed as a single
// conditional UPDATE against the attempt row; there is no read-then-write
// window anywhere in the submit path.
type SQLStore struct {
	db     *sql.DB
	defs   DefinitionSource
	bank   QuestionBank
	grader grading.Grader
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, defs DefinitionSource, bank QuestionBank, grader grading.Grader) *SQLStore {
	return &SQLStore{db: db, defs: defs, bank: bank, grader: grader, now: time.Now}
}

// Start samples the exam's question set and creates the attempt together with
// its full snapshot in one transaction. A crash between the two inserts can
// never leave an attempt with a partial question set.
func (s *SQLStore) Start(ctx context.Context, userID, examID string) (StartResult, error) {
	if userID == "" || examID == "" {
		return StartResult{}, fmt.Errorf("%w: user and exam ids required", ErrInvalidInput)
	}

	def, err := s.defs.GetByID(ctx, examID)
	if err != nil {
		return StartResult{}, err
	}

	// Pool sufficiency is checked here, before any write.
	ids, err := s.bank.SampleIDs(ctx, def.CategoryID, def.QuestionCount)
	if err != nil {
		return StartResult{}, err
	}
	qs, err := s.bank.GetMany(ctx, ids)
	if err != nil {
		return StartResult{}, err
	}

	attemptID := uuid.NewString()
	startedAt := s.now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StartResult{}, fmt.Errorf("begin start tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (id, exam_id, user_id, status, started_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		attemptID, examID, userID, StatusInProgress, startedAt); err != nil {
		return StartResult{}, fmt.Errorf("insert attempt: %w", err)
	}
	for _, qid := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attempt_questions (attempt_id, question_id) VALUES ($1,$2)`,
			attemptID, qid); err != nil {
			return StartResult{}, fmt.Errorf("insert snapshot row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return StartResult{}, fmt.Errorf("commit start tx: %w", err)
	}

	out := StartResult{
		AttemptID:   attemptID,
		ExamID:      def.ID,
		ExamTitle:   def.Title,
		DurationSec: def.DurationSec,
		Questions:   make([]QuestionView, 0, len(qs)),
	}
	for _, q := range qs {
		view := QuestionView{ID: q.ID, Type: q.Type, Prompt: q.Prompt,
			Choices: make([]ChoiceView, 0, len(q.Choices))}
		for _, c := range q.Choices {
			view.Choices = append(view.Choices, ChoiceView{ID: c.ID, Label: c.Label})
		}
		out.Questions = append(out.Questions, view)
	}
	return out, nil
}

// Submit grades an attempt exactly once. The first statement of the
// transaction flips status in_progress -> completed conditionally on current
// status and ownership; whichever caller sees rows-affected == 1 is the only
// one that proceeds to grade. Everything after the flip is in the same
// transaction, so any failure rolls the attempt back to in_progress with no
// answer rows, leaving it safely retryable.
func (s *SQLStore) Submit(ctx context.Context, attemptID, userID string, answers map[string][]string) (SubmitResult, error) {
	if attemptID == "" || userID == "" {
		return SubmitResult{}, fmt.Errorf("%w: attempt and user ids required", ErrInvalidInput)
	}
	if answers == nil {
		return SubmitResult{}, fmt.Errorf("%w: answers map required", ErrInvalidInput)
	}

	// The snapshot is immutable once created, so it is safe to read it (and
	// the answer keys, which are read-shared) before taking the write lock.
	qids, err := s.snapshotIDs(ctx, attemptID)
	if err != nil {
		return SubmitResult{}, err
	}
	var qs []question.Question
	if len(qids) > 0 {
		if qs, err = s.bank.GetMany(ctx, qids); err != nil {
			return SubmitResult{}, err
		}
	}

	finishedAt := s.now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE attempts SET status=$1, finished_at=$2
		 WHERE id=$3 AND user_id=$4 AND status=$5`,
		StatusCompleted, finishedAt, attemptID, userID, StatusInProgress)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("complete attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return SubmitResult{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return SubmitResult{}, ErrNotActive
	}

	correct := 0
	for _, q := range qs {
		// A question missing from the map grades as an empty selection.
		selected := answers[q.ID]
		ok := s.grader.Grade(selected, q.CorrectChoiceIDs())
		if ok {
			correct++
		}
		if selected == nil {
			selected = []string{}
		}
		selJSON, err := json.Marshal(selected)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("encode selection: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attempt_answers (attempt_id, question_id, selected_json, is_correct)
			 VALUES ($1,$2,$3,$4)`,
			attemptID, q.ID, string(selJSON), ok); err != nil {
			return SubmitResult{}, fmt.Errorf("insert answer: %w", err)
		}
	}

	total := len(qs)
	score := 0.0
	if total > 0 {
		score = float64(correct) / float64(total) * 100
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE attempts SET score=$1 WHERE id=$2`, score, attemptID); err != nil {
		return SubmitResult{}, fmt.Errorf("write score: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return SubmitResult{}, fmt.Errorf("commit submit tx: %w", err)
	}

	return SubmitResult{AttemptID: attemptID, Score: score, CorrectCount: correct, TotalQuestions: total}, nil
}

// Result rebuilds the full post-exam view: snapshot questions joined with the
// submitted selections and the now-disclosable answer keys.
func (s *SQLStore) Result(ctx context.Context, attemptID, userID string) (Result, error) {
	if attemptID == "" || userID == "" {
		return Result{}, fmt.Errorf("%w: attempt and user ids required", ErrInvalidInput)
	}

	var (
		a     Attempt
		score sql.NullFloat64
		fin   sql.NullInt64
		title string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT a.id, a.exam_id, a.user_id, a.status, a.score, a.started_at, a.finished_at, e.title
		   FROM attempts a JOIN exams e ON e.id = a.exam_id
		  WHERE a.id=$1`, attemptID).
		Scan(&a.ID, &a.ExamID, &a.UserID, &a.Status, &score, &a.StartedAt, &fin, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("load attempt: %w", err)
	}
	// Ownership failures and in-progress attempts both read as "no result".
	if a.UserID != userID || a.Status != StatusCompleted {
		return Result{}, ErrNotFound
	}

	qids, err := s.snapshotIDs(ctx, attemptID)
	if err != nil {
		return Result{}, err
	}
	qs, err := s.bank.GetMany(ctx, qids)
	if err != nil {
		return Result{}, err
	}

	type submitted struct {
		selected  []string
		isCorrect bool
	}
	subs := make(map[string]submitted, len(qids))
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, selected_json, is_correct FROM attempt_answers WHERE attempt_id=$1`, attemptID)
	if err != nil {
		return Result{}, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			qid     string
			selJSON string
			sub     submitted
		)
		if err := rows.Scan(&qid, &selJSON, &sub.isCorrect); err != nil {
			return Result{}, err
		}
		if err := json.Unmarshal([]byte(selJSON), &sub.selected); err != nil {
			return Result{}, fmt.Errorf("decode selection for %s: %w", qid, err)
		}
		subs[qid] = sub
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	out := Result{
		AttemptID:      a.ID,
		ExamTitle:      title,
		StartedAt:      a.StartedAt,
		TotalQuestions: len(qs),
		Questions:      make([]QuestionResult, 0, len(qs)),
	}
	if score.Valid {
		out.Score = score.Float64
	}
	if fin.Valid {
		out.FinishedAt = fin.Int64
	}
	for _, q := range qs {
		qr := QuestionResult{
			QuestionID:  q.ID,
			Type:        q.Type,
			Prompt:      q.Prompt,
			Explanation: q.Explanation,
			SelectedIDs: []string{},
			Choices:     make([]ResultChoice, 0, len(q.Choices)),
		}
		for _, c := range q.Choices {
			qr.Choices = append(qr.Choices, ResultChoice{ID: c.ID, Label: c.Label, IsCorrect: c.IsCorrect})
		}
		if sub, ok := subs[q.ID]; ok {
			if sub.selected != nil {
				qr.SelectedIDs = sub.selected
			}
			qr.IsCorrect = sub.isCorrect
		}
		if qr.IsCorrect {
			out.CorrectCount++
		}
		out.Questions = append(out.Questions, qr)
	}
	return out, nil
}

// List returns attempt rows matching the filters, newest first. Callers are
// responsible for scoping UserID to the requesting subject where required.
func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]Attempt, error) {
	q := `SELECT id, exam_id, user_id, status, score, started_at, finished_at FROM attempts`
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.ExamID != "" {
		add("exam_id=$%d", opts.ExamID)
	}
	if opts.UserID != "" {
		add("user_id=$%d", opts.UserID)
	}
	if opts.Status != "" {
		add("status=$%d", opts.Status)
	}
	for i, c := range where {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}
	q += " ORDER BY started_at DESC"
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a     Attempt
			score sql.NullFloat64
			fin   sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Status, &score, &a.StartedAt, &fin); err != nil {
			return nil, err
		}
		if score.Valid {
			v := score.Float64
			a.Score = &v
		}
		if fin.Valid {
			v := fin.Int64
			a.FinishedAt = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) snapshotIDs(ctx context.Context, attemptID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id FROM attempt_questions WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
