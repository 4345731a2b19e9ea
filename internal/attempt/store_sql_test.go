package attempt_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/examdesk/examdesk/internal/attempt"
	"github.com/examdesk/examdesk/internal/db"
	"github.com/examdesk/examdesk/internal/examdef"
	"github.com/examdesk/examdesk/internal/grading"
	"github.com/examdesk/examdesk/internal/question"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	dbh, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	dbh.SetMaxOpenConns(1)
	if err := db.EnsureSchema(context.Background(), dbh, db.DriverSQLite); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	return dbh
}

func newStore(t *testing.T) (*attempt.SQLStore, *sql.DB) {
	t.Helper()
	dbh := newTestDB(t)
	store := attempt.NewSQLStore(dbh,
		examdef.NewSQLRepo(dbh),
		question.NewSQLRepo(dbh),
		grading.NewSetGrader())
	return store, dbh
}

func seedExam(t *testing.T, dbh *sql.DB, id string, count int, category string) {
	t.Helper()
	if _, err := dbh.Exec(
		`INSERT INTO exams (id, title, duration_sec, question_count, category_id, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		id, "Exam "+id, 1800, count, category, time.Now().Unix()); err != nil {
		t.Fatalf("seed exam: %v", err)
	}
}

// seedQuestion creates one question whose correct choices are listed first,
// so the key for question q is q-c1..q-cN for N correct labels.
func seedQuestion(t *testing.T, dbh *sql.DB, id, category string, correct, wrong []string) {
	t.Helper()
	if _, err := dbh.Exec(
		`INSERT INTO questions (id, category_id, qtype, prompt, explanation, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		id, category, "single_choice", "prompt "+id, "explanation "+id, time.Now().Unix()); err != nil {
		t.Fatalf("seed question: %v", err)
	}
	n := 0
	for _, label := range correct {
		n++
		if _, err := dbh.Exec(
			`INSERT INTO question_choices (id, question_id, label, is_correct) VALUES ($1,$2,$3,$4)`,
			fmt.Sprintf("%s-c%d", id, n), id, label, true); err != nil {
			t.Fatalf("seed choice: %v", err)
		}
	}
	for _, label := range wrong {
		n++
		if _, err := dbh.Exec(
			`INSERT INTO question_choices (id, question_id, label, is_correct) VALUES ($1,$2,$3,$4)`,
			fmt.Sprintf("%s-c%d", id, n), id, label, false); err != nil {
			t.Fatalf("seed choice: %v", err)
		}
	}
}

func correctChoiceIDs(t *testing.T, dbh *sql.DB, questionID string) []string {
	t.Helper()
	rows, err := dbh.Query(
		`SELECT id FROM question_choices WHERE question_id=$1 AND is_correct ORDER BY id`, questionID)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan key: %v", err)
		}
		out = append(out, id)
	}
	return out
}

// fullMarks builds the answer map a perfect submission would send.
func fullMarks(t *testing.T, dbh *sql.DB, start attempt.StartResult) map[string][]string {
	t.Helper()
	answers := make(map[string][]string, len(start.Questions))
	for _, q := range start.Questions {
		answers[q.ID] = correctChoiceIDs(t, dbh, q.ID)
	}
	return answers
}

func attemptRow(t *testing.T, dbh *sql.DB, id string) (status string, score sql.NullFloat64) {
	t.Helper()
	if err := dbh.QueryRow(`SELECT status, score FROM attempts WHERE id=$1`, id).
		Scan(&status, &score); err != nil {
		t.Fatalf("load attempt row: %v", err)
	}
	return status, score
}

func TestStart_CreatesFullSnapshot(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 3, "math")
	for i := 0; i < 5; i++ {
		seedQuestion(t, dbh, fmt.Sprintf("m%d", i), "math", []string{"right"}, []string{"wrong"})
	}
	seedQuestion(t, dbh, "h1", "history", []string{"right"}, nil)

	res, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.AttemptID == "" || res.ExamTitle != "Exam exam-1" || res.DurationSec != 1800 {
		t.Fatalf("unexpected start payload: %+v", res)
	}
	if len(res.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(res.Questions))
	}

	var snapCount int
	if err := dbh.QueryRow(
		`SELECT COUNT(DISTINCT question_id) FROM attempt_questions WHERE attempt_id=$1`,
		res.AttemptID).Scan(&snapCount); err != nil {
		t.Fatalf("count snapshot: %v", err)
	}
	if snapCount != 3 {
		t.Fatalf("expected snapshot of 3 distinct questions, got %d", snapCount)
	}

	status, score := attemptRow(t, dbh, res.AttemptID)
	if status != attempt.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", status)
	}
	if score.Valid {
		t.Fatalf("score must be unset before submission")
	}
}

func TestStart_SnapshotSurvivesBankChanges(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 2, "math")
	seedQuestion(t, dbh, "m1", "math", []string{"right"}, nil)
	seedQuestion(t, dbh, "m2", "math", []string{"right"}, nil)

	res, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// New bank content after the snapshot must not change the attempt.
	seedQuestion(t, dbh, "m3", "math", []string{"right"}, nil)

	out, err := store.Submit(ctx, res.AttemptID, "u1", fullMarks(t, dbh, res))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.TotalQuestions != 2 {
		t.Fatalf("expected 2 graded questions, got %d", out.TotalQuestions)
	}
}

func TestStart_InsufficientPoolLeavesNoAttempt(t *testing.T) {
	store, dbh := newStore(t)

	seedExam(t, dbh, "exam-1", 2, "math")
	seedQuestion(t, dbh, "m1", "math", []string{"right"}, nil)

	_, err := store.Start(context.Background(), "u1", "exam-1")
	if !errors.Is(err, question.ErrInsufficientPool) {
		t.Fatalf("expected ErrInsufficientPool, got %v", err)
	}

	var n int
	if err := dbh.QueryRow(`SELECT COUNT(*) FROM attempts`).Scan(&n); err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no attempt rows, got %d", n)
	}
}

func TestStart_ExamNotFound(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Start(context.Background(), "u1", "ghost")
	if !errors.Is(err, examdef.ErrNotFound) {
		t.Fatalf("expected examdef.ErrNotFound, got %v", err)
	}
}

func TestSubmit_AllCorrectScoresHundred(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 2, "")
	seedQuestion(t, dbh, "q1", "", []string{"A"}, []string{"B"})
	seedQuestion(t, dbh, "q2", "", []string{"B", "C"}, []string{"D"})

	res, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	out, err := store.Submit(ctx, res.AttemptID, "u1", fullMarks(t, dbh, res))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Score != 100 || out.CorrectCount != 2 || out.TotalQuestions != 2 {
		t.Fatalf("unexpected summary: %+v", out)
	}

	status, score := attemptRow(t, dbh, res.AttemptID)
	if status != attempt.StatusCompleted || !score.Valid || score.Float64 != 100 {
		t.Fatalf("row not completed with score: status=%s score=%+v", status, score)
	}
}

func TestSubmit_ScoreFormula(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 5, "")
	for i := 1; i <= 5; i++ {
		seedQuestion(t, dbh, fmt.Sprintf("q%d", i), "", []string{"A"}, []string{"B"})
	}

	res, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// 3 right, 2 deliberately wrong.
	answers := fullMarks(t, dbh, res)
	wrong := 0
	for _, q := range res.Questions {
		if wrong == 2 {
			break
		}
		answers[q.ID] = []string{"nonexistent-choice"}
		wrong++
	}

	out, err := store.Submit(ctx, res.AttemptID, "u1", answers)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Score != 60 || out.CorrectCount != 3 || out.TotalQuestions != 5 {
		t.Fatalf("expected 3/5 = 60, got %+v", out)
	}
}

func TestSubmit_UnansweredGradesAsEmpty(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 2, "")
	seedQuestion(t, dbh, "q1", "", []string{"A"}, []string{"B"})
	seedQuestion(t, dbh, "q2", "", []string{"A"}, []string{"B"})

	res, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	answers := fullMarks(t, dbh, res)
	skipped := res.Questions[0].ID
	delete(answers, skipped)

	out, err := store.Submit(ctx, res.AttemptID, "u1", answers)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Score != 50 || out.CorrectCount != 1 {
		t.Fatalf("expected 1/2 = 50, got %+v", out)
	}

	var (
		selJSON   string
		isCorrect bool
	)
	if err := dbh.QueryRow(
		`SELECT selected_json, is_correct FROM attempt_answers WHERE attempt_id=$1 AND question_id=$2`,
		res.AttemptID, skipped).Scan(&selJSON, &isCorrect); err != nil {
		t.Fatalf("load skipped answer: %v", err)
	}
	if selJSON != "[]" || isCorrect {
		t.Fatalf("skipped question should persist empty incorrect answer, got %s correct=%v", selJSON, isCorrect)
	}
}

func TestSubmit_SecondCallNotActive(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 1, "")
	seedQuestion(t, dbh, "q1", "", []string{"A"}, []string{"B"})

	res, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := store.Submit(ctx, res.AttemptID, "u1", fullMarks(t, dbh, res))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// Retry with different (wrong) answers must not re-grade.
	_, err = store.Submit(ctx, res.AttemptID, "u1", map[string][]string{"q1": {"q1-c2"}})
	if !errors.Is(err, attempt.ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}

	got, err := store.Result(ctx, res.AttemptID, "u1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if got.Score != first.Score {
		t.Fatalf("score changed after rejected resubmit: %v -> %v", first.Score, got.Score)
	}
}

func TestSubmit_WrongOwnerNotActive(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 1, "")
	seedQuestion(t, dbh, "q1", "", []string{"A"}, nil)

	res, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = store.Submit(ctx, res.AttemptID, "intruder", fullMarks(t, dbh, res))
	if !errors.Is(err, attempt.ErrNotActive) {
		t.Fatalf("expected ErrNotActive for wrong owner, got %v", err)
	}

	status, _ := attemptRow(t, dbh, res.AttemptID)
	if status != attempt.StatusInProgress {
		t.Fatalf("attempt must stay in_progress, got %s", status)
	}
}

func TestSubmit_UnknownAttemptNotActive(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Submit(context.Background(), "ghost", "u1", map[string][]string{})
	if !errors.Is(err, attempt.ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestSubmit_NilAnswersRejected(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Submit(context.Background(), "a1", "u1", nil)
	if !errors.Is(err, attempt.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSubmit_ConcurrentGradesExactlyOnce(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 2, "")
	seedQuestion(t, dbh, "q1", "", []string{"A"}, []string{"B"})
	seedQuestion(t, dbh, "q2", "", []string{"A"}, []string{"B"})

	res, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	answers := fullMarks(t, dbh, res)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notActive int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Submit(ctx, res.AttemptID, "u1", answers)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, attempt.ErrNotActive):
				notActive++
			default:
				t.Errorf("unexpected submit error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || notActive != n-1 {
		t.Fatalf("expected exactly one winner, got %d successes / %d not-active", successes, notActive)
	}

	var answerRows int
	if err := dbh.QueryRow(
		`SELECT COUNT(*) FROM attempt_answers WHERE attempt_id=$1`, res.AttemptID).Scan(&answerRows); err != nil {
		t.Fatalf("count answers: %v", err)
	}
	if answerRows != 2 {
		t.Fatalf("expected 2 answer rows, got %d (double grading?)", answerRows)
	}
}

func TestSubmit_RollbackOnAnswerInsertFailure(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 1, "")
	seedQuestion(t, dbh, "q1", "", []string{"A"}, nil)

	res, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	answers := fullMarks(t, dbh, res)

	// Force the answer insert to fail after the status flip.
	if _, err := dbh.Exec(`DROP TABLE attempt_answers`); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if _, err := store.Submit(ctx, res.AttemptID, "u1", answers); err == nil {
		t.Fatalf("expected submit to fail")
	}

	status, score := attemptRow(t, dbh, res.AttemptID)
	if status != attempt.StatusInProgress {
		t.Fatalf("status flip must roll back, got %s", status)
	}
	if score.Valid {
		t.Fatalf("no score may survive a failed submit")
	}

	// The attempt is retry-safe once storage recovers.
	if err := db.EnsureSchema(ctx, dbh, db.DriverSQLite); err != nil {
		t.Fatalf("restore schema: %v", err)
	}
	out, err := store.Submit(ctx, res.AttemptID, "u1", answers)
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if out.Score != 100 {
		t.Fatalf("retry should grade normally, got %+v", out)
	}
}

func TestResult_HydratesFullView(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 2, "")
	seedQuestion(t, dbh, "q1", "", []string{"A"}, []string{"B"})
	seedQuestion(t, dbh, "q2", "", []string{"A"}, []string{"B"})

	res, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	answers := fullMarks(t, dbh, res)
	missed := res.Questions[1].ID
	answers[missed] = []string{missed + "-c2"} // the wrong choice

	if _, err := store.Submit(ctx, res.AttemptID, "u1", answers); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, err := store.Result(ctx, res.AttemptID, "u1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if got.ExamTitle != "Exam exam-1" || got.TotalQuestions != 2 || got.CorrectCount != 1 || got.Score != 50 {
		t.Fatalf("unexpected result header: %+v", got)
	}
	if got.FinishedAt == 0 {
		t.Fatalf("finished_at missing")
	}
	for _, qr := range got.Questions {
		if qr.Explanation == "" {
			t.Fatalf("explanation missing for %s", qr.QuestionID)
		}
		keyed := false
		for _, c := range qr.Choices {
			if c.IsCorrect {
				keyed = true
			}
		}
		if !keyed {
			t.Fatalf("result must disclose correctness flags for %s", qr.QuestionID)
		}
		if qr.QuestionID == missed {
			if qr.IsCorrect {
				t.Fatalf("missed question marked correct")
			}
			if len(qr.SelectedIDs) != 1 || qr.SelectedIDs[0] != missed+"-c2" {
				t.Fatalf("selected ids not preserved: %v", qr.SelectedIDs)
			}
		} else if !qr.IsCorrect {
			t.Fatalf("correct question marked wrong")
		}
	}
}

func TestResult_HiddenUnlessCompletedAndOwned(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 1, "")
	seedQuestion(t, dbh, "q1", "", []string{"A"}, nil)

	res, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// In progress: no result yet.
	if _, err := store.Result(ctx, res.AttemptID, "u1"); !errors.Is(err, attempt.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for in-progress attempt, got %v", err)
	}

	if _, err := store.Submit(ctx, res.AttemptID, "u1", fullMarks(t, dbh, res)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Wrong owner reads as not found, same as nonexistent.
	if _, err := store.Result(ctx, res.AttemptID, "intruder"); !errors.Is(err, attempt.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong owner, got %v", err)
	}
	if _, err := store.Result(ctx, "ghost", "u1"); !errors.Is(err, attempt.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown attempt, got %v", err)
	}
}

func TestList_ScopesAndFilters(t *testing.T) {
	store, dbh := newStore(t)
	ctx := context.Background()

	seedExam(t, dbh, "exam-1", 1, "")
	seedQuestion(t, dbh, "q1", "", []string{"A"}, nil)

	a1, err := store.Start(ctx, "u1", "exam-1")
	if err != nil {
		t.Fatalf("start u1: %v", err)
	}
	if _, err := store.Start(ctx, "u2", "exam-1"); err != nil {
		t.Fatalf("start u2: %v", err)
	}
	if _, err := store.Submit(ctx, a1.AttemptID, "u1", fullMarks(t, dbh, a1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	mine, err := store.List(ctx, attempt.ListOpts{UserID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 || mine[0].UserID != "u1" || mine[0].Status != attempt.StatusCompleted {
		t.Fatalf("unexpected list for u1: %+v", mine)
	}
	if mine[0].Score == nil || *mine[0].Score != 100 {
		t.Fatalf("completed attempt should carry its score")
	}

	open, err := store.List(ctx, attempt.ListOpts{Status: attempt.StatusInProgress})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(open) != 1 || open[0].UserID != "u2" {
		t.Fatalf("unexpected in-progress list: %+v", open)
	}
	if open[0].Score != nil {
		t.Fatalf("in-progress attempt must not expose a score")
	}
}
