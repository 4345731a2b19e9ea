package attempt

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Attempt is one user's run at one exam. Status only ever moves forward:
// in_progress -> completed. Score is present iff the attempt is completed.
type Attempt struct {
	ID         string   `json:"id"`
	ExamID     string   `json:"exam_id"`
	UserID     string   `json:"user_id"`
	Status     string   `json:"status"`
	Score      *float64 `json:"score,omitempty"`
	StartedAt  int64    `json:"started_at"`
	FinishedAt *int64   `json:"finished_at,omitempty"`
}

// ChoiceView is the student-facing rendering of a candidate answer. It has no
// correctness field at all, so a start payload cannot leak the key.
type ChoiceView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type QuestionView struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Prompt  string       `json:"prompt"`
	Choices []ChoiceView `json:"choices"`
}

type StartResult struct {
	AttemptID   string         `json:"attempt_id"`
	ExamID      string         `json:"exam_id"`
	ExamTitle   string         `json:"exam_title"`
	DurationSec int            `json:"duration_sec"`
	Questions   []QuestionView `json:"questions"`
}

type SubmitResult struct {
	AttemptID      string  `json:"attempt_id"`
	Score          float64 `json:"score"`
	CorrectCount   int     `json:"correct_count"`
	TotalQuestions int     `json:"total_questions"`
}

// ResultChoice reveals correctness: only reachable once the attempt is
// completed, when disclosure is safe.
type ResultChoice struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	IsCorrect bool   `json:"is_correct"`
}

type QuestionResult struct {
	QuestionID  string         `json:"question_id"`
	Type        string         `json:"type"`
	Prompt      string         `json:"prompt"`
	Explanation string         `json:"explanation,omitempty"`
	SelectedIDs []string       `json:"selected_ids"`
	IsCorrect   bool           `json:"is_correct"`
	Choices     []ResultChoice `json:"choices"`
}

type Result struct {
	AttemptID      string           `json:"attempt_id"`
	ExamTitle      string           `json:"exam_title"`
	Score          float64          `json:"score"`
	CorrectCount   int              `json:"correct_count"`
	TotalQuestions int              `json:"total_questions"`
	StartedAt      int64            `json:"started_at"`
	FinishedAt     int64            `json:"finished_at"`
	Questions      []QuestionResult `json:"questions"`
}

type ListOpts struct {
	ExamID string
	UserID string
	Status string
	Limit  int
	Offset int
}
