package attempt

import (
	"context"

	"github.com/examdesk/examdesk/internal/examdef"
	"github.com/examdesk/examdesk/internal/question"
)

// DefinitionSource is the narrow read contract this service consumes from the
// exam-definition CRUD collaborator.
type DefinitionSource interface {
	GetByID(ctx context.Context, id string) (examdef.Definition, error)
}

// QuestionBank is the narrow read contract over the question bank. The bank
// is read-shared: this service never locks or mutates it, and staleness after
// snapshot time is tolerated.
type QuestionBank interface {
	SampleIDs(ctx context.Context, categoryID string, count int) ([]string, error)
	GetMany(ctx context.Context, ids []string) ([]question.Question, error)
}

// Service is the attempt lifecycle: start (sample + snapshot), submit (grade
// exactly once), and result reconstruction.
type Service interface {
	Start(ctx context.Context, userID, examID string) (StartResult, error)
	Submit(ctx context.Context, attemptID, userID string, answers map[string][]string) (SubmitResult, error)
	Result(ctx context.Context, attemptID, userID string) (Result, error)
	List(ctx context.Context, opts ListOpts) ([]Attempt, error)
}
