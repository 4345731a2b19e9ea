package question

type Choice struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	IsCorrect bool   `json:"is_correct"`
}

type Question struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"` // single_choice | multi_choice | true_false
	Prompt      string   `json:"prompt"`
	Explanation string   `json:"explanation,omitempty"`
	CategoryID  string   `json:"category_id,omitempty"`
	Choices     []Choice `json:"choices"`
}

// CorrectChoiceIDs returns the answer key for the question.
func (q Question) CorrectChoiceIDs() []string {
	var ids []string
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
