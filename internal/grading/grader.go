package grading

// Grader decides whether a set of selected choice ids matches the answer key.
// Implementations must be pure: no I/O, no state, same inputs same output.
type Grader interface {
	Grade(selected, key []string) bool
}

// SetGrader grades by exact set equality: order is irrelevant, duplicates are
// collapsed. An empty selection only matches an empty key.
type SetGrader struct{}

func NewSetGrader() SetGrader { return SetGrader{} }

func (SetGrader) Grade(selected, key []string) bool {
	return setEqual(toSet(selected), toSet(key))
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
