package grading

import "testing"

func TestSetGrader_Grade(t *testing.T) {
	tests := []struct {
		name     string
		selected []string
		key      []string
		want     bool
	}{
		{name: "single match", selected: []string{"A"}, key: []string{"A"}, want: true},
		{name: "order independent", selected: []string{"A", "B"}, key: []string{"B", "A"}, want: true},
		{name: "missing one", selected: []string{"A"}, key: []string{"A", "B"}, want: false},
		{name: "empty vs nonempty", selected: []string{}, key: []string{"A"}, want: false},
		{name: "nil vs nonempty", selected: nil, key: []string{"A"}, want: false},
		{name: "extra selection", selected: []string{"A", "B"}, key: []string{"A"}, want: false},
		{name: "duplicates collapse", selected: []string{"A", "A", "B"}, key: []string{"B", "A"}, want: true},
		{name: "both empty", selected: nil, key: nil, want: true},
		{name: "disjoint", selected: []string{"C"}, key: []string{"A"}, want: false},
	}

	g := NewSetGrader()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.Grade(tc.selected, tc.key); got != tc.want {
				t.Fatalf("Grade(%v, %v) = %v, want %v", tc.selected, tc.key, got, tc.want)
			}
		})
	}
}

func TestSetGrader_IsPure(t *testing.T) {
	g := NewSetGrader()
	sel := []string{"B", "A"}
	key := []string{"A", "B"}
	for i := 0; i < 3; i++ {
		if !g.Grade(sel, key) {
			t.Fatalf("grade changed across calls")
		}
	}
	if sel[0] != "B" || key[0] != "A" {
		t.Fatalf("inputs were mutated")
	}
}
