package store

import "testing"

func TestSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "solar power is growing fast", "solar power is growing fast", 1.0, 1.0},
		{"case and punctuation ignored", "Solar power, growing fast!", "solar power growing fast", 1.0, 1.0},
		{"disjoint", "alpha beta gamma", "delta epsilon zeta", 0.0, 0.0},
		{"partial overlap", "solar power growth report", "solar power decline report", 0.4, 0.8},
		{"both empty", "", "", 0.0, 0.0},
		{"one empty", "some text here", "", 0.0, 0.0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Similarity(c.a, c.b)
			if got < c.min || got > c.max {
				t.Errorf("Similarity = %v, want in [%v, %v]", got, c.min, c.max)
			}
		})
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	a := "offshore wind capacity expanded in europe"
	b := "wind capacity stalled in asia"
	if Similarity(a, b) != Similarity(b, a) {
		t.Error("similarity not symmetric")
	}
}
