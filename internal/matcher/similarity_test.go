package matcher

import (
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"both empty", "", "", 0.0},
		{"identical", "Review contract documents", "Review contract documents", 1.0},
		{"case insensitive", "Review Contract", "review contract", 1.0},
		{"surrounding whitespace ignored", "  Draft motion  ", "Draft motion", 1.0},
		{"one empty", "", "Draft motion", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got != tt.expected {
				t.Errorf("Similarity(%q, %q) = %f, expected %f", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestSimilarity_NearMatch(t *testing.T) {
	// A one-character difference on strings this long should stay high.
	got := Similarity("jane smith", "janesmith")
	if got < 0.9 || got >= 1.0 {
		t.Errorf("expected near-match similarity in [0.9, 1.0), got %f", got)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	a, b := "Prepared deposition outline", "Deposition outline preparation"
	if Similarity(a, b) != Similarity(b, a) {
		t.Errorf("similarity should be symmetric")
	}
}

func TestSimilarityAtLeast(t *testing.T) {
	score, ok := SimilarityAtLeast("jane smith", "janesmith", 0.8)
	if !ok {
		t.Errorf("expected threshold 0.8 to pass, score %f", score)
	}

	score, ok = SimilarityAtLeast("jane smith", "janesmith", 0.99)
	if ok {
		t.Errorf("expected threshold 0.99 to fail, score %f", score)
	}

	if _, ok := SimilarityAtLeast("", "", 0.0); !ok {
		t.Errorf("zero threshold should always pass")
	}
}
