package tokens

import "testing"

func TestEstimator(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{text: "", want: 0},
		{text: "   \n", want: 0},
		{text: "abcd", want: 1},
		{text: "abcde", want: 2},
		{text: "  def run():\n    pass  ", want: 5},
	}
	for _, tt := range tests {
		if got := (Estimator{}).Count(tt.text); got != tt.want {
			t.Fatalf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
	if (Estimator{}).Name() != "estimate" {
		t.Fatal("unexpected estimator name")
	}
}

func TestNewUnknownModelFallsBack(t *testing.T) {
	counter, err := New("no-such-model")
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
	if _, ok := counter.(Estimator); !ok {
		t.Fatalf("expected Estimator fallback, got %T", counter)
	}
}

func TestNewEstimateModel(t *testing.T) {
	counter, err := New("Estimate")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, ok := counter.(Estimator); !ok {
		t.Fatalf("expected Estimator, got %T", counter)
	}
}
