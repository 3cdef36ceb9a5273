package query

import (
	"strings"
	"testing"
)

func TestClampTopK(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {-3, 1}, {1, 1}, {5, 5}, {20, 20}, {21, 20}, {500, 20},
	}
	for _, tc := range cases {
		if got := clampTopK(tc.in); got != tc.want {
			t.Errorf("clampTopK(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSplitDeltas(t *testing.T) {
	answer := strings.Repeat("word ", 30)
	deltas := splitDeltas(strings.TrimSpace(answer), 12)
	if len(deltas) != 3 {
		t.Fatalf("deltas = %d, want 3", len(deltas))
	}

	joined := strings.Join(deltas, " ")
	if len(strings.Fields(joined)) != 30 {
		t.Error("words lost while splitting")
	}

	empty := splitDeltas("", 12)
	if len(empty) != 1 {
		t.Errorf("empty answer must yield one delta, got %d", len(empty))
	}
}
