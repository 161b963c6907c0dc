package util

import "testing"

func TestClamp01(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.3, 1},
	}
	for _, c := range cases {
		if got := Clamp01(c.in); got != c.want {
			t.Fatalf("Clamp01(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestClampInt(t *testing.T) {
	if got := ClampInt(5, 7, 120); got != 7 {
		t.Fatalf("expected lower bound, got %d", got)
	}
	if got := ClampInt(500, 7, 120); got != 120 {
		t.Fatalf("expected upper bound, got %d", got)
	}
	if got := ClampInt(30, 7, 120); got != 30 {
		t.Fatalf("expected passthrough, got %d", got)
	}
}
