package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		// empty -> default
		{"", 10, 10},
		// valid ints
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestOptionalInt(t *testing.T) {
	if p, err := OptionalInt("  "); p != nil || err != nil {
		t.Fatalf("blank should be (nil, nil), got %v %v", p, err)
	}
	if p, err := OptionalInt(" 7 "); err != nil || p == nil || *p != 7 {
		t.Fatalf("expected 7, got %v %v", p, err)
	}
	if p, err := OptionalInt("-3"); err != nil || *p != -3 {
		t.Fatalf("negatives parse, validation is the caller's job: %v %v", p, err)
	}
	if _, err := OptionalInt("ten"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ n, lo, hi, want int }{
		{5, 1, 10, 5},
		{-1, 1, 10, 1},
		{50, 1, 10, 10},
		{1, 1, 1, 1},
	}
	for _, tc := range cases {
		if got := Clamp(tc.n, tc.lo, tc.hi); got != tc.want {
			t.Fatalf("Clamp(%d,%d,%d)=%d want %d", tc.n, tc.lo, tc.hi, got, tc.want)
		}
	}
}
