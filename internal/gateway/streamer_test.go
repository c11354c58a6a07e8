package gateway

import "testing"

// TestParsePercent enforces spec §4.5's "parse numeric results" requirement
// for the CPU diagnostic, whose awk output trails the number with a label.
func TestParsePercent(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"23.4%us,", 23.4, true},
		{"0.0", 0, true},
		{"  12.5  ", 12.5, true},
		{"", 0, false},
		{"us,", 0, false},
	}
	for _, tc := range cases {
		got, ok := parsePercent(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parsePercent(%q) = (%v, %v), want (%v, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

// TestParseMemPercent enforces the memory diagnostic's "<used> <total>" MB
// output converting to a percentage-used figure.
func TestParseMemPercent(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"512 2048", 25, true},
		{"2048 2048", 100, true},
		{"", 0, false},
		{"512", 0, false},
		{"abc 2048", 0, false},
		{"512 0", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseMemPercent(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseMemPercent(%q) = (%v, %v), want (%v, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}
