package config

import "testing"

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"*", []string{"*"}},
		{"https://a.com, https://b.com", []string{"https://a.com", "https://b.com"}},
		{"  ,  ,a", []string{"a"}},
	}
	for _, tc := range cases {
		got := splitCSV(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("splitCSV(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("splitCSV(%q) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
}

func TestAddrPrefersExplicitHost(t *testing.T) {
	c := Config{ListenAddr: ":3001", Host: "127.0.0.1"}
	if got := c.Addr(); got != "127.0.0.1:3001" {
		t.Fatalf("Addr() = %q, want %q", got, "127.0.0.1:3001")
	}

	c2 := Config{ListenAddr: ":3001", Host: "0.0.0.0"}
	if got := c2.Addr(); got != ":3001" {
		t.Fatalf("Addr() = %q, want %q", got, ":3001")
	}
}
