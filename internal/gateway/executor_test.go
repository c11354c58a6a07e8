package gateway

import "testing"

func TestKillPatternMatching(t *testing.T) {
	cases := []struct {
		command string
		matches bool
	}{
		{"kill -9 1234", true},
		{"sudo kill -9 1234", true},
		{"kill -15 1", true},
		{"kill 1234", false},
		{"kill -9 abc", false},
		{"rm -rf /", false},
		{"kill -9 1234; rm -rf /", false},
	}

	for _, tc := range cases {
		t.Run(tc.command, func(t *testing.T) {
			if got := killPattern.MatchString(tc.command); got != tc.matches {
				t.Errorf("killPattern.MatchString(%q) = %v, want %v", tc.command, got, tc.matches)
			}
		})
	}
}

func TestKillPID(t *testing.T) {
	if got := killPID("sudo kill -9 4242"); got != "4242" {
		t.Errorf("killPID = %q, want %q", got, "4242")
	}
	if got := killPID("kill -9 99"); got != "99" {
		t.Errorf("killPID = %q, want %q", got, "99")
	}
}

// TestCommandErrorPayloadShape enforces spec §6's command-error wire
// contract: {command, error, needsElevation}. This is the field scenario 4
// asserts needsElevation=true for — it was previously omitted entirely.
func TestCommandErrorPayloadShape(t *testing.T) {
	payload := commandErrorPayload("kill -9 1", "Permission denied — elevation required", true)

	if got := payload["command"]; got != "kill -9 1" {
		t.Errorf("command = %v, want %q", got, "kill -9 1")
	}
	if got := payload["error"]; got != "Permission denied — elevation required" {
		t.Errorf("error = %v, want the permission message", got)
	}
	if got, ok := payload["needsElevation"].(bool); !ok || !got {
		t.Errorf("needsElevation = %v, want true", payload["needsElevation"])
	}

	nonElevated := commandErrorPayload("false", "exited with code 1", false)
	if got, ok := nonElevated["needsElevation"].(bool); !ok || got {
		t.Errorf("needsElevation = %v, want false", nonElevated["needsElevation"])
	}
}

func TestNeedsElevation(t *testing.T) {
	cases := []struct {
		stderr string
		want   bool
	}{
		{"kill: (1234) - Operation not permitted", true},
		{"Permission denied", true},
		{"", false},
		{"no such process", false},
	}
	for _, tc := range cases {
		if got := needsElevation(tc.stderr); got != tc.want {
			t.Errorf("needsElevation(%q) = %v, want %v", tc.stderr, got, tc.want)
		}
	}
}
