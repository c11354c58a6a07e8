package gateway

import (
	"sync"
	"testing"
	"time"
)

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession("id-1", "example.com", 22, "root")
	cols, rows := s.Dimensions()
	if cols != 80 || rows != 24 {
		t.Fatalf("Dimensions() = (%d, %d), want (80, 24)", cols, rows)
	}
	if s.Authenticated() {
		t.Fatal("new session must not be authenticated")
	}
	if s.Destroyed() {
		t.Fatal("new session must not be destroyed")
	}
}

func TestSessionResizeIgnoresZero(t *testing.T) {
	s := NewSession("id-1", "h", 22, "u")
	s.Resize(120, 40)
	if cols, rows := s.Dimensions(); cols != 120 || rows != 40 {
		t.Fatalf("Dimensions() = (%d, %d), want (120, 40)", cols, rows)
	}
	s.Resize(0, 50)
	if cols, rows := s.Dimensions(); cols != 120 || rows != 40 {
		t.Fatalf("Resize(0, 50) must be a no-op, got (%d, %d)", cols, rows)
	}
}

func TestSessionMarkAuthenticatedClearsTimers(t *testing.T) {
	s := NewSession("id-1", "h", 22, "u")
	fired := false
	s.SetHardAuthTimer(time.AfterFunc(10*time.Millisecond, func() { fired = true }))
	s.MarkAuthenticated()

	time.Sleep(30 * time.Millisecond)
	if fired {
		t.Fatal("hard auth timer fired after MarkAuthenticated cleared it")
	}
	if !s.Authenticated() {
		t.Fatal("Authenticated() = false after MarkAuthenticated")
	}
}

// TestSessionDestroyIsIdempotent enforces spec §3: destruction runs at
// most once even when Destroy is called concurrently from many callers
// (e.g. the orchestrator's watchConnection and the Janitor racing).
func TestSessionDestroyIsIdempotent(t *testing.T) {
	s := NewSession("id-1", "h", 22, "u")

	var wg sync.WaitGroup
	const callers = 20
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			s.Destroy()
		}()
	}
	wg.Wait()

	if !s.Destroyed() {
		t.Fatal("Destroyed() = false after Destroy")
	}
}

func TestSessionTouchActivityAdvancesLastActivity(t *testing.T) {
	s := NewSession("id-1", "h", 22, "u")
	first := s.LastActivity()
	time.Sleep(5 * time.Millisecond)
	s.TouchActivity()
	if !s.LastActivity().After(first) {
		t.Fatal("TouchActivity did not advance LastActivity")
	}
}
