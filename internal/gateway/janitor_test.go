package gateway

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestCore() *Core {
	return New(Options{
		QueueMaxConcurrent: 3,
		QueueDelay:         time.Millisecond,
		QueueMaxPending:    10,
		IdleTimeout:        10 * time.Millisecond,
		IdleSweep:          time.Hour, // not exercised directly; sweepIdle is called inline below
		MemorySweep:        time.Hour,
		MemoryHeapLimit:    1 << 40, // effectively disabled for this test
	}, zerolog.Nop())
}

// TestJanitorSweepIdleEvictsStaleSessions enforces spec §4.7.1: a Session
// whose lastActivity predates the idle timeout is destroyed and removed
// from the Registry.
func TestJanitorSweepIdleEvictsStaleSessions(t *testing.T) {
	core := newTestCore()
	j := NewJanitor(core, zerolog.Nop())

	stale := NewSession("stale", "h", 22, "u")
	stale.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())
	core.Registry.Insert(stale)

	fresh := NewSession("fresh", "h", 22, "u")
	core.Registry.Insert(fresh)

	j.sweepIdle()

	if !stale.Destroyed() {
		t.Error("stale session was not destroyed by sweepIdle")
	}
	if core.Registry.Get("stale") != nil {
		t.Error("stale session was not removed from the registry")
	}
	if fresh.Destroyed() {
		t.Error("fresh session was destroyed by sweepIdle")
	}
	if core.Registry.Get("fresh") == nil {
		t.Error("fresh session was incorrectly removed from the registry")
	}
}

// TestJanitorSweepMemoryPreservesAuthenticatedSessions enforces spec
// §4.7.2: under memory pressure, only unauthenticated sessions are evicted.
func TestJanitorSweepMemoryPreservesAuthenticatedSessions(t *testing.T) {
	core := newTestCore()
	j := NewJanitor(core, zerolog.Nop())
	j.memLimit = 0 // force the "over limit" branch regardless of actual heap usage

	authed := NewSession("authed", "h", 22, "u")
	authed.MarkAuthenticated()
	core.Registry.Insert(authed)

	anon := NewSession("anon", "h", 22, "u")
	core.Registry.Insert(anon)

	j.sweepMemory()

	if authed.Destroyed() {
		t.Error("authenticated session was destroyed under memory pressure")
	}
	if !anon.Destroyed() {
		t.Error("unauthenticated session survived memory pressure sweep")
	}
}
