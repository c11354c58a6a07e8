package gateway

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func discardLogger() zerolog.Logger {
	return zerolog.Nop()
}

// TestQueueRejectsOverMaxPending enforces the bounded-queue backpressure
// policy: once maxPending entries are waiting, further Enqueue calls reject
// through the callback instead of growing unbounded.
func TestQueueRejectsOverMaxPending(t *testing.T) {
	q := NewQueue(1, time.Millisecond, 1, discardLogger())
	session := NewSession("sess-1", "host", 22, "user")

	// Hold the only concurrency slot directly so Enqueue below queues
	// instead of dispatching immediately.
	q.lock()
	q.running = q.maxConcurrent
	q.unlock()

	q.Enqueue(&queueEntry{session: session, command: "cmd-1", callback: func(CommandResult) {}})

	rejected := make(chan CommandResult, 1)
	q.Enqueue(&queueEntry{session: session, command: "cmd-2", callback: func(r CommandResult) { rejected <- r }})

	select {
	case r := <-rejected:
		if r.Error == nil {
			t.Fatal("expected rejection error for over-capacity enqueue")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rejection callback")
	}
}

// TestQueueClearSessionPreservesOthers enforces session isolation: clearing
// one session's pending entries removes all of them and leaves another
// session's entry in place (spec §8).
func TestQueueClearSessionPreservesOthers(t *testing.T) {
	q := NewQueue(1, time.Millisecond, 10, discardLogger())
	q.lock()
	q.running = q.maxConcurrent // hold the only slot so nothing dispatches under us
	q.unlock()

	a := NewSession("a", "h", 22, "u")
	b := NewSession("b", "h", 22, "u")

	q.Enqueue(&queueEntry{session: a, command: "a1", callback: func(CommandResult) {}})
	q.Enqueue(&queueEntry{session: b, command: "b1", callback: func(CommandResult) {}})
	q.Enqueue(&queueEntry{session: a, command: "a2", callback: func(CommandResult) {}})

	q.ClearSession("a")

	q.lock()
	defer q.unlock()
	if len(q.pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(q.pending))
	}
	if q.pending[0].session.SessionID != "b" {
		t.Fatalf("remaining entry belongs to %q, want %q", q.pending[0].session.SessionID, "b")
	}
}

// TestQueueRunWithoutSSHClientReportsError exercises the run() failure path
// taken when a Session has no live SSH client.
func TestQueueRunWithoutSSHClientReportsError(t *testing.T) {
	q := NewQueue(3, time.Millisecond, 10, discardLogger())
	session := NewSession("sess-1", "host", 22, "user")

	result := make(chan CommandResult, 1)
	q.Enqueue(&queueEntry{
		session:  session,
		command:  "echo hi",
		callback: func(r CommandResult) { result <- r },
	})

	select {
	case r := <-result:
		if r.Error == nil {
			t.Fatal("expected error when session has no SSH client")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestQueueStateReportsPendingAndRunning(t *testing.T) {
	q := NewQueue(1, time.Millisecond, 10, discardLogger())
	q.lock()
	q.running = 1
	q.pending = append(q.pending, &queueEntry{session: NewSession("x", "h", 22, "u")})
	q.unlock()

	pending, running := q.State()
	if pending != 1 || running != 1 {
		t.Fatalf("State() = (%d, %d), want (1, 1)", pending, running)
	}
}
