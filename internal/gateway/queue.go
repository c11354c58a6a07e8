package gateway

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// CommandResult is delivered to a queue entry's callback exactly once,
// per spec §7 propagation policy.
type CommandResult struct {
	Error       error
	Output      string
	ErrorOutput string
	Background  bool
}

// queueEntry is owned by the Queue while pending, transferred to the
// executing goroutine on dispatch (spec §3 "Command-queue entry").
type queueEntry struct {
	session       *Session
	command       string
	background    bool
	streamPartial bool
	executionID   string
	transport     Transport
	callback      func(CommandResult)
}

// Queue bounds concurrent SSH exec channels to maxConcurrent and enforces a
// delay between a slot's completion and its next dispatch (spec §4.1).
// Grounded on the teacher's Pool, whose single mutex guards a map the same
// way this one mutex guards the pending slice and running counter; the
// teacher's adaptive-interval cleanup loop is not needed here because
// dispatch is edge-triggered (every Enqueue/completion), not polled.
type Queue struct {
	mu                chan struct{} // binary semaphore used as a non-reentrant mutex
	pending           []*queueEntry
	running           int
	maxConcurrent     int
	maxPending        int
	interCommandDelay time.Duration
	log               zerolog.Logger
}

// NewQueue creates a Queue with the given concurrency cap, inter-command
// delay, and pending bound (spec §9 Open Question: the queue is bounded
// with a drop-newest policy instead of the source's unbounded design).
func NewQueue(maxConcurrent int, delay time.Duration, maxPending int, log zerolog.Logger) *Queue {
	q := &Queue{
		mu:                make(chan struct{}, 1),
		maxConcurrent:     maxConcurrent,
		maxPending:        maxPending,
		interCommandDelay: delay,
		log:               log,
	}
	q.mu <- struct{}{}
	return q
}

func (q *Queue) lock()   { <-q.mu }
func (q *Queue) unlock() { q.mu <- struct{}{} }

// State reports the current pending/running counts for the health
// endpoint, observed atomically (spec §4.1 State()).
func (q *Queue) State() (pending, running int) {
	q.lock()
	defer q.unlock()
	return len(q.pending), q.running
}

// Enqueue appends an entry to the FIFO and triggers dispatch. Never blocks
// the caller beyond the queue's own critical section.
func (q *Queue) Enqueue(entry *queueEntry) {
	q.lock()
	if q.maxPending > 0 && len(q.pending) >= q.maxPending {
		q.unlock()
		entry.callback(CommandResult{Error: fmt.Errorf("command queue full (max %d pending)", q.maxPending)})
		return
	}
	q.pending = append(q.pending, entry)
	q.unlock()
	q.dispatch()
}

// ClearSession removes every pending entry belonging to sessionID, leaving
// others untouched and in original relative order (spec §8 Session
// isolation property). Running entries are never cancelled.
func (q *Queue) ClearSession(sessionID string) {
	q.lock()
	defer q.unlock()
	kept := q.pending[:0]
	for _, e := range q.pending {
		if e.session.queueKey != sessionID {
			kept = append(kept, e)
		}
	}
	q.pending = kept
}

// dispatch pops and starts entries while under the concurrency cap. It
// never holds the queue lock across a suspension point (spec §5).
func (q *Queue) dispatch() {
	for {
		q.lock()
		if q.running >= q.maxConcurrent || len(q.pending) == 0 {
			q.unlock()
			return
		}
		entry := q.pending[0]
		q.pending = q.pending[1:]
		q.running++
		q.unlock()

		go q.run(entry)
	}
}

// complete frees the entry's running slot after the inter-command delay
// and re-dispatches (spec §4.1 steps 2/4/5).
func (q *Queue) complete() {
	time.AfterFunc(q.interCommandDelay, func() {
		q.lock()
		q.running--
		q.unlock()
		q.dispatch()
	})
}

// run executes one entry's exec channel end to end (spec §4.1 steps 1-5).
func (q *Queue) run(entry *queueEntry) {
	entry.session.SetRunningBackground(entry.background)
	defer entry.session.SetRunningBackground(false)

	client := entry.session.SSHClient()
	if client == nil {
		entry.callback(CommandResult{Error: fmt.Errorf("session %s has no SSH connection", entry.session.SessionID), Background: entry.background})
		q.complete()
		return
	}

	sess, err := client.NewSession()
	if err != nil {
		entry.callback(CommandResult{Error: fmt.Errorf("failed to open exec channel: %w", err), Background: entry.background})
		q.complete()
		return
	}
	defer sess.Close()

	stdout, _ := sess.StdoutPipe()
	stderr, _ := sess.StderrPipe()

	if err := sess.Start(entry.command); err != nil {
		entry.callback(CommandResult{Error: fmt.Errorf("failed to start command: %w", err), Background: entry.background})
		q.complete()
		return
	}

	var output, errOutput []byte
	done := make(chan struct{}, 2)

	go func() {
		output = q.drain(stdout, entry)
		done <- struct{}{}
	}()
	go func() {
		errOutput, _ = io.ReadAll(stderr)
		done <- struct{}{}
	}()
	<-done
	<-done

	exitCode := 0
	waitErr := sess.Wait()
	if waitErr != nil {
		if exitErr, ok := waitErr.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
		}
	}

	var resultErr error
	if exitCode != 0 {
		resultErr = fmt.Errorf("exited with code %d", exitCode)
	}

	entry.session.TouchActivity()
	entry.callback(CommandResult{
		Error:       resultErr,
		Output:      string(output),
		ErrorOutput: string(errOutput),
		Background:  entry.background,
	})

	q.complete()
}

// drain accumulates stdout, optionally streaming partial chunks to the
// client transport as they arrive (spec §4.1 step 3).
func (q *Queue) drain(r io.Reader, entry *queueEntry) []byte {
	buf := make([]byte, 32*1024)
	var acc []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			acc = append(acc, chunk...)
			if entry.streamPartial && !entry.background && entry.transport != nil {
				_ = entry.transport.Emit(EventCommandStream, map[string]any{
					"executionId": entry.executionID,
					"output":      string(chunk),
					"partial":     true,
				})
			}
		}
		if err != nil {
			return acc
		}
	}
}
