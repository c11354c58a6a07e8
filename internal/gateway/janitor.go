package gateway

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Janitor runs the two periodic sweeps of spec §4.7 and coordinates
// graceful shutdown. Grounded on the teacher's Pool cleanup loop, but
// adaptive intervals replaced with the fixed ticks spec §4.7 names
// explicitly, and the two concerns (idle, memory) split into independent
// tickers rather than one combined sweep.
type Janitor struct {
	core *Core
	log  zerolog.Logger

	idleSweep   time.Duration
	idleTimeout time.Duration

	memSweep    time.Duration
	memLimit    uint64

	stop chan struct{}
	done sync.WaitGroup
}

// NewJanitor builds a Janitor for core, using core's Options for every
// interval and threshold.
func NewJanitor(core *Core, log zerolog.Logger) *Janitor {
	return &Janitor{
		core:        core,
		log:         log.With().Str("component", "janitor").Logger(),
		idleSweep:   core.opts.IdleSweep,
		idleTimeout: core.opts.IdleTimeout,
		memSweep:    core.opts.MemorySweep,
		memLimit:    core.opts.MemoryHeapLimit,
		stop:        make(chan struct{}),
	}
}

// Start launches the idle-expiry and memory-pressure sweep loops.
func (j *Janitor) Start() {
	j.done.Add(2)
	go j.runIdleSweep()
	go j.runMemorySweep()
}

func (j *Janitor) runIdleSweep() {
	defer j.done.Done()
	ticker := time.NewTicker(j.idleSweep)
	defer ticker.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			j.sweepIdle()
		}
	}
}

// sweepIdle evicts every Session whose lastActivity is older than
// idleTimeout (spec §4.7.1). The Registry snapshot is taken under its own
// lock and Destroy runs outside any lock, matching §5's lock-ordering note.
func (j *Janitor) sweepIdle() {
	now := time.Now()
	for _, session := range j.core.Registry.List() {
		if now.Sub(session.LastActivity()) > j.idleTimeout {
			j.log.Info().Str("session", session.SessionID).Msg("evicting idle session")
			j.core.destroySession(session)
		}
	}
}

func (j *Janitor) runMemorySweep() {
	defer j.done.Done()
	ticker := time.NewTicker(j.memSweep)
	defer ticker.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			j.sweepMemory()
		}
	}
}

// sweepMemory evicts unauthenticated sessions when heap usage exceeds the
// configured limit (spec §4.7.2). Authenticated sessions are never touched
// by memory pressure.
func (j *Janitor) sweepMemory() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapAlloc <= j.memLimit {
		return
	}

	j.log.Warn().Uint64("heapAlloc", stats.HeapAlloc).Uint64("limit", j.memLimit).Msg("memory pressure, evicting unauthenticated sessions")
	for _, session := range j.core.Registry.List() {
		if !session.Authenticated() {
			j.core.destroySession(session)
		}
	}
	runtime.GC()
}

// Shutdown tears every Session down in parallel and stops the sweep loops
// (spec §4.7 graceful shutdown). It does not stop the HTTP listener; the
// caller owns that.
func (j *Janitor) Shutdown(ctx context.Context) {
	close(j.stop)
	j.done.Wait()

	sessions := j.core.Registry.List()
	var wg sync.WaitGroup
	wg.Add(len(sessions))
	for _, session := range sessions {
		session := session
		go func() {
			defer wg.Done()
			j.core.destroySession(session)
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		j.log.Warn().Msg("shutdown deadline exceeded, no longer waiting for remaining sessions")
	}
}
