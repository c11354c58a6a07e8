// Package gateway implements the session and channel lifecycle engine: the
// per-session state machine, the command queue, the session registry, the
// shell streamer, the command executor, and the janitor described in
// spec.md §2-§9. It depends on golang.org/x/crypto/ssh, github.com/google/uuid,
// github.com/rs/zerolog and the abstract Transport interface declared in
// this package; concrete client
// transports (e.g. a WebSocket) and HTTP routing live outside it.
package gateway

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Core. Fields mirror the tunables named throughout
// spec.md §4; cmd/server fills them from internal/config, which sets them
// to fixed defaults and does not read them from the environment.
type Options struct {
	QueueMaxConcurrent int
	QueueDelay         time.Duration
	QueueMaxPending    int

	HardAuthTimeout time.Duration
	ReadyTimeout    time.Duration
	ShellTimeout    time.Duration

	IdleTimeout     time.Duration
	IdleSweep       time.Duration
	MemorySweep     time.Duration
	MemoryHeapLimit uint64
	HeartbeatEvery  time.Duration
	CoalesceWindow  time.Duration

	HostKeyPolicy HostKeyPolicy
}

// Core wires the Session Registry, Command Queue, and every component that
// operates on them. It is the process-wide singleton spec §9 calls for,
// made explicit instead of hidden behind package-level globals.
type Core struct {
	Registry *Registry
	Queue    *Queue
	opts     Options
	log      zerolog.Logger
	started  time.Time
}

// New constructs a Core ready to accept Connect calls.
func New(opts Options, log zerolog.Logger) *Core {
	if opts.HostKeyPolicy == nil {
		opts.HostKeyPolicy = InsecureHostKeyPolicy{}
	}
	return &Core{
		Registry: NewRegistry(),
		Queue:    NewQueue(opts.QueueMaxConcurrent, opts.QueueDelay, opts.QueueMaxPending, log),
		opts:     opts,
		log:      log,
		started:  time.Now(),
	}
}

// MemoryStats is the `memory` member of the /health payload (spec §6).
type MemoryStats struct {
	HeapAllocBytes uint64
	SysBytes       uint64
}

// HealthSnapshot is returned to the /health endpoint (spec §6).
type HealthSnapshot struct {
	Connections     int
	QueuedCommands  int
	RunningCommands int
	UptimeSeconds   float64
	Memory          MemoryStats
}

// Health reports a point-in-time snapshot for the health endpoint.
func (c *Core) Health() HealthSnapshot {
	pending, running := c.Queue.State()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return HealthSnapshot{
		Connections:     c.Registry.Count(),
		QueuedCommands:  pending,
		RunningCommands: running,
		UptimeSeconds:   time.Since(c.started).Seconds(),
		Memory: MemoryStats{
			HeapAllocBytes: mem.HeapAlloc,
			SysBytes:       mem.Sys,
		},
	}
}

// HeartbeatInterval reports how often the transport adapter should emit its
// keepalive heartbeat (spec §4.3), falling back to 5s if unconfigured.
func (c *Core) HeartbeatInterval() time.Duration {
	if c.opts.HeartbeatEvery <= 0 {
		return 5 * time.Second
	}
	return c.opts.HeartbeatEvery
}
