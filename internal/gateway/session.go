package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

// shellChannel bundles the pieces of an open interactive PTY session.
// Grounded on the teacher's Client, which bundled *ssh.Client with a single
// *sftp.Client; here the equivalent long-lived channel is the shell rather
// than SFTP.
type shellChannel struct {
	session *ssh.Session
	stdin   interface {
		Write([]byte) (int, error)
	}
}

// Session is the per-SSH-connection entity described in spec §3. Exactly
// one goroutine (the Connection Orchestrator's connect loop, then the Shell
// Streamer) ever holds the per-session lock for long enough to mutate these
// fields; lastActivity is also touched by the Command Queue dispatcher, so
// it is kept atomic independent of mu.
type Session struct {
	SessionID string

	Host     string
	Port     int
	Username string

	mu          sync.Mutex
	transportID string
	sshClient   *ssh.Client
	shell       *shellChannel
	cols        uint16
	rows        uint16

	authenticated atomic.Bool
	createdAt     time.Time
	lastActivity  atomic.Int64 // unix nano

	runningBackground atomic.Bool
	lastCommandAt     atomic.Int64 // unix nano

	hardAuthTimer  *time.Timer
	watchdogTimer  *time.Ticker
	watchdogStop   chan struct{}
	monitoringStop chan struct{}

	destroyOnce sync.Once
	destroyed   atomic.Bool

	// queueKey is the filter key used by ClearSession to drop this
	// session's pending queue entries; it is the SessionID, kept as a
	// distinct field because a future multi-tenant deployment may want to
	// group several sessions under one fair-share key.
	queueKey string
}

// NewSession constructs an unauthenticated Session with default terminal
// dimensions (spec §3: 80×24 until a resize event arrives).
func NewSession(id, host string, port int, username string) *Session {
	s := &Session{
		SessionID: id,
		Host:      host,
		Port:      port,
		Username:  username,
		cols:      80,
		rows:      24,
		createdAt: time.Now(),
		queueKey:  id,
	}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the last recorded activity time.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// TransportID returns the currently bound transport id, if any.
func (s *Session) TransportID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transportID
}

// bindTransport rebinds the session to a new transport (reconnect).
func (s *Session) bindTransport(transportID string) {
	s.mu.Lock()
	s.transportID = transportID
	s.mu.Unlock()
	s.touch()
}

// SetSSHClient installs the authenticated SSH client handle.
func (s *Session) SetSSHClient(c *ssh.Client) {
	s.mu.Lock()
	s.sshClient = c
	s.mu.Unlock()
}

// SSHClient returns the session's SSH client, or nil if not yet connected.
func (s *Session) SSHClient() *ssh.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sshClient
}

// Dimensions returns the current terminal size.
func (s *Session) Dimensions() (cols, rows uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Resize updates the terminal size (spec §4.6 / end-to-end scenario 6).
func (s *Session) Resize(cols, rows uint16) {
	if cols == 0 || rows == 0 {
		return
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	sh := s.shell
	s.mu.Unlock()
	s.touch()

	if sh != nil {
		_ = sh.session.WindowChange(int(rows), int(cols))
	}
}

// Authenticated reports whether the SSH ready event has fired.
func (s *Session) Authenticated() bool {
	return s.authenticated.Load()
}

// MarkAuthenticated flips the session to authenticated and clears the hard
// auth timer, per spec §4.4 step 8.
func (s *Session) MarkAuthenticated() {
	s.authenticated.Store(true)
	s.clearAuthTimers()
	s.touch()
}

// SetHardAuthTimer installs the armed hard-auth-timeout timer (spec §4.4
// step 6).
func (s *Session) SetHardAuthTimer(t *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hardAuthTimer = t
}

// SetWatchdog installs the armed unauthenticated-state watchdog (spec
// §4.4 step 7) along with the stop channel its goroutine selects on — a
// stopped Ticker never closes its channel, so the goroutine needs its own
// signal to notice the timer was torn down between ticks.
func (s *Session) SetWatchdog(t *time.Ticker, stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchdogTimer = t
	s.watchdogStop = stop
}

func (s *Session) clearAuthTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hardAuthTimer != nil {
		s.hardAuthTimer.Stop()
		s.hardAuthTimer = nil
	}
	if s.watchdogTimer != nil {
		s.watchdogTimer.Stop()
		s.watchdogTimer = nil
	}
	if s.watchdogStop != nil {
		close(s.watchdogStop)
		s.watchdogStop = nil
	}
}

// RunningBackground reports whether the currently executing queued command
// is flagged background, used by the Shell Streamer to suppress terminal
// emission (spec §4.5).
func (s *Session) RunningBackground() bool {
	return s.runningBackground.Load()
}

// SetRunningBackground is called by the Command Queue dispatcher around a
// command's lifetime.
func (s *Session) SetRunningBackground(v bool) {
	s.runningBackground.Store(v)
}

// TouchActivity records input/output/command activity for idle eviction.
func (s *Session) TouchActivity() {
	s.touch()
}

// TouchCommand records that a command was just accepted, for throttling
// hints (spec §3 lastCommandAt).
func (s *Session) TouchCommand() {
	s.lastCommandAt.Store(time.Now().UnixNano())
}

// Destroyed reports whether Destroy has already run.
func (s *Session) Destroyed() bool {
	return s.destroyed.Load()
}

// Destroy tears the session down exactly once (spec §3: destruction is
// idempotent; shellChannel before sshClient; all timers cleared first).
func (s *Session) Destroy() {
	s.destroyOnce.Do(func() {
		s.destroyed.Store(true)
		s.clearAuthTimers()

		s.mu.Lock()
		sh := s.shell
		s.shell = nil
		client := s.sshClient
		s.sshClient = nil
		stop := s.monitoringStop
		s.monitoringStop = nil
		s.mu.Unlock()

		if stop != nil {
			close(stop)
		}
		if sh != nil {
			_ = sh.session.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	})
}

// attachShell installs the open shell channel, closing any previous
// monitoring-loop stop channel so a restart-shell never leaves the old
// monitoring goroutine running alongside the new one.
func (s *Session) attachShell(sh *shellChannel, stopMonitoring chan struct{}) {
	s.mu.Lock()
	prevStop := s.monitoringStop
	s.shell = sh
	s.monitoringStop = stopMonitoring
	s.mu.Unlock()

	if prevStop != nil {
		close(prevStop)
	}
}

// shellOrNil returns the active shell channel, or nil if none is open.
func (s *Session) shellOrNil() *shellChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shell
}
