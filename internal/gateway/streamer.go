package gateway

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

const ptyTerm = "xterm-256color"

// openShell opens the PTY shell channel for a newly-ready session and wires
// up its I/O pumps, per spec §4.5. Grounded on the teacher's pattern of
// treating a long-lived channel (there, SFTP) as a resource owned by the
// connection and torn down with it.
func (c *Core) openShell(session *Session, transport Transport) {
	log := c.log.With().Str("component", "streamer").Str("session", session.SessionID).Logger()

	client := session.SSHClient()
	if client == nil || session.Destroyed() {
		return
	}

	opened := make(chan struct{})
	var resultMu sync.Mutex
	var sshSession *ssh.Session
	var openErr error
	setResult := func(s *ssh.Session, err error) {
		resultMu.Lock()
		sshSession, openErr = s, err
		resultMu.Unlock()
	}

	go func() {
		s, err := client.NewSession()
		if err != nil {
			setResult(nil, err)
			close(opened)
			return
		}
		cols, rows := session.Dimensions()
		modes := ssh.TerminalModes{
			ssh.ECHO:          1,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := s.RequestPty(ptyTerm, int(rows), int(cols), modes); err != nil {
			_ = s.Close()
			setResult(nil, err)
			close(opened)
			return
		}
		stdin, err := s.StdinPipe()
		if err != nil {
			_ = s.Close()
			setResult(nil, err)
			close(opened)
			return
		}
		stdout, err := s.StdoutPipe()
		if err != nil {
			_ = s.Close()
			setResult(nil, err)
			close(opened)
			return
		}
		stderr, err := s.StderrPipe()
		if err != nil {
			_ = s.Close()
			setResult(nil, err)
			close(opened)
			return
		}
		if err := s.Shell(); err != nil {
			_ = s.Close()
			setResult(nil, err)
			close(opened)
			return
		}
		setResult(s, nil)

		stopMonitoring := make(chan struct{})
		session.attachShell(&shellChannel{session: s, stdin: stdin}, stopMonitoring)

		outputDone := make(chan struct{})
		go func() {
			c.pumpOutput(session, transport, stdout)
			close(outputDone)
		}()
		go c.pumpStderr(transport, stderr)
		go c.runInitCommands(session, transport)
		go c.runMonitoring(session, transport, stopMonitoring)
		go func() {
			<-outputDone
			c.awaitShellClose(session, transport, s)
		}()

		close(opened)
	}()

	select {
	case <-opened:
		resultMu.Lock()
		err := openErr
		resultMu.Unlock()
		if err != nil {
			log.Error().Err(err).Msg("shell open failed")
			_ = transport.Emit(EventError, map[string]string{"message": err.Error()})
			c.destroySession(session)
		}
	case <-time.After(c.opts.ShellTimeout):
		log.Error().Msg("shell open timed out")
		_ = transport.Emit(EventError, map[string]string{"message": "Shell open timed out"})
		resultMu.Lock()
		s := sshSession
		resultMu.Unlock()
		if s != nil {
			_ = s.Close()
		}
		c.destroySession(session)
	}
}

// pumpOutput coalesces shell stdout into idle-interval flushes, suppressing
// output entirely while a background queue command is running (spec §4.5).
func (c *Core) pumpOutput(session *Session, transport Transport, r interface{ Read([]byte) (int, error) }) {
	var mu sync.Mutex
	var buf bytes.Buffer
	flush := func() {
		mu.Lock()
		if buf.Len() == 0 {
			mu.Unlock()
			return
		}
		chunk := buf.String()
		buf.Reset()
		mu.Unlock()
		_ = transport.Emit(EventData, map[string]string{"data": chunk})
	}

	timer := time.AfterFunc(c.opts.CoalesceWindow, flush)
	defer timer.Stop()

	chunk := make([]byte, 8192)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if !session.RunningBackground() {
				mu.Lock()
				buf.Write(chunk[:n])
				mu.Unlock()
				timer.Reset(c.opts.CoalesceWindow)
			}
			session.TouchActivity()
		}
		if err != nil {
			flush()
			return
		}
	}
}

// pumpStderr emits shell stderr immediately, never batched (spec §4.5).
func (c *Core) pumpStderr(transport Transport, r interface{ Read([]byte) (int, error) }) {
	chunk := make([]byte, 8192)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			_ = transport.Emit(EventErrorData, map[string]string{"data": string(chunk[:n])})
		}
		if err != nil {
			return
		}
	}
}

// awaitShellClose emits `closed` with the exit code and signal once the
// shell channel exits (spec §4.5). openShell starts it only after
// pumpOutput has flushed the remaining buffered output.
func (c *Core) awaitShellClose(session *Session, transport Transport, s *ssh.Session) {
	err := s.Wait()
	if session.Destroyed() {
		return
	}
	exitCode := 0
	signal := ""
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
			signal = exitErr.Signal()
		}
	}
	_ = transport.Emit(EventClosed, map[string]any{
		"exitCode": exitCode,
		"signal":   signal,
	})
}

// initCommands names the one-shot commands run after shell open, paired
// with the "type" tag spec §6's `system-info {type, data}` payload reports
// them under.
var initCommands = []struct{ cmd, kind string }{
	{"uname -a", "uname"},
	{"uptime", "uptime"},
}

// runInitCommands enqueues uname -a / uptime as background commands whose
// results are reported via system-info rather than the terminal (spec §4.5).
func (c *Core) runInitCommands(session *Session, transport Transport) {
	for _, ic := range initCommands {
		ic := ic
		c.Queue.Enqueue(&queueEntry{
			session:    session,
			command:    ic.cmd,
			background: true,
			callback: func(res CommandResult) {
				if session.Destroyed() {
					return
				}
				data := res.Output
				if res.Error != nil {
					data = res.Error.Error()
				}
				_ = transport.Emit(EventSystemInfo, map[string]string{"type": ic.kind, "data": data})
			},
		})
	}
}

// runMonitoring installs the 1s monitoring loop two seconds after shell
// open, aborting the moment the session is destroyed (spec §4.5).
func (c *Core) runMonitoring(session *Session, transport Transport, stop chan struct{}) {
	select {
	case <-time.After(2 * time.Second):
	case <-stop:
		return
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	const cpuCmd = `top -bn1 | grep "Cpu(s)" | awk '{print $2}'`
	const memCmd = `free -m | awk '/Mem:/ {printf "%d %d", $3, $2}'`

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if session.Destroyed() {
			return
		}
		c.runDiagnostic(session, transport, cpuCmd, memCmd)
	}
}

// runDiagnostic runs the CPU and memory diagnostic commands sequentially
// through the SSH client directly (spec §4.5 says "via the SSH client", not
// the Command Queue — these are too frequent and too cheap to contend with
// the queue's concurrency cap), parses their numeric output, and emits a
// combined monitoring-data event in the `{type:"system-stats",
// stats:{cpu:{value},memory:{value}}}` shape spec §6 names.
func (c *Core) runDiagnostic(session *Session, transport Transport, cpuCmd, memCmd string) {
	client := session.SSHClient()
	if client == nil {
		return
	}

	cpuOut, cpuErr := runShort(client, cpuCmd)
	memOut, memErr := runShort(client, memCmd)
	if cpuErr != nil && memErr != nil {
		return
	}

	cpuValue, _ := parsePercent(cpuOut)
	memValue, _ := parseMemPercent(memOut)

	_ = transport.Emit(EventMonitoringData, map[string]any{
		"type": "system-stats",
		"stats": map[string]any{
			"cpu":    map[string]float64{"value": cpuValue},
			"memory": map[string]float64{"value": memValue},
		},
	})
}

// parsePercent reads the leading decimal number off raw output like
// "23.4%us," (the CPU diagnostic's awk output), ignoring any trailing
// unit/label text.
func parsePercent(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) && (raw[end] == '.' || raw[end] == '-' || (raw[end] >= '0' && raw[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseMemPercent turns the memory diagnostic's "<used> <total>" (in MB)
// output into a percentage-used figure.
func parseMemPercent(raw string) (float64, bool) {
	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return 0, false
	}
	used, errUsed := strconv.ParseFloat(fields[0], 64)
	total, errTotal := strconv.ParseFloat(fields[1], 64)
	if errUsed != nil || errTotal != nil || total == 0 {
		return 0, false
	}
	return used / total * 100, true
}

// runShort executes a single short diagnostic command on its own exec
// channel and returns its trimmed stdout.
func runShort(client *ssh.Client, command string) (string, error) {
	sess, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer sess.Close()
	out, err := sess.Output(command)
	if err != nil {
		return "", fmt.Errorf("diagnostic command failed: %w", err)
	}
	return string(bytes.TrimSpace(out)), nil
}
