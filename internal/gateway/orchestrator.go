package gateway

import (
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
)

// Connect drives a new Session from NEW through DIALING, AUTHENTICATING,
// READY and into SHELL_OPEN, per the state machine in spec §4.4. Any
// terminal event (error/end/close/disconnect) from here on moves the
// Session to TEARDOWN, after which it is a no-op.
func (c *Core) Connect(transport Transport, params ConnectParams) {
	log := c.log.With().Str("component", "orchestrator").Logger()

	// Step 1: validate presence of all required fields.
	if err := validateConnectParams(params); err != nil {
		_ = transport.Emit(EventError, map[string]string{"message": err.Error()})
		return
	}

	// Step 2: trim/validate/normalize the private key.
	signer, err := parsePrivateKey(params.PrivateKey, params.Passphrase)
	if err != nil {
		_ = transport.Emit(EventError, map[string]string{"message": err.Error()})
		return
	}

	port := params.Port
	if port == 0 {
		port = 22
	}

	// Step 3: generate a fresh sessionId, bind to the transport.
	sessionID := uuid.NewString()
	session := NewSession(sessionID, params.Host, port, params.Username)
	session.bindTransport(transport.ID())

	// Step 4/5: build and configure the SSH client. maxSessions=6 has no
	// client-side knob in golang.org/x/crypto/ssh — a server enforces its
	// own channel cap — so it is approximated on our side by the Command
	// Queue's concurrency bound plus the one shell and one monitoring
	// channel this package opens per session.
	config := &ssh.ClientConfig{
		Config:            sshAlgorithms(),
		User:              params.Username,
		Auth:              authMethods(signer),
		HostKeyAlgorithms: hostKeyAlgorithms(),
		HostKeyCallback:   c.opts.HostKeyPolicy.Callback(),
		Timeout:           c.opts.ReadyTimeout,
		BannerCallback:    ssh.BannerDisplayStderr(),
	}

	// Step 6: arm the hard auth timeout.
	hardTimer := time.AfterFunc(c.opts.HardAuthTimeout, func() {
		if session.Authenticated() || session.Destroyed() {
			return
		}
		log.Warn().Str("session", sessionID).Msg("authentication timeout")
		_ = transport.Emit(EventError, map[string]string{"message": "Authentication timeout"})
		c.destroySession(session)
	})
	session.SetHardAuthTimer(hardTimer)

	// Step 7: arm the watchdog, logging progress every 5s while
	// unauthenticated; cleared on any terminal SSH event. Stopping a
	// Ticker never closes its channel, so the goroutine also selects on
	// an explicit stop channel closed by clearAuthTimers — otherwise it
	// would block on watchdog.C forever once authentication completes.
	watchdog := time.NewTicker(5 * time.Second)
	watchdogStop := make(chan struct{})
	session.SetWatchdog(watchdog, watchdogStop)
	go func() {
		for {
			select {
			case <-watchdogStop:
				return
			case <-watchdog.C:
				if session.Authenticated() || session.Destroyed() {
					return
				}
				log.Debug().Str("session", sessionID).Msg("still authenticating")
			}
		}
	}()

	addr := net.JoinHostPort(params.Host, strconv.Itoa(port))

	// Step 8: dial. This blocks the connect goroutine only, never a lock.
	go func() {
		client, err := ssh.Dial("tcp", addr, config)
		if err != nil {
			log.Error().Err(err).Str("session", sessionID).Msg("ssh dial failed")
			_ = transport.Emit(EventError, map[string]string{"message": err.Error()})
			c.destroySession(session)
			return
		}
		if session.Destroyed() {
			// Torn down (e.g. by the hard auth timeout) while dialing.
			_ = client.Close()
			return
		}

		session.SetSSHClient(client)
		session.MarkAuthenticated()
		c.Registry.Insert(session)
		c.Registry.Bind(transport.ID(), sessionID)
		transport.BindSession(sessionID)

		_ = transport.Emit(EventConnected, map[string]string{
			"message":   "Connected",
			"sessionId": sessionID,
		})

		// Step 9: watch the underlying connection; when it drops, surface
		// the right terminal event and tear the Session down.
		go c.watchConnection(session, transport, client)
		go keepalive(session, client)

		c.openShell(session, transport)
	}()
}

// keepalive sends an SSH keepalive global request every 10s (spec §4.4
// step 4); three consecutive failures are treated as a dead connection and
// the client is closed, which surfaces through watchConnection as `error`.
func keepalive(session *Session, client *ssh.Client) {
	const interval = 10 * time.Second
	const maxMissed = 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	missed := 0
	for range ticker.C {
		if session.Destroyed() {
			return
		}
		_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
		if err != nil {
			missed++
			if missed >= maxMissed {
				_ = client.Close()
				return
			}
			continue
		}
		missed = 0
	}
}

// authMethods implements the priority-ordered auth-method selector from
// spec §4.4 step 5. The "connect" payload (spec §6) carries only a private
// key and an optional passphrase — never a password — so the password
// fallback has nothing to offer and is intentionally omitted; publickey is
// tried first, keyboard-interactive second, answering every prompt with an
// empty string since the private key is the intended mechanism.
func authMethods(signer ssh.Signer) []ssh.AuthMethod {
	return []ssh.AuthMethod{
		ssh.PublicKeys(signer),
		ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			return answers, nil
		}),
	}
}

// watchConnection surfaces SSH-side end/close/error events and tears the
// Session down (spec §4.4 step 9). golang.org/x/crypto/ssh has no generic
// "event" callback, so the equivalent signal is the underlying connection
// going away, observed via Wait on the multiplexed connection. Wait never
// returns nil; io.EOF marks a clean close by the server.
func (c *Core) watchConnection(session *Session, transport Transport, client *ssh.Client) {
	err := client.Wait()
	if session.Destroyed() {
		return
	}
	if err != nil && !errors.Is(err, io.EOF) {
		_ = transport.Emit(EventError, map[string]string{"message": err.Error()})
	} else {
		_ = transport.Emit(EventEnded, map[string]string{"message": "SSH connection ended"})
	}
	c.destroySession(session)
}

// destroySession tears a Session down and removes it from the Registry.
// Safe to call multiple times or on a Session never inserted (Destroy is
// idempotent; Registry.Remove on an absent id is a no-op).
func (c *Core) destroySession(session *Session) {
	session.Destroy()
	c.Queue.ClearSession(session.SessionID)
	c.Registry.Remove(session.SessionID)
}
