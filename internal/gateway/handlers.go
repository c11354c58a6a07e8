package gateway

// Reattach implements the reconnect handshake of spec §4.3: given a
// transport and a client-supplied sessionId, if the Registry still holds
// that Session, rebind it to the new transport and announce
// connection-exists. Used both for the initial handshake (a sessionId
// present on transport open) and for an explicit check-connection event.
func (c *Core) Reattach(transport Transport, sessionID string) bool {
	session := c.Registry.Get(sessionID)
	if session == nil {
		return false
	}
	session.bindTransport(transport.ID())
	c.Registry.Bind(transport.ID(), sessionID)
	transport.BindSession(sessionID)
	session.TouchActivity()
	_ = transport.Emit(EventConnectionExists, map[string]string{"message": "Connection exists", "sessionId": sessionID})
	return true
}

// RefreshConnection re-confirms liveness of the Session currently bound to
// transport, used by a client that suspects its view is stale.
func (c *Core) RefreshConnection(transport Transport, sessionID string) {
	session := c.Registry.Get(sessionID)
	if session == nil {
		_ = transport.Emit(EventError, map[string]string{"message": "no such session"})
		return
	}
	session.TouchActivity()
	_ = transport.Emit(EventConnectionExists, map[string]string{"message": "Connection exists", "sessionId": sessionID})
}

// Input writes raw client keystrokes to the Session's open shell stdin.
func (c *Core) Input(sessionID string, data []byte) {
	session := c.Registry.Get(sessionID)
	if session == nil {
		return
	}
	sh := session.shellOrNil()
	if sh == nil {
		return
	}
	session.TouchActivity()
	_, _ = sh.stdin.Write(data)
}

// RestartShell closes the current PTY channel (if any) and reopens one,
// per the restart-shell event of spec §4.3/§6. The existing shell's
// goroutines observe the close through their own Read/Wait calls and exit
// on their own; no explicit cancellation is needed.
func (c *Core) RestartShell(transport Transport, sessionID string) {
	session := c.Registry.Get(sessionID)
	if session == nil || !session.Authenticated() {
		_ = transport.Emit(EventError, map[string]string{"message": "no authenticated session"})
		return
	}
	if sh := session.shellOrNil(); sh != nil {
		_ = sh.session.Close()
	}
	c.openShell(session, transport)
}

// Disconnect is the explicit client-initiated teardown of spec §3's
// Cleanup: unlike a transport going away (which only stops the heartbeat,
// per §4.3), this destroys the Session outright.
func (c *Core) Disconnect(sessionID string) {
	session := c.Registry.Get(sessionID)
	if session == nil {
		return
	}
	c.destroySession(session)
}

// HandleTransportClosed implements spec §4.3's transport-disconnect
// handling: only the mapping to this transport is removed, the Session is
// left intact for a future reconnect or Janitor sweep.
func (c *Core) HandleTransportClosed(transportID string) {
	c.Registry.Unbind(transportID)
}
