package gateway

// Transport is the abstract client transport the core speaks through. A
// concrete implementation (e.g. a WebSocket connection) lives outside this
// package; the core only depends on this interface, per spec §1's framing
// of the client transport as an external collaborator consumed as a
// library.
type Transport interface {
	// ID returns the transport's opaque connection identifier.
	ID() string
	// Emit sends a named event with a JSON-serializable payload to the
	// client. Implementations must make a failing Emit non-fatal to the
	// SSH side (spec §7): callers never treat an Emit error as reason to
	// tear down a Session.
	Emit(event string, payload any) error
	// BindSession records the sessionId the gateway assigned to this
	// transport, so a later inbound event on the same connection (which
	// carries no sessionId of its own) can be routed to the right
	// Session. Called once a Connect dial succeeds and again on a
	// successful Reattach.
	BindSession(sessionID string)
}

// Outbound event names (spec §6).
const (
	EventConnected        = "connected"
	EventConnectionExists = "connection-exists"
	EventError            = "error"
	EventEnded            = "ended"
	EventClosed           = "closed"
	EventData             = "data"
	EventErrorData        = "error-data"
	EventHeartbeat        = "heartbeat"
	EventSystemInfo       = "system-info"
	EventMonitoringData   = "monitoring-data"
	EventCommandStream    = "command-output-stream"
	EventCommandResult    = "command-result"
	EventBatchResult      = "command-batch-result"
	EventCommandError     = "command-error"
	EventProcessKilled    = "process-killed"
	EventProcessStats     = "process-stats-update"
)

// Inbound event names (spec §6), used by the transport adapter to route to
// the matching gateway method.
const (
	EventCheckConnection  = "check-connection"
	EventConnect          = "connect"
	EventExecuteCommand   = "execute-command"
	EventExecuteBatch     = "execute-batch"
	EventRestartShell     = "restart-shell"
	EventResize           = "resize"
	EventInput            = "input"
	EventRefreshConn      = "refresh-connection"
	EventDisconnect       = "disconnect"
)

// ConnectParams is the payload of an inbound "connect" event.
type ConnectParams struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	PrivateKey string `json:"privateKey"`
	Passphrase string `json:"passphrase,omitempty"`
	SessionID  string `json:"sessionId,omitempty"` // reconnect handshake
}

// ExecuteCommandParams is the payload of an inbound "execute-command" event.
type ExecuteCommandParams struct {
	Command     string `json:"command"`
	Background  bool   `json:"background,omitempty"`
	ExecutionID string `json:"executionId,omitempty"`
	Stream      bool   `json:"stream,omitempty"`
}

// ExecuteBatchParams is the payload of an inbound "execute-batch" event.
type ExecuteBatchParams struct {
	Commands   []string `json:"commands"`
	BatchID    string   `json:"batchId"`
	Background bool     `json:"background,omitempty"`
}

// ResizeParams is the payload of an inbound "resize" event.
type ResizeParams struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// BatchResultEntry is one member of a command-batch-result payload.
type BatchResultEntry struct {
	Command    string `json:"command"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
	Background bool   `json:"background"`
}
