// Package transport implements the client transport named in spec §6 as a
// WebSocket connection, adapting it to the gateway.Transport interface and
// driving the Transport Adapter event-dispatch loop of spec §4.3.
package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"sshgateway/internal/gateway"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// envelope is the wire framing for every message in either direction: a
// named event plus its JSON payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn adapts one WebSocket connection to gateway.Transport and owns its
// read/dispatch/heartbeat loops.
type Conn struct {
	id   string
	ws   *websocket.Conn
	core *gateway.Core
	log  zerolog.Logger

	writeMu sync.Mutex

	heartbeatStop  chan struct{}
	heartbeatOnce  sync.Once
	heartbeatStart sync.Once

	sessionMu sync.Mutex
	sessionID string
}

// ID implements gateway.Transport.
func (c *Conn) ID() string { return c.id }

// BindSession implements gateway.Transport.
func (c *Conn) BindSession(sessionID string) { c.setSessionID(sessionID) }

// Emit implements gateway.Transport. A write error is returned to the caller
// and not logged; gateway callers discard it (spec §7: a transport failure
// is never fatal to the SSH side).
func (c *Conn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := envelope{Event: event, Data: data}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(env)
}

// Serve upgrades the HTTP request to a WebSocket and runs the connection
// until it closes. Call from an http.Handler.
func Serve(w http.ResponseWriter, r *http.Request, core *gateway.Core, log zerolog.Logger) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	c := &Conn{
		id:            id,
		ws:            ws,
		core:          core,
		log:           log.With().Str("component", "transport").Str("transportId", id).Logger(),
		heartbeatStop: make(chan struct{}),
	}

	defer c.close()

	// Initial handshake: an optional sessionId in the query string drives
	// the reconnect path of spec §4.3.
	if sid := r.URL.Query().Get("sessionId"); sid != "" {
		if core.Reattach(c, sid) {
			c.startHeartbeat()
		}
	}

	c.readLoop()
}

func (c *Conn) setSessionID(id string) {
	c.sessionMu.Lock()
	c.sessionID = id
	c.sessionMu.Unlock()
}

func (c *Conn) boundSessionID() string {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.sessionID
}

// startHeartbeat begins the keepalive emission of spec §4.3, at the
// interval core.HeartbeatInterval() reports. Safe to call more than once;
// only the first call takes effect.
func (c *Conn) startHeartbeat() {
	c.heartbeatStart.Do(func() {
		go func() {
			ticker := time.NewTicker(c.core.HeartbeatInterval())
			defer ticker.Stop()
			for {
				select {
				case <-c.heartbeatStop:
					return
				case <-ticker.C:
					if err := c.Emit(gateway.EventHeartbeat, map[string]int64{"timestamp": time.Now().Unix()}); err != nil {
						return
					}
				}
			}
		}()
	})
}

func (c *Conn) stopHeartbeat() {
	c.heartbeatOnce.Do(func() { close(c.heartbeatStop) })
}

// close stops the heartbeat and closes the socket; per spec §4.3 this never
// destroys the bound Session.
func (c *Conn) close() {
	c.stopHeartbeat()
	c.core.HandleTransportClosed(c.id)
	_ = c.ws.Close()
}

// readLoop pulls envelopes off the socket and dispatches them to the
// matching gateway operation (spec §4.3).
func (c *Conn) readLoop() {
	for {
		var env envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}
		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env envelope) {
	switch env.Event {
	case gateway.EventCheckConnection:
		var p struct {
			SessionID string `json:"sessionId"`
		}
		if json.Unmarshal(env.Data, &p) == nil && p.SessionID != "" {
			if c.core.Reattach(c, p.SessionID) {
				c.startHeartbeat()
			}
		}

	case gateway.EventConnect:
		var p gateway.ConnectParams
		if err := json.Unmarshal(env.Data, &p); err != nil {
			_ = c.Emit(gateway.EventError, map[string]string{"message": "malformed connect payload"})
			return
		}
		c.core.Connect(c, p)
		c.startHeartbeat()

	case gateway.EventExecuteCommand:
		var p gateway.ExecuteCommandParams
		if err := json.Unmarshal(env.Data, &p); err != nil {
			_ = c.Emit(gateway.EventCommandError, map[string]any{
				"command":        "",
				"error":          "malformed execute-command payload",
				"needsElevation": false,
			})
			return
		}
		c.core.ExecuteCommand(c, c.boundSessionID(), p, func(res gateway.CommandResult) {
			payload := map[string]any{
				"executionId": p.ExecutionID,
				"output":      res.Output,
				"errorOutput": res.ErrorOutput,
				"background":  res.Background,
			}
			if res.Error != nil {
				payload["error"] = res.Error.Error()
			}
			_ = c.Emit(gateway.EventCommandResult, payload)
		})

	case gateway.EventExecuteBatch:
		var p gateway.ExecuteBatchParams
		if err := json.Unmarshal(env.Data, &p); err != nil {
			_ = c.Emit(gateway.EventError, map[string]string{"message": "malformed execute-batch payload"})
			return
		}
		go c.core.ExecuteBatch(c, c.boundSessionID(), p)

	case gateway.EventRestartShell:
		c.core.RestartShell(c, c.boundSessionID())

	case gateway.EventResize:
		var p gateway.ResizeParams
		if json.Unmarshal(env.Data, &p) == nil {
			if session := c.core.Registry.Get(c.boundSessionID()); session != nil {
				session.Resize(p.Cols, p.Rows)
			}
		}

	case gateway.EventInput:
		var p struct {
			Data string `json:"data"`
		}
		if json.Unmarshal(env.Data, &p) == nil {
			c.core.Input(c.boundSessionID(), []byte(p.Data))
		}

	case gateway.EventRefreshConn:
		c.core.RefreshConnection(c, c.boundSessionID())

	case gateway.EventDisconnect:
		c.core.Disconnect(c.boundSessionID())

	default:
		c.log.Debug().Str("event", env.Event).Msg("unhandled inbound event")
	}
}
