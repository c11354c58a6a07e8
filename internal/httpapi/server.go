// Package httpapi wires the HTTP surface named out of scope by spec §1:
// routing, CORS, the health endpoint, and the WebSocket upgrade route.
// Grounded on the control-plane main.go's chi.NewRouter()/middleware
// pattern; no CORS library appears anywhere in the example corpus, so the
// CORS policy here is a small net/http middleware in the same style chi's
// own middleware package uses, not a third-party one.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"sshgateway/internal/config"
	"sshgateway/internal/gateway"
	"sshgateway/internal/transport"
)

// New builds the HTTP server: /health, the WebSocket upgrade route at
// /ws, and the CORS policy from cfg.
func New(cfg config.Config, core *gateway.Core, log zerolog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors(cfg.CORSOrigins))

	r.Get("/health", healthHandler(core))
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		transport.Serve(w, r, core, log)
	})

	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func healthHandler(core *gateway.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := core.Health()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"connections": snap.Connections,
			"uptime":      snap.UptimeSeconds,
			"memory": map[string]uint64{
				"heapAlloc": snap.Memory.HeapAllocBytes,
				"sys":       snap.Memory.SysBytes,
			},
			"queuedCommands":  snap.QueuedCommands,
			"runningCommands": snap.RunningCommands,
		})
	}
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		})
	}
}

// cors allows the configured origins (or "*" to allow any), matching
// the loose CORS_ORIGIN knob spec §1 lists as an ambient, out-of-core
// concern.
func cors(allowed []string) func(http.Handler) http.Handler {
	allowAll := len(allowed) == 0
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if allowAll || contains(allowed, origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
