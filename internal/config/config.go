// Package config loads gateway configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all gateway configuration. The listener, CORS and
// environment fields come from environment variables; the queue, timeout
// and janitor fields are fixed defaults.
type Config struct {
	ListenAddr     string // PORT / SSH_SERVER_PORT
	Host           string // HOST
	CORSOrigins    []string
	Environment    string // NODE_ENV
	ProductionURL  string

	QueueMaxConcurrent int
	QueueDelay         time.Duration
	QueueMaxPending    int

	HardAuthTimeout time.Duration
	ReadyTimeout    time.Duration
	ShellTimeout    time.Duration

	IdleTimeout      time.Duration
	IdleSweep        time.Duration
	MemorySweep      time.Duration
	MemoryHeapLimit  uint64
	HeartbeatEvery   time.Duration
	CoalesceWindow   time.Duration
}

// Load reads configuration from the environment with the teacher's
// precedence (explicit env var beats built-in default), via viper. Only
// PORT/SSH_SERVER_PORT, HOST, CORS_ORIGIN, NODE_ENV and PRODUCTION_URL are
// read; the queue, timeout and janitor tunables are set to fixed values
// below and cannot be overridden from the environment.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "3001")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("NODE_ENV", "development")
	v.SetDefault("PRODUCTION_URL", "")

	port := v.GetString("SSH_SERVER_PORT")
	if port == "" {
		port = v.GetString("PORT")
	}

	origins := splitCSV(v.GetString("CORS_ORIGIN"))

	return Config{
		ListenAddr:    ":" + strings.TrimPrefix(port, ":"),
		Host:          v.GetString("HOST"),
		CORSOrigins:   origins,
		Environment:   v.GetString("NODE_ENV"),
		ProductionURL: v.GetString("PRODUCTION_URL"),

		QueueMaxConcurrent: 3,
		QueueDelay:         300 * time.Millisecond,
		QueueMaxPending:    200,

		HardAuthTimeout: 15 * time.Second,
		ReadyTimeout:    30 * time.Second,
		ShellTimeout:    5 * time.Second,

		IdleTimeout:     30 * time.Minute,
		IdleSweep:       10 * time.Minute,
		MemorySweep:     2 * time.Minute,
		MemoryHeapLimit: 800 * 1024 * 1024,
		HeartbeatEvery:  5 * time.Second,
		CoalesceWindow:  50 * time.Millisecond,
	}
}

// Addr returns the address the HTTP listener should bind, honoring Host
// when it names a specific interface.
func (c Config) Addr() string {
	if c.Host != "" && c.Host != "0.0.0.0" {
		return c.Host + c.ListenAddr
	}
	return c.ListenAddr
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
