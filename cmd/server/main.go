// Package main is the entry point for the SSH gateway server.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"sshgateway/internal/config"
	"sshgateway/internal/gateway"
	"sshgateway/internal/httpapi"
	"sshgateway/internal/logging"
)

const serverName = "ssh-gateway"

// Injected at build time.
var commitSHA = "dev"

func main() {
	cfg := config.Load()
	debug := cfg.Environment != "production"

	log := logging.New(debug)
	log.Info().Str("commit", commitSHA).Str("addr", cfg.Addr()).Str("env", cfg.Environment).Msg("starting ssh gateway")

	core := gateway.New(gateway.Options{
		QueueMaxConcurrent: cfg.QueueMaxConcurrent,
		QueueDelay:         cfg.QueueDelay,
		QueueMaxPending:    cfg.QueueMaxPending,
		HardAuthTimeout:    cfg.HardAuthTimeout,
		ReadyTimeout:       cfg.ReadyTimeout,
		ShellTimeout:       cfg.ShellTimeout,
		IdleTimeout:        cfg.IdleTimeout,
		IdleSweep:          cfg.IdleSweep,
		MemorySweep:        cfg.MemorySweep,
		MemoryHeapLimit:    cfg.MemoryHeapLimit,
		HeartbeatEvery:     cfg.HeartbeatEvery,
		CoalesceWindow:     cfg.CoalesceWindow,
	}, log)

	janitor := gateway.NewJanitor(core, log)
	janitor.Start()

	srv := httpapi.New(cfg, core, log)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http listener starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-sigCtx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	janitor.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}

	log.Info().Msg("server stopped")
}
