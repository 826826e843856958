// Voice bridge server - relays telephony media streams to a realtime speech endpoint
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/voicebridge/internal/admin"
	"github.com/GriffinCanCode/voicebridge/internal/config"
	"github.com/GriffinCanCode/voicebridge/internal/metrics"
	"github.com/GriffinCanCode/voicebridge/internal/orchestrator"
	"github.com/GriffinCanCode/voicebridge/internal/realtime"
	"github.com/GriffinCanCode/voicebridge/internal/resilience"
	"github.com/GriffinCanCode/voicebridge/internal/server"
	"github.com/GriffinCanCode/voicebridge/internal/telemetry"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		// Sessions still start and fail with this error; the socket stays up.
		slog.Warn("configuration incomplete", "error", err)
	}

	collector := metrics.New()
	breaker := resilience.New(resilience.Config{
		Threshold:    cfg.DialBreakerThreshold,
		ResetTimeout: cfg.DialBreakerReset,
	}).WithHook(func(from, to resilience.State) {
		slog.Warn("realtime dial breaker", "from", from, "to", to)
		collector.BreakerHook(from, to)
	})

	dialer := &orchestrator.RealtimeDialer{
		Base: realtime.Options{
			URL:              cfg.RealtimeURL,
			APIKey:           cfg.APIKey,
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
		},
		Breaker: breaker,
	}
	sink := telemetry.Multi{telemetry.NewLogSink(), collector}
	mgr := orchestrator.NewManager(orchestrator.OptionsFromConfig(cfg, sink), dialer)

	// Start HTTP server
	srv := server.New(mgr, mgr.Registry(), collector.Handler(), cfg)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		slog.Info("voice bridge starting", "http", cfg.HTTPAddr, "media_path", cfg.MediaStreamPath, "realtime", cfg.RealtimeURL)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// Start admin gRPC server
	adminServer := admin.NewServer(mgr.Registry())
	lis, err := net.Listen("tcp", cfg.AdminAddr)
	if err != nil {
		slog.Error("failed to listen for admin", "addr", cfg.AdminAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("admin server starting", "grpc", cfg.AdminAddr)
		if err := adminServer.Serve(lis); err != nil {
			slog.Error("admin server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Drain calls first; hijacked sockets are invisible to http.Server.Shutdown.
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		slog.Error("session drain error", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	adminServer.Shutdown()
	slog.Info("shutdown complete")
}
