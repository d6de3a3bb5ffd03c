// Slide capture server - drives the capture engine and serves its REST,
// WebSocket and gRPC health endpoints
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/GriffinCanCode/slidecapture/internal/config"
	"github.com/GriffinCanCode/slidecapture/internal/orchestrator"
	"github.com/GriffinCanCode/slidecapture/internal/server"
	"github.com/GriffinCanCode/slidecapture/internal/trace"
)

const (
	startupTimeout  = time.Minute
	shutdownTimeout = 5 * time.Second
)

func main() {
	cfg := config.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startCtx, startCancel := context.WithTimeout(ctx, startupTimeout)
	mgr, err := orchestrator.New(startCtx, cfg)
	startCancel()
	if err != nil {
		slog.Error("failed to start capture", "source", cfg.SourceKind, "error", err)
		os.Exit(1)
	}
	defer mgr.Close()

	srv := server.New(mgr)
	defer srv.Close()

	go func() {
		if err := mgr.Run(ctx); err != nil {
			slog.Error("capture engine error", "error", err)
		}
	}()

	// gRPC health
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(trace.UnaryServerInterceptor()),
		grpc.StreamInterceptor(trace.StreamServerInterceptor()),
	)
	mgr.Health().Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		slog.Error("grpc listen failed", "addr", cfg.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("grpc server error", "error", err)
		}
	}()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     srv.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("slide capture server starting", "http", cfg.HTTPAddr, "grpc", cfg.GRPCAddr, "source", cfg.SourceKind)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// finalize an active session before the loop exits
	if mgr.Engine().Snapshot().Status.Active() {
		if err := mgr.Engine().Stop(shutdownCtx); err != nil {
			slog.Error("final stop failed", "error", err)
		}
	}
	cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	mgr.Health().Shutdown()
	grpcServer.GracefulStop()
	slog.Info("shutdown complete")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
