// Command signalserver runs the WebRTC signaling and collaboration
// server. It wires the Config, Runtime, and the adjacent HTTP endpoints
// together and serves until interrupted, then drains connections
// gracefully.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signalcore/internal/config"
	"signalcore/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.FromEnv()
	rt := server.NewRuntime(cfg, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", rt.ServeWS)
	mux.HandleFunc("/healthz", rt.HealthzHandler)
	mux.HandleFunc("/ice-servers", rt.ICEServersHandler)
	mux.HandleFunc("/token", rt.TokenHandler)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", slog.String("addr", cfg.Addr), slog.Bool("production", cfg.Production))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown signal received")
	rt.Shutdown(cfg.ShutdownDrain)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}
}
