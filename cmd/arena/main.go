package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"

	"llmarena/internal/app"
	"llmarena/internal/config"
)

func main() {
	cfg := config.FromEnv()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(log)

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("startup_failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Error("shutdown_failed", slog.Any("err", err))
		}
	}()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handlers.LoggingHandler(os.Stdout, application.Router()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("arena_listening", slog.String("addr", cfg.ListenAddr), slog.String("data_dir", cfg.DataDir))
	log.Info("admin_url", slog.String("url", adminURL(cfg.ListenAddr, application.AdminToken())))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server_failed", slog.Any("err", err))
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func adminURL(listenAddr, token string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return fmt.Sprintf("http://%s/api/settings?token=%s", listenAddr, token)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s/api/settings?token=%s", net.JoinHostPort(host, port), token)
}
