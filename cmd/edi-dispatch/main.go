package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edi-link/dispatch-gateway/internal/auth"
	"github.com/edi-link/dispatch-gateway/internal/config"
	"github.com/edi-link/dispatch-gateway/internal/gateway"
	"github.com/edi-link/dispatch-gateway/internal/logging"
)

var version = "dev"

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	bind := flag.String("bind", "", "Address to bind to (overrides config)")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *port > 0 {
		cfg.ListenPort = *port
	}
	if *bind != "" {
		cfg.ListenHost = *bind
	}
	if cfg.ListenHost != "127.0.0.1" && cfg.ListenHost != "localhost" && cfg.ListenHost != "::1" {
		fmt.Fprintf(os.Stderr, "Warning: gateway bind=%q exposes a network-reachable dispatch surface. Prefer 127.0.0.1 unless auth is configured.\n", cfg.ListenHost)
	}

	log := logging.New(logging.Config{Level: parseLevel(cfg.LogLevel)})

	log.Info("starting edi-dispatch", map[string]any{
		"version":            version,
		"listen":             fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort),
		"threadsDir":         cfg.ThreadsDir,
		"authConfigured":     cfg.AuthSecret != "",
		"authFingerprint":    auth.SecretFingerprint(cfg.AuthSecret),
		"webhookConfigured":  cfg.WebhookSecret != "",
		"webhookFingerprint": auth.SecretFingerprint(cfg.WebhookSecret),
	})

	gw := gateway.New(cfg, log)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort),
		Handler: gw.Router(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down", nil)
		gw.CancelAllRunning()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
