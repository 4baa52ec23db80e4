// Package main is the entry point for the placemap server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"placemap/config"
	"placemap/internal/app"
	"placemap/internal/logging"
	"placemap/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	configFile := flag.String("config", "", "Path to a YAML config file (overrides CONFIG_FILE)")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	if *configFile != "" {
		if err := os.Setenv("CONFIG_FILE", *configFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to set CONFIG_FILE: %v\n", err)
			os.Exit(1)
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// logging is not configured yet
		logging.Setup(logging.Options{})
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// Log the version immediately on startup
	slog.Info("starting placemap",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := application.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := application.Start(":" + cfg.Server.Port); err != nil {
		slog.Error("server failed", "error", err)
		_ = application.Shutdown(context.Background())
		os.Exit(1)
	}
	<-shutdownDone
}
