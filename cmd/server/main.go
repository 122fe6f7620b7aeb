// Package main is the entry point for the MentorFlow server.
//
// main stays minimal:
//  1. Load configuration (viper: defaults, config.yaml, environment)
//  2. Build the logger (console + rotating file) and watch the log level
//  3. Make sure the database directory exists
//  4. Create and start the server
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/mentorflow/internal/config"
	"github.com/sakif/mentorflow/internal/logging"
	"github.com/sakif/mentorflow/internal/server"
)

func main() {
	// Configuration warnings need a logger before the real one exists.
	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Getenv("CONFIG_DIR"), bootLogger)
	if err != nil {
		bootLogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var level slog.LevelVar
	level.Set(cfg.Level())
	logger, closer := logging.New(os.Stdout, logging.Options{
		Level: &level,
		File:  cfg.LogFile,
	})
	defer closer.Close()

	// Only the log level is applied live; everything else needs a restart.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := config.Watch(watchCtx, os.Getenv("CONFIG_DIR"), logger, func(c *config.Config) {
		level.Set(c.Level())
	}); err != nil {
		logger.Warn("config hot reload disabled", slog.String("error", err.Error()))
	}

	if !strings.HasPrefix(cfg.BackendURL, ":memory:") && !strings.HasPrefix(cfg.BackendURL, "file:") {
		dbDir := filepath.Dir(cfg.BackendURL)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		closer.Close()
		os.Exit(1)
	}
}
