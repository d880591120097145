// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"github.com/AleutianAI/CellintRC/cmd/cellint/config"
	"github.com/AleutianAI/CellintRC/internal/fusion"
	"github.com/AleutianAI/CellintRC/internal/oplog"
	"github.com/AleutianAI/CellintRC/internal/store"
	"github.com/AleutianAI/CellintRC/pkg/logging"
)

// newLogger builds the CLI logger with the operation log attached.
// The caller owns Close.
func newLogger() (*logging.Logger, error) {
	logDir := config.ExpandPath(config.Global.Storage.LogDir)
	exporter, err := oplog.Open(logDir)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:    logging.LevelInfo,
		LogDir:   logDir,
		Service:  "cellint",
		Exporter: exporter,
	}), nil
}

// openStore opens the configured device database. The caller owns
// Close.
func openStore(logger *logging.Logger) (*store.Store, error) {
	dbDir := config.ExpandPath(config.Global.Storage.DatabaseDir)
	cfg := store.DefaultDBConfig(dbDir)
	if logger != nil {
		cfg.Logger = logger.Slog()
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open device database at %s: %w", dbDir, err)
	}
	return st, nil
}

// fusionConfig maps the YAML tuning onto the fusion engine.
func fusionConfig() fusion.Config {
	return fusion.Config{
		Window:          config.Global.FusionWindow(),
		ComparableRatio: config.Global.Fusion.ComparableRatio,
	}
}

// parseTimeFlag parses an optional RFC 3339 flag value. Empty means
// unset (zero time).
func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected RFC 3339 time (e.g. 2026-08-25T12:00:00Z): %w", name, err)
	}
	return ts, nil
}

// formatAge renders "how long ago" for list output.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return t.Format("2006-01-02")
	}
}
