// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/CellintRC/internal/metrics"
	"github.com/AleutianAI/CellintRC/internal/observation"
	"github.com/AleutianAI/CellintRC/internal/store"
	"github.com/AleutianAI/CellintRC/pkg/logging"
)

// runImport imports one report file, or watches a directory with
// --watch.
func runImport(cmd *cobra.Command, args []string) error {
	if importWatch == "" && len(args) == 0 {
		return errors.New("provide a report file, or --watch <dir>")
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 1 {
		if err := importFile(st, logger, args[0]); err != nil {
			return err
		}
	}
	if importWatch != "" {
		return watchReports(st, logger, importWatch)
	}
	return nil
}

// importFile parses one report and ingests every observation.
func importFile(st *store.Store, logger *logging.Logger, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	obs, warnings, err := observation.Parse(f, time.Now())
	if err != nil {
		if errors.Is(err, observation.ErrUnrecognizedFormat) {
			return fmt.Errorf("%s: %w", path, err)
		}
		return err
	}

	ctx := context.Background()
	ingested := 0
	for _, o := range obs {
		if _, err := st.Ingest(ctx, o); err != nil {
			logger.Warn("ingest failed during import", "file", path, "error", err.Error())
			continue
		}
		ingested++
	}
	for _, w := range warnings {
		metrics.ParseWarnings.Inc()
		logger.Warn("report record skipped", "file", path, "detail", w.String())
	}

	logger.Info("import complete", "file", path, "records", ingested, "warnings", len(warnings))
	fmt.Printf("Imported %d observation(s) from %s", ingested, path)
	if len(warnings) > 0 {
		fmt.Printf(" (%d record(s) skipped, see operation log)", len(warnings))
	}
	fmt.Println()
	return nil
}

// watchReports imports report files as they appear in dir. Runs until
// interrupted.
func watchReports(st *store.Store, logger *logging.Logger, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start directory watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.Info("watching for reports", "dir", dir)
	fmt.Printf("Watching %s for report files (Ctrl-C to stop)...\n", dir)

	// Writers rarely produce a single atomic Create; debounce by path
	// and import once the file has settled.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			logger.Info("watch stopped", "dir", dir)
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err.Error())
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !isReportFile(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()
		case <-ticker.C:
			for path, touched := range pending {
				if time.Since(touched) < time.Second {
					continue
				}
				delete(pending, path)
				if err := importFile(st, logger, path); err != nil {
					logger.Warn("import failed", "file", path, "error", err.Error())
					fmt.Fprintf(os.Stderr, "Import failed for %s: %v\n", path, err)
				}
			}
		}
	}
}

// isReportFile filters watch events down to plausible report exports.
func isReportFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".log", ".csv":
		return true
	}
	return false
}
