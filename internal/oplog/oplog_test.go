// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oplog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CellintRC/pkg/logging"
)

func TestExportAppendsLines(t *testing.T) {
	dir := t.TempDir()
	exp, err := Open(dir)
	require.NoError(t, err)

	ts := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	err = exp.Export(context.Background(), logging.LogEntry{
		Timestamp: ts,
		Level:     logging.LevelInfo,
		Message:   "session started",
		Attrs:     map[string]any{"interval": "5s", "duration": "0s"},
	})
	require.NoError(t, err)
	require.NoError(t, exp.Close())

	raw, err := os.ReadFile(filepath.Join(dir, Filename))
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))
	assert.Equal(t, "2026-08-25 12:00:00 - INFO - session started duration=0s interval=5s", line)
}

func TestExportAppendsAcrossOpens(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		exp, err := Open(dir)
		require.NoError(t, err)
		err = exp.Export(context.Background(), logging.LogEntry{
			Timestamp: time.Now(),
			Level:     logging.LevelWarn,
			Message:   "reader failed",
		})
		require.NoError(t, err)
		require.NoError(t, exp.Close())
	}

	raw, err := os.ReadFile(filepath.Join(dir, Filename))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 2, "reopening must append, not truncate")
}

func TestExporterFeedsFromLogger(t *testing.T) {
	dir := t.TempDir()
	exp, err := Open(dir)
	require.NoError(t, err)

	logger := logging.New(logging.Config{
		Level:    logging.LevelInfo,
		Service:  "cellint",
		Quiet:    true,
		Exporter: exp,
	})
	logger.Info("import complete", "records", 3)
	logger.Debug("below threshold, not exported")
	require.NoError(t, logger.Close())

	raw, err := os.ReadFile(filepath.Join(dir, Filename))
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "import complete records=3")
	assert.NotContains(t, content, "below threshold")
}

func TestCloseIdempotent(t *testing.T) {
	exp, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, exp.Close())
	require.NoError(t, exp.Close())

	// Export after close is a silent no-op.
	require.NoError(t, exp.Export(context.Background(), logging.LogEntry{Message: "late"}))
}
