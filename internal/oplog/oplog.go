// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package oplog writes the append-only operation log
// (cellint_operations.log): a plain-text audit trail of session
// lifecycle events, imports, and warnings.
//
// It plugs into pkg/logging as a LogExporter, so every logged event
// lands in the operation log without callers doing anything beyond
// normal logging.
package oplog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/CellintRC/pkg/logging"
)

// Filename is the operation log file name inside the log directory.
const Filename = "cellint_operations.log"

// Exporter appends log entries to the operation log file.
//
// Thread Safety: safe for concurrent use.
type Exporter struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

var _ logging.LogExporter = (*Exporter)(nil)

// Open creates (or appends to) the operation log in dir.
//
// Inputs:
//
//	dir - Log directory. Created with 0750 permissions if missing.
//
// Outputs:
//
//	*Exporter - The exporter. Call Close (or close the owning Logger)
//	to flush.
func Open(dir string) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, Filename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open operation log %s: %w", path, err)
	}
	return &Exporter{
		file: file,
		w:    bufio.NewWriter(file),
	}, nil
}

// Export appends one line: timestamp, level, message, sorted attrs.
func (e *Exporter) Export(ctx context.Context, entry logging.LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}

	var b strings.Builder
	b.WriteString(entry.Timestamp.Format("2006-01-02 15:04:05"))
	b.WriteString(" - ")
	b.WriteString(entry.Level.String())
	b.WriteString(" - ")
	b.WriteString(entry.Message)

	if len(entry.Attrs) > 0 {
		keys := make([]string, 0, len(entry.Attrs))
		for k := range entry.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Attrs[k])
		}
	}
	b.WriteByte('\n')

	_, err := e.w.WriteString(b.String())
	return err
}

// Flush drains the write buffer and syncs the file.
func (e *Exporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	if err := e.w.Flush(); err != nil {
		return err
	}
	return e.file.Sync()
}

// Close flushes and closes the file. Safe to call more than once.
func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	flushErr := e.w.Flush()
	closeErr := e.file.Close()
	e.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
