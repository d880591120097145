// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/AleutianAI/CellintRC/internal/observation"
	"github.com/AleutianAI/CellintRC/internal/session"
)

// Feed record sources. Each JSONL line carries one reading.
const (
	sourceCell    = "cell"
	sourceGPS     = "gps"
	sourceNetwork = "network"
)

// errFeedExhausted is returned once the feed has no more readings.
var errFeedExhausted = errors.New("reading feed exhausted")

// feedRecord is one JSONL line of the reading feed.
//
//	{"source":"cell","mcc":310,"mnc":260,"lac":1001,"cid":55,"rsrp":-95}
//	{"source":"gps","lat":37.77,"lon":-122.41,"accuracy":5}
type feedRecord struct {
	Source    string `json:"source"`
	Timestamp string `json:"timestamp,omitempty"`

	MCC  int `json:"mcc,omitempty"`
	MNC  int `json:"mnc,omitempty"`
	LAC  int `json:"lac,omitempty"`
	CID  int `json:"cid,omitempty"`
	PCI  int `json:"pci,omitempty"`
	RSRP int `json:"rsrp,omitempty"`

	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
	Accuracy float64 `json:"accuracy,omitempty"`

	Identifier string `json:"identifier,omitempty"`
}

// feedLine is one scanned line handed from the scan goroutine to a
// reader: either a parsed observation or the parse error for that line.
type feedLine struct {
	source string
	obs    observation.Observation
	err    error
}

// jsonlFeed supplies readings line by line from a file or stdin,
// routing each record to the reader that asked for its source.
//
// Scanning runs on its own goroutine so a reader blocked on a quiet
// feed (a pipe, stdin) still honors its context deadline and never
// holds a lock across the read.
//
// Thread Safety: safe for concurrent readers.
type jsonlFeed struct {
	mu      sync.Mutex // guards pending
	pending map[string][]observation.Observation

	file      *os.File // nil when reading stdin
	lines     chan feedLine
	exhausted chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

// openFeed opens the feed at path, with "-" meaning stdin.
func openFeed(path string) (*jsonlFeed, error) {
	if path == "-" {
		return newFeed(os.Stdin, nil), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reading feed: %w", err)
	}
	return newFeed(f, f), nil
}

func newFeed(r io.Reader, file *os.File) *jsonlFeed {
	feed := &jsonlFeed{
		pending:   make(map[string][]observation.Observation),
		file:      file,
		lines:     make(chan feedLine),
		exhausted: make(chan struct{}),
		closing:   make(chan struct{}),
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	go feed.scan(scanner)
	return feed
}

// scan reads the feed to the end, handing each non-empty line to
// whichever reader is waiting. Runs until EOF or Close.
func (f *jsonlFeed) scan(scanner *bufio.Scanner) {
	defer func() {
		close(f.exhausted)
		close(f.lines)
	}()
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line feedLine
		var rec feedRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			line.err = fmt.Errorf("malformed feed line: %w", err)
		} else {
			line.source = rec.Source
			line.obs, line.err = rec.observation()
		}

		select {
		case f.lines <- line:
		case <-f.closing:
			return
		}
	}
}

// Exhausted is closed when the feed has been fully consumed or closed.
func (f *jsonlFeed) Exhausted() <-chan struct{} {
	return f.exhausted
}

// Close stops the scan goroutine and releases the underlying file.
// Idempotent; both session readers share the feed.
func (f *jsonlFeed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.closing)
		if f.file != nil {
			err = f.file.Close()
		}
	})
	return err
}

// next returns the next reading with the requested source, queuing
// records of other sources for their own readers.
func (f *jsonlFeed) next(ctx context.Context, source string) (observation.Observation, error) {
	if obs, ok := f.takePending(source); ok {
		return obs, nil
	}

	for {
		select {
		case <-ctx.Done():
			return observation.Observation{}, ctx.Err()
		case <-f.closing:
			return observation.Observation{}, errFeedExhausted
		case line, ok := <-f.lines:
			if !ok {
				return observation.Observation{}, errFeedExhausted
			}
			if line.err != nil {
				return observation.Observation{}, line.err
			}
			if line.source == source {
				return line.obs, nil
			}
			f.queuePending(line.source, line.obs)
		}
	}
}

func (f *jsonlFeed) takePending(source string) (observation.Observation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.pending[source]
	if len(queue) == 0 {
		return observation.Observation{}, false
	}
	obs := queue[0]
	f.pending[source] = queue[1:]
	return obs, true
}

func (f *jsonlFeed) queuePending(source string, obs observation.Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[source] = append(f.pending[source], obs)
}

// observation converts a feed record into the model type.
func (r *feedRecord) observation() (observation.Observation, error) {
	ts := time.Now()
	if r.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			return observation.Observation{}, fmt.Errorf("feed timestamp %q: %w", r.Timestamp, err)
		}
		ts = parsed
	}

	switch r.Source {
	case sourceCell:
		obs := observation.New(observation.SourceCellRadio, ts)
		obs.Cell = &observation.CellIdentity{
			MCC: r.MCC, MNC: r.MNC, LAC: r.LAC,
			CellID: r.CID, PCI: r.PCI, RSRP: r.RSRP,
		}
		obs.Identifier = r.Identifier
		return obs, nil
	case sourceGPS, sourceNetwork:
		src := observation.SourceGPS
		if r.Source == sourceNetwork {
			src = observation.SourceNetworkLocation
		}
		obs := observation.New(src, ts)
		obs.Position = &observation.Position{Lat: r.Lat, Lon: r.Lon, AccuracyM: r.Accuracy}
		return obs, nil
	default:
		return observation.Observation{}, fmt.Errorf("unknown feed source %q", r.Source)
	}
}

// cellReader adapts the feed to session.CellReader.
func (f *jsonlFeed) cellReader() session.CellReader {
	return &cellFeedReader{feed: f}
}

// positionReader adapts the feed to session.PositionReader for one
// position source.
func (f *jsonlFeed) positionReader(source string) session.PositionReader {
	return &positionFeedReader{feed: f, source: source}
}

type cellFeedReader struct {
	feed *jsonlFeed
}

func (r *cellFeedReader) ReadCell(ctx context.Context) (observation.Observation, error) {
	return r.feed.next(ctx, sourceCell)
}

func (r *cellFeedReader) Close() error {
	return r.feed.Close()
}

type positionFeedReader struct {
	feed   *jsonlFeed
	source string
}

func (r *positionFeedReader) ReadPosition(ctx context.Context) (observation.Observation, error) {
	return r.feed.next(ctx, r.source)
}
