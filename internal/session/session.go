// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session runs a live correlation session: a periodic loop
// that pulls readings from cell and position readers, fuses concurrent
// positions, ingests the result into the device store, and emits
// per-cycle summaries.
//
// A session is single-use. Its lifecycle is Idle -> Running -> Stopped
// with Stopped terminal; the state machine guarantees no observation
// is ingested after the session stops.
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/AleutianAI/CellintRC/internal/fusion"
	"github.com/AleutianAI/CellintRC/internal/metrics"
	"github.com/AleutianAI/CellintRC/internal/observation"
	"github.com/AleutianAI/CellintRC/internal/store"
	"github.com/AleutianAI/CellintRC/pkg/logging"
)

// =============================================================================
// Readers
// =============================================================================

// CellReader supplies serving-cell readings. Implementations may block
// until a reading is available; the session applies its own timeout.
//
// A reader that also implements io.Closer is closed when the session
// stops.
type CellReader interface {
	ReadCell(ctx context.Context) (observation.Observation, error)
}

// PositionReader supplies position fixes from one provider.
type PositionReader interface {
	ReadPosition(ctx context.Context) (observation.Observation, error)
}

// Ingestor is the store surface the session writes to.
type Ingestor interface {
	Ingest(ctx context.Context, obs observation.Observation) (store.DeviceKey, error)
}

// =============================================================================
// Session
// =============================================================================

// Config tunes the collection loop.
type Config struct {
	// Interval is the collection cycle period. Default 5s.
	Interval time.Duration

	// ReaderTimeout bounds each individual reader call. A reader that
	// exceeds it produces a warning and the cycle continues. Default 2s.
	ReaderTimeout time.Duration

	// Fusion tunes position fusion across concurrent readings.
	Fusion fusion.Config

	// Logger receives session lifecycle events and warnings. Nil falls
	// back to the default logger.
	Logger *logging.Logger
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.ReaderTimeout <= 0 {
		c.ReaderTimeout = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	return c
}

// Summary reports the session's cumulative progress after a cycle.
type Summary struct {
	// Cycle is the 1-based collection cycle number.
	Cycle int

	// NewDevices is the number of distinct devices first seen during
	// this session.
	NewDevices int

	// Towers is the number of distinct towers observed this session.
	Towers int

	// BestFix is the most accurate position fix obtained so far.
	// BestFix.Ok is false until a position-bearing reading arrives.
	BestFix fusion.Fix

	// Warnings counts reader failures and ingest errors so far. They
	// never abort the session.
	Warnings int
}

// Session is a live correlation session.
//
// Thread Safety: Start and Stop are safe for concurrent use. The
// summary channel has a single producer (the session loop).
type Session struct {
	cfg       Config
	store     Ingestor
	cell      CellReader
	positions []PositionReader

	sm        *stateMachine
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	summaries chan Summary

	// Cumulative counters, owned by the run goroutine.
	cycle    int
	devices  map[string]struct{}
	towers   map[string]struct{}
	bestFix  fusion.Fix
	warnings int
}

// New creates an idle session.
//
// Inputs:
//
//	ingestor - Destination store.
//	cell - Serving-cell reader. May be nil for a position-only session.
//	positions - Position providers. May be empty.
//	cfg - Loop tuning. Zero fields fall back to defaults.
func New(ingestor Ingestor, cell CellReader, positions []PositionReader, cfg Config) *Session {
	return &Session{
		cfg:       cfg.withDefaults(),
		store:     ingestor,
		cell:      cell,
		positions: positions,
		sm:        newStateMachine(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		summaries: make(chan Summary, 16),
		devices:   make(map[string]struct{}),
		towers:    make(map[string]struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.sm.state()
}

// Summaries returns the per-cycle summary channel. It is closed when
// the session stops. A slow consumer never blocks collection; summary
// sends are dropped, not queued unboundedly.
func (s *Session) Summaries() <-chan Summary {
	return s.summaries
}

// Done is closed when the session has fully stopped and released its
// readers.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// Start begins collection.
//
// Description:
//
//	Transitions Idle -> Running and launches the collection loop. The
//	loop runs one cycle per Interval until the duration elapses, ctx
//	is cancelled, or Stop is called. Readers are released on every
//	exit path. Every observation fully ingested before the stop
//	trigger is durable; cancellation never loses committed work.
//
// Inputs:
//
//	ctx - Cancels the session when done.
//	duration - Total session length. Zero means unbounded.
//
// Outputs:
//
//	error - ErrInvalidTransition if the session already ran.
func (s *Session) Start(ctx context.Context, duration time.Duration) error {
	if err := s.sm.transition(StateRunning); err != nil {
		return err
	}

	metrics.SessionActive.Set(1)
	s.cfg.Logger.Info("session started",
		"interval", s.cfg.Interval.String(),
		"duration", duration.String(),
		"position_readers", len(s.positions))

	go s.run(ctx, duration)
	return nil
}

// Stop ends the session and waits for the loop to finish. Idempotent:
// calling Stop on an already-stopped session is a no-op.
func (s *Session) Stop() {
	switch s.sm.state() {
	case StateIdle:
		// Never started; mark terminal so a later Start fails.
		if s.sm.transitionFrom(StateIdle, StateStopped) {
			close(s.doneCh)
			close(s.summaries)
			return
		}
		// Lost the race with Start; fall through and stop the loop.
		fallthrough
	case StateRunning:
		s.stopOnce.Do(func() { close(s.stopCh) })
		<-s.doneCh
	case StateStopped:
	}
}

// run is the collection loop goroutine.
func (s *Session) run(ctx context.Context, duration time.Duration) {
	defer func() {
		s.releaseReaders()
		// Running -> Stopped cannot fail.
		_ = s.sm.transition(StateStopped)
		metrics.SessionActive.Set(0)
		s.cfg.Logger.Info("session stopped",
			"cycles", s.cycle,
			"new_devices", len(s.devices),
			"towers", len(s.towers),
			"warnings", s.warnings)
		close(s.summaries)
		close(s.doneCh)
	}()

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// First cycle immediately rather than one interval in.
	s.cycleOnce(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			s.cycleOnce(ctx)
		}
	}
}

// cycleOnce runs one collection cycle: read, fuse, ingest, summarize.
func (s *Session) cycleOnce(ctx context.Context) {
	s.cycle++

	var readings []observation.Observation
	if s.cell != nil {
		if obs, ok := s.read(ctx, "cell", func(ctx context.Context) (observation.Observation, error) {
			return s.cell.ReadCell(ctx)
		}); ok {
			readings = append(readings, obs)
		}
	}
	for _, reader := range s.positions {
		if obs, ok := s.read(ctx, "position", func(ctx context.Context) (observation.Observation, error) {
			return reader.ReadPosition(ctx)
		}); ok {
			readings = append(readings, obs)
		}
	}
	if len(readings) == 0 {
		s.publish()
		return
	}

	// Fuse concurrent position readings into one fix and fold it into
	// the cycle's cell observation so the tower record learns where
	// the observer stood.
	fix := fusion.Fuse(readings, s.cfg.Fusion)
	if fix.Ok && (!s.bestFix.Ok || fix.Position.AccuracyM < s.bestFix.Position.AccuracyM) {
		s.bestFix = fix
	}

	ingested := false
	for _, obs := range readings {
		if obs.Cell == nil {
			continue
		}
		if fix.Ok && !obs.HasPosition() {
			pos := fix.Position
			obs.Position = &pos
		}
		s.ingest(ctx, obs)
		ingested = true
	}
	if !ingested && fix.Ok {
		if obs, ok := fix.Observation(); ok {
			s.ingest(ctx, obs)
		}
	}

	s.publish()
}

// read invokes one reader under the configured timeout. A failure or
// timeout is a warning, never fatal.
func (s *Session) read(ctx context.Context, kind string, fn func(ctx context.Context) (observation.Observation, error)) (observation.Observation, bool) {
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.ReaderTimeout)
	defer cancel()

	obs, err := fn(readCtx)
	if err != nil {
		s.warnings++
		s.cfg.Logger.Warn("reader failed", "reader", kind, "error", err.Error())
		return observation.Observation{}, false
	}
	if err := obs.Validate(); err != nil {
		s.warnings++
		s.cfg.Logger.Warn("reader produced invalid observation", "reader", kind, "error", err.Error())
		return observation.Observation{}, false
	}
	return obs, true
}

// ingest writes one observation to the store and updates the session
// tallies. A storage error is fatal to this observation only.
func (s *Session) ingest(ctx context.Context, obs observation.Observation) {
	key, err := s.store.Ingest(ctx, obs)
	if err != nil {
		s.warnings++
		s.cfg.Logger.Warn("ingest failed", "source", string(obs.Source), "error", err.Error())
		return
	}
	s.devices[key.String()] = struct{}{}
	if obs.Cell != nil && obs.Cell.Complete() {
		s.towers[obs.Cell.TowerKey()] = struct{}{}
	}
}

// publish emits the cycle summary without blocking the loop.
func (s *Session) publish() {
	summary := Summary{
		Cycle:      s.cycle,
		NewDevices: len(s.devices),
		Towers:     len(s.towers),
		BestFix:    s.bestFix,
		Warnings:   s.warnings,
	}
	select {
	case s.summaries <- summary:
	default:
	}
}

// releaseReaders closes any reader that owns a resource.
func (s *Session) releaseReaders() {
	if c, ok := s.cell.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.cfg.Logger.Warn("close cell reader", "error", err.Error())
		}
	}
	for _, reader := range s.positions {
		if c, ok := reader.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.cfg.Logger.Warn("close position reader", "error", err.Error())
			}
		}
	}
}
