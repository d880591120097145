// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CellintRC/internal/fusion"
	"github.com/AleutianAI/CellintRC/internal/observation"
	"github.com/AleutianAI/CellintRC/internal/store"
)

// fakeCellReader returns a fixed serving-cell reading on every call.
type fakeCellReader struct {
	mu     sync.Mutex
	calls  int
	closed bool
	err    error
}

func (r *fakeCellReader) ReadCell(ctx context.Context) (observation.Observation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return observation.Observation{}, r.err
	}
	obs := observation.New(observation.SourceCellRadio, time.Now())
	obs.Cell = &observation.CellIdentity{MCC: 310, MNC: 260, LAC: 1001, CellID: 55, RSRP: -90}
	return obs, nil
}

func (r *fakeCellReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeCellReader) wasClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// fakePositionReader returns a fixed position fix.
type fakePositionReader struct {
	src observation.Source
	lat float64
	acc float64
}

func (r *fakePositionReader) ReadPosition(ctx context.Context) (observation.Observation, error) {
	obs := observation.New(r.src, time.Now())
	obs.Position = &observation.Position{Lat: r.lat, Lon: -122.41, AccuracyM: r.acc}
	return obs, nil
}

func testConfig() Config {
	return Config{
		Interval:      10 * time.Millisecond,
		ReaderTimeout: 50 * time.Millisecond,
		Fusion:        fusion.DefaultConfig(),
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestStateMachineTransitions(t *testing.T) {
	sm := newStateMachine()
	assert.Equal(t, StateIdle, sm.state())

	require.NoError(t, sm.transition(StateRunning))
	require.ErrorIs(t, sm.transition(StateRunning), ErrInvalidTransition)
	require.NoError(t, sm.transition(StateStopped))

	// Stopped is terminal.
	require.ErrorIs(t, sm.transition(StateRunning), ErrInvalidTransition)
	require.ErrorIs(t, sm.transition(StateIdle), ErrInvalidTransition)
}

func TestSessionCollectsAndStops(t *testing.T) {
	st := openTestStore(t)
	cell := &fakeCellReader{}
	gps := &fakePositionReader{src: observation.SourceGPS, lat: 37.77, acc: 5}

	sess := New(st, cell, []PositionReader{gps}, testConfig())
	require.NoError(t, sess.Start(context.Background(), 0))
	assert.Equal(t, StateRunning, sess.State())

	summary, ok := <-sess.Summaries()
	require.True(t, ok)
	assert.Equal(t, 1, summary.NewDevices)
	assert.Equal(t, 1, summary.Towers)
	require.True(t, summary.BestFix.Ok)
	assert.Equal(t, 5.0, summary.BestFix.Position.AccuracyM)

	sess.Stop()
	assert.Equal(t, StateStopped, sess.State())
	assert.True(t, cell.wasClosed(), "readers released on stop")

	// Cell observation carried the fused position into the tower record.
	tower, err := st.Tower(context.Background(), "310-260-1001-55")
	require.NoError(t, err)
	assert.NotEmpty(t, tower.PositionsSeen)
}

func TestSessionStopIdempotent(t *testing.T) {
	st := openTestStore(t)
	sess := New(st, &fakeCellReader{}, nil, testConfig())
	require.NoError(t, sess.Start(context.Background(), 0))

	sess.Stop()
	sess.Stop()
	assert.Equal(t, StateStopped, sess.State())
}

func TestSessionCannotRestart(t *testing.T) {
	st := openTestStore(t)
	sess := New(st, &fakeCellReader{}, nil, testConfig())
	require.NoError(t, sess.Start(context.Background(), 0))
	sess.Stop()

	require.ErrorIs(t, sess.Start(context.Background(), 0), ErrInvalidTransition)
}

func TestSessionStopBeforeStart(t *testing.T) {
	st := openTestStore(t)
	sess := New(st, &fakeCellReader{}, nil, testConfig())

	sess.Stop()
	assert.Equal(t, StateStopped, sess.State())
	require.ErrorIs(t, sess.Start(context.Background(), 0), ErrInvalidTransition)

	_, ok := <-sess.Summaries()
	assert.False(t, ok, "summary channel closed without output")
}

func TestSessionReaderFailureIsWarning(t *testing.T) {
	st := openTestStore(t)
	cell := &fakeCellReader{err: errors.New("radio unavailable")}
	gps := &fakePositionReader{src: observation.SourceGPS, lat: 37.77, acc: 5}

	sess := New(st, cell, []PositionReader{gps}, testConfig())
	require.NoError(t, sess.Start(context.Background(), 0))

	summary := <-sess.Summaries()
	assert.GreaterOrEqual(t, summary.Warnings, 1, "failed reader recorded as warning")
	require.True(t, summary.BestFix.Ok, "position reader still contributed")

	sess.Stop()

	// The GPS fix alone was still ingested.
	devices, err := st.ListDevices(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.NotEmpty(t, devices)
}

func TestSessionDurationElapses(t *testing.T) {
	st := openTestStore(t)
	sess := New(st, &fakeCellReader{}, nil, testConfig())
	require.NoError(t, sess.Start(context.Background(), 30*time.Millisecond))

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop when its duration elapsed")
	}
	assert.Equal(t, StateStopped, sess.State())
}

func TestSessionContextCancellation(t *testing.T) {
	st := openTestStore(t)
	cell := &fakeCellReader{}
	ctx, cancel := context.WithCancel(context.Background())

	sess := New(st, cell, nil, testConfig())
	require.NoError(t, sess.Start(ctx, 0))

	<-sess.Summaries()
	cancel()

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop on context cancellation")
	}

	// Work committed before cancellation survives.
	devices, err := st.ListDevices(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.NotEmpty(t, devices)
	assert.True(t, cell.wasClosed())
}
