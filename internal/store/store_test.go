// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CellintRC/internal/metrics"
	"github.com/AleutianAI/CellintRC/internal/observation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func cellObs(ts time.Time, mcc, mnc, lac, cid int) observation.Observation {
	obs := observation.New(observation.SourceCellRadio, ts)
	obs.Cell = &observation.CellIdentity{MCC: mcc, MNC: mnc, LAC: lac, CellID: cid}
	return obs
}

func TestIngestCreatesDeviceAndTower(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	obs := cellObs(ts, 310, 260, 1001, 55)
	obs.Cell.RSRP = -95

	key, err := s.Ingest(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, KeySynthetic, key.Kind)

	dev, err := s.Device(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, dev.ObservationCount)
	assert.True(t, ts.Equal(dev.FirstSeen))
	assert.True(t, ts.Equal(dev.LastSeen))

	tower, err := s.Tower(ctx, "310-260-1001-55")
	require.NoError(t, err)
	assert.Equal(t, 1, tower.ObservationCount)
	assert.Equal(t, -95, tower.LastRSRP)
}

func TestIngestRejectsEmptyObservation(t *testing.T) {
	s := openTestStore(t)

	obs := observation.New(observation.SourceCellRadio, time.Now())
	_, err := s.Ingest(context.Background(), obs)
	require.ErrorIs(t, err, observation.ErrNoContent)
}

func TestIngestIdempotentReplay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	obs := cellObs(time.Now(), 310, 260, 1001, 55)
	first, err := s.Ingest(ctx, obs)
	require.NoError(t, err)

	// Same observation ID again: same device, no second record.
	second, err := s.Ingest(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	devices, err := s.ListDevices(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, 1, devices[0].ObservationCount)
}

func TestIngestConfirmedIdentifierKeysDevice(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Now()

	obs := cellObs(ts, 310, 260, 1001, 55)
	obs.Identifier = "310260123456789"

	key, err := s.Ingest(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, ConfirmedKey("310260123456789"), key)

	// A later reading with the same identifier lands on the same device
	// even from a different tower.
	later := cellObs(ts.Add(time.Hour), 310, 260, 2002, 99)
	later.Identifier = "310260123456789"
	key2, err := s.Ingest(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, key, key2)

	dev, err := s.Device(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, dev.ObservationCount)
	require.Len(t, dev.Identifiers, 1)
	assert.Equal(t, ConfidenceConfirmed, dev.Identifiers[0].Confidence)
}

func TestIngestCorrelatesSameTowerActivity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Now()

	first, err := s.Ingest(ctx, cellObs(ts, 310, 260, 1001, 55))
	require.NoError(t, err)

	// Two minutes later on the same tower: same synthetic device.
	second, err := s.Ingest(ctx, cellObs(ts.Add(2*time.Minute), 310, 260, 1001, 55))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// An hour later the activity window has lapsed: new device.
	third, err := s.Ingest(ctx, cellObs(ts.Add(time.Hour), 310, 260, 1001, 55))
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestTowerAggregatesPositions(t *testing.T) {
	// Two records for the same MCC/MNC/LAC/CID from different spots
	// must produce one tower with two recorded positions.
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Now()

	a := cellObs(ts, 310, 260, 1001, 55)
	a.Position = &observation.Position{Lat: 37.7700, Lon: -122.4100, AccuracyM: 10}
	_, err := s.Ingest(ctx, a)
	require.NoError(t, err)

	b := cellObs(ts.Add(time.Minute), 310, 260, 1001, 55)
	b.Position = &observation.Position{Lat: 37.7800, Lon: -122.4200, AccuracyM: 10}
	_, err = s.Ingest(ctx, b)
	require.NoError(t, err)

	towers, err := s.ListTowers(ctx)
	require.NoError(t, err)
	require.Len(t, towers, 1)
	assert.Equal(t, "310-260-1001-55", towers[0].Key)
	assert.Len(t, towers[0].PositionsSeen, 2)
	assert.Equal(t, 2, towers[0].ObservationCount)
}

func TestTowerDeduplicatesIdenticalPositions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Now()

	for i := 0; i < 3; i++ {
		obs := cellObs(ts.Add(time.Duration(i)*time.Minute), 310, 260, 1001, 55)
		obs.Position = &observation.Position{Lat: 37.77, Lon: -122.41, AccuracyM: 10}
		_, err := s.Ingest(ctx, obs)
		require.NoError(t, err)
	}

	tower, err := s.Tower(ctx, "310-260-1001-55")
	require.NoError(t, err)
	assert.Len(t, tower.PositionsSeen, 1)
	assert.Equal(t, 3, tower.ObservationCount)
}

func TestListDevicesOrderAndFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	old := cellObs(base, 310, 260, 1001, 55)
	old.Identifier = "310260000000001"
	_, err := s.Ingest(ctx, old)
	require.NoError(t, err)

	recent := cellObs(base.Add(2*time.Hour), 310, 260, 2002, 99)
	recent.Identifier = "310260000000002"
	_, err = s.Ingest(ctx, recent)
	require.NoError(t, err)

	devices, err := s.ListDevices(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, ConfirmedKey("310260000000002"), devices[0].Key, "most recent first")

	filtered, err := s.ListDevices(ctx, Filter{Since: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, ConfirmedKey("310260000000002"), filtered[0].Key)

	limited, err := s.ListDevices(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTrackReturnsLatestPosition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Now()

	first := cellObs(ts, 310, 260, 1001, 55)
	first.Identifier = "310260123456789"
	first.Position = &observation.Position{Lat: 37.77, Lon: -122.41, AccuracyM: 10}
	key, err := s.Ingest(ctx, first)
	require.NoError(t, err)

	// A later cell-only reading must not shadow the position.
	cellOnly := cellObs(ts.Add(time.Minute), 310, 260, 1001, 55)
	cellOnly.Identifier = "310260123456789"
	_, err = s.Ingest(ctx, cellOnly)
	require.NoError(t, err)

	got, err := s.Track(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got.Position)
	assert.Equal(t, 37.77, got.Position.Lat)

	newer := cellObs(ts.Add(2*time.Minute), 310, 260, 1001, 55)
	newer.Identifier = "310260123456789"
	newer.Position = &observation.Position{Lat: 37.78, Lon: -122.42, AccuracyM: 8}
	_, err = s.Ingest(ctx, newer)
	require.NoError(t, err)

	got, err = s.Track(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 37.78, got.Position.Lat)
}

func TestTrackErrNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Track(ctx, ConfirmedKey("999999999999999"))
	require.ErrorIs(t, err, ErrNotFound)

	// Known device, but no position-bearing observation.
	obs := cellObs(time.Now(), 310, 260, 1001, 55)
	obs.Identifier = "310260123456789"
	key, err := s.Ingest(ctx, obs)
	require.NoError(t, err)

	_, err = s.Track(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryOrderedAndBounded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	// Ingested out of timestamp order on purpose.
	offsets := []time.Duration{2 * time.Minute, 0, time.Minute}
	for _, off := range offsets {
		obs := cellObs(base.Add(off), 310, 260, 1001, 55)
		obs.Identifier = "310260123456789"
		_, err := s.Ingest(ctx, obs)
		require.NoError(t, err)
	}

	key := ConfirmedKey("310260123456789")
	history, err := s.History(ctx, key, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp),
			"history timestamps must be non-decreasing")
	}

	bounded, err := s.History(ctx, key, base.Add(30*time.Second), base.Add(90*time.Second))
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	assert.True(t, base.Add(time.Minute).Equal(bounded[0].Timestamp))
}

func TestHistoryInsertionOrderBreaksTies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	first := cellObs(ts, 310, 260, 1001, 55)
	first.Identifier = "310260123456789"
	second := cellObs(ts, 310, 260, 2002, 99)
	second.Identifier = "310260123456789"

	_, err := s.Ingest(ctx, first)
	require.NoError(t, err)
	_, err = s.Ingest(ctx, second)
	require.NoError(t, err)

	history, err := s.History(ctx, ConfirmedKey("310260123456789"), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, second.ID, history[1].ID)
}

func TestExportDevice(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	obs := cellObs(time.Now(), 310, 260, 1001, 55)
	obs.Identifier = "310260123456789"
	key, err := s.Ingest(ctx, obs)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.ExportDevice(ctx, key, &buf))

	var doc struct {
		Device       Device                    `json:"device"`
		Observations []observation.Observation `json:"observations"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, key, doc.Device.Key)
	require.Len(t, doc.Observations, 1)
	assert.Equal(t, obs.ID, doc.Observations[0].ID)

	err = s.ExportDevice(ctx, ConfirmedKey("999999999999999"), &buf)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHeatmap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Now()

	positions := []observation.Position{
		{Lat: 37.7700, Lon: -122.4100, AccuracyM: 10},
		{Lat: 37.7800, Lon: -122.4200, AccuracyM: 10},
		{Lat: 37.7800, Lon: -122.4200, AccuracyM: 10}, // duplicate, deduped
	}
	for i, pos := range positions {
		obs := cellObs(ts.Add(time.Duration(i)*time.Minute), 310, 260, 1001, 55)
		p := pos
		obs.Position = &p
		_, err := s.Ingest(ctx, obs)
		require.NoError(t, err)
	}

	grid, err := s.Heatmap(ctx, "310-260-1001-55")
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Total)
	assert.Equal(t, 37.77, grid.MinLat)
	assert.Equal(t, 37.78, grid.MaxLat)
	assert.Equal(t, 1, grid.Counts[0][gridSize-1], "southwest-most latitude, eastern longitude")
	assert.Equal(t, 1, grid.Counts[gridSize-1][0])

	_, err = s.Heatmap(ctx, "0-0-0-0")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHeatmapArea(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Now()

	seed := []struct {
		cid int
		pos observation.Position
	}{
		{55, observation.Position{Lat: 37.7700, Lon: -122.4100, AccuracyM: 10}},
		{55, observation.Position{Lat: 40.0000, Lon: -100.0000, AccuracyM: 10}}, // outside the box
		{56, observation.Position{Lat: 37.7800, Lon: -122.4200, AccuracyM: 10}},
	}
	for i, sd := range seed {
		obs := cellObs(ts.Add(time.Duration(i)*time.Minute), 310, 260, 1001, sd.cid)
		p := sd.pos
		obs.Position = &p
		_, err := s.Ingest(ctx, obs)
		require.NoError(t, err)
	}

	// The box spans both towers but excludes the far-away position.
	grid, err := s.HeatmapArea(ctx, 37.70, -122.50, 37.80, -122.40)
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Total)
	assert.Empty(t, grid.TowerKey)
	assert.Equal(t, 37.70, grid.MinLat)
	assert.Equal(t, -122.40, grid.MaxLon)

	_, err = s.HeatmapArea(ctx, 38, -122.50, 37, -122.40)
	require.Error(t, err, "inverted box must be rejected")
}

func TestTowerUpsertMetricCountsCommittedWork(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	before := testutil.ToFloat64(metrics.TowersUpserted)

	obs := cellObs(time.Now(), 310, 260, 1001, 55)
	_, err := s.Ingest(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.TowersUpserted))

	// Replaying the same observation touches no tower record.
	_, err = s.Ingest(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.TowersUpserted))

	// An ingest whose transaction never commits counts nothing.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Ingest(cancelled, cellObs(time.Now(), 310, 260, 1001, 56))
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.TowersUpserted))
}

func TestDeviceKeyRoundTrip(t *testing.T) {
	key := SyntheticKey("abc123")
	assert.Equal(t, "synthetic:abc123", key.String())
	assert.Equal(t, key, ParseDeviceKey("synthetic:abc123"))

	// Bare values parse as confirmed identifiers.
	assert.Equal(t, ConfirmedKey("310260123456789"), ParseDeviceKey("310260123456789"))
}
