// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CellintRC/internal/observation"
)

func positioned(src observation.Source, ts time.Time, lat, lon, acc float64) observation.Observation {
	obs := observation.New(src, ts)
	obs.Position = &observation.Position{Lat: lat, Lon: lon, AccuracyM: acc}
	return obs
}

func TestFuseNoInputReturnsNoFix(t *testing.T) {
	fix := Fuse(nil, DefaultConfig())
	assert.False(t, fix.Ok)
	assert.Equal(t, NoFix, fix)
}

func TestFuseIgnoresPositionlessObservations(t *testing.T) {
	ts := time.Now()
	cellOnly := observation.New(observation.SourceCellRadio, ts)
	cellOnly.Cell = &observation.CellIdentity{MCC: 310, MNC: 260, LAC: 1001, CellID: 55}

	fix := Fuse([]observation.Observation{cellOnly}, DefaultConfig())
	assert.False(t, fix.Ok)
}

func TestFuseSingleSourcePassesThrough(t *testing.T) {
	ts := time.Now()
	gps := positioned(observation.SourceGPS, ts, 37.77, -122.41, 8)

	fix := Fuse([]observation.Observation{gps}, DefaultConfig())
	require.True(t, fix.Ok)
	assert.Equal(t, observation.SourceGPS, fix.Source, "source preserved for pass-through")
	assert.False(t, fix.Blended)
	assert.Equal(t, 37.77, fix.Position.Lat)
	assert.Equal(t, 8.0, fix.Position.AccuracyM)
}

func TestFuseAccurateSourceDominates(t *testing.T) {
	// 5m GPS against 50m network at the same timestamp.
	ts := time.Now()
	gps := positioned(observation.SourceGPS, ts, 37.7700, -122.4100, 5)
	network := positioned(observation.SourceNetworkLocation, ts, 37.7800, -122.4200, 50)

	fix := Fuse([]observation.Observation{network, gps}, DefaultConfig())
	require.True(t, fix.Ok)
	assert.LessOrEqual(t, fix.Position.AccuracyM, 5.0)

	// Result must sit closer to the 5m source than to the 50m source.
	dGPS := abs(fix.Position.Lat-37.7700) + abs(fix.Position.Lon-(-122.4100))
	dNet := abs(fix.Position.Lat-37.7800) + abs(fix.Position.Lon-(-122.4200))
	assert.Less(t, dGPS, dNet)
}

func TestFuseComparableSourcesBlend(t *testing.T) {
	ts := time.Now()
	gps := positioned(observation.SourceGPS, ts, 37.0000, -122.0000, 10)
	network := positioned(observation.SourceNetworkLocation, ts, 38.0000, -121.0000, 12)

	fix := Fuse([]observation.Observation{gps, network}, DefaultConfig())
	require.True(t, fix.Ok)
	assert.True(t, fix.Blended)
	assert.Equal(t, observation.SourceFusedLocation, fix.Source)
	assert.Equal(t, 10.0, fix.Position.AccuracyM, "result accuracy is the smaller of the two")

	// Centroid weighted toward the 10m source.
	assert.Greater(t, fix.Position.Lat, 37.0)
	assert.Less(t, fix.Position.Lat, 37.5)
}

func TestFuseDisjointTimestampsNotConcurrent(t *testing.T) {
	ts := time.Now()
	gps := positioned(observation.SourceGPS, ts, 37.77, -122.41, 10)
	late := positioned(observation.SourceNetworkLocation, ts.Add(30*time.Second), 37.78, -122.42, 11)

	fix := Fuse([]observation.Observation{gps, late}, DefaultConfig())
	require.True(t, fix.Ok)
	assert.False(t, fix.Blended, "readings 30s apart must not blend under a 5s window")
	assert.Equal(t, observation.SourceGPS, fix.Source)
}

func TestFuseUnknownAccuracySortsLast(t *testing.T) {
	ts := time.Now()
	unknown := positioned(observation.SourceNetworkLocation, ts, 38.0, -121.0, 0)
	gps := positioned(observation.SourceGPS, ts, 37.77, -122.41, 25)

	fix := Fuse([]observation.Observation{unknown, gps}, DefaultConfig())
	require.True(t, fix.Ok)
	assert.Equal(t, observation.SourceGPS, fix.Source)
	assert.Equal(t, 37.77, fix.Position.Lat)
}

func TestFixObservation(t *testing.T) {
	_, ok := NoFix.Observation()
	assert.False(t, ok)

	ts := time.Now()
	fix := Fuse([]observation.Observation{
		positioned(observation.SourceGPS, ts, 37.77, -122.41, 5),
	}, DefaultConfig())
	obs, ok := fix.Observation()
	require.True(t, ok)
	require.NoError(t, obs.Validate())
	assert.Equal(t, observation.SourceGPS, obs.Source)
	assert.Equal(t, 37.77, obs.Position.Lat)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
