// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceValid(t *testing.T) {
	for _, src := range []Source{SourceCellRadio, SourceGPS, SourceNetworkLocation,
		SourceFusedLocation, SourceImportedReport} {
		assert.True(t, src.Valid(), string(src))
	}
	assert.False(t, Source("bluetooth").Valid())
	assert.False(t, Source("").Valid())
}

func TestNewAssignsIDAndMonotonic(t *testing.T) {
	a := New(SourceCellRadio, time.Now())
	b := New(SourceCellRadio, time.Now())

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.GreaterOrEqual(t, b.Monotonic, a.Monotonic,
		"monotonic stamps must order same-wall-clock observations")
}

func TestValidateRequiresContent(t *testing.T) {
	obs := New(SourceCellRadio, time.Now())
	require.ErrorIs(t, obs.Validate(), ErrNoContent)

	obs.Cell = &CellIdentity{MCC: 310, MNC: 260, LAC: 1001, CellID: 55}
	require.NoError(t, obs.Validate())

	posOnly := New(SourceGPS, time.Now())
	posOnly.Position = &Position{Lat: 37.77, Lon: -122.41, AccuracyM: 5}
	require.NoError(t, posOnly.Validate())

	bad := Observation{Source: "carrier-pigeon", Cell: obs.Cell}
	require.Error(t, bad.Validate())
	assert.NotErrorIs(t, bad.Validate(), ErrNoContent)
}

func TestCellIdentity(t *testing.T) {
	cell := CellIdentity{MCC: 310, MNC: 260, LAC: 1001, CellID: 55}
	assert.Equal(t, "310-260-1001-55", cell.TowerKey())
	assert.True(t, cell.Complete())

	assert.False(t, CellIdentity{MNC: 260, CellID: 55}.Complete(), "missing MCC")
	assert.False(t, CellIdentity{MCC: 310, MNC: 260}.Complete(), "missing cell id")
	assert.True(t, CellIdentity{MCC: 310, MNC: 0, CellID: 55}.Complete(), "MNC zero is a valid test network code")
}

func TestHasPosition(t *testing.T) {
	obs := New(SourceGPS, time.Now())
	assert.False(t, obs.HasPosition())
	obs.Position = &Position{Lat: 1, Lon: 2}
	assert.True(t, obs.HasPosition())
}
