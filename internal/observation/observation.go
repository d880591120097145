// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observation defines the observation data model shared by the
// report parser, location fusion, and the device store.
//
// An Observation is a single timestamped reading from one source: the
// cell radio, a location provider, or an imported third-party report.
// Observations are immutable once ingested; corrections are expressed
// as new Observations, never as in-place edits.
package observation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Source
// =============================================================================

// Source identifies where an Observation came from.
type Source string

const (
	// SourceCellRadio is a direct serving-cell reading.
	SourceCellRadio Source = "cell_radio"

	// SourceGPS is a GPS provider position fix.
	SourceGPS Source = "gps"

	// SourceNetworkLocation is a network-derived position fix.
	SourceNetworkLocation Source = "network"

	// SourceFusedLocation is a position produced by the fusion engine.
	SourceFusedLocation Source = "fused"

	// SourceImportedReport is a record parsed from a third-party
	// cellular-scan report export.
	SourceImportedReport Source = "imported_report"
)

// Valid reports whether s is a known Source.
func (s Source) Valid() bool {
	switch s {
	case SourceCellRadio, SourceGPS, SourceNetworkLocation,
		SourceFusedLocation, SourceImportedReport:
		return true
	}
	return false
}

// =============================================================================
// Model
// =============================================================================

// ErrNoContent is returned when an Observation carries neither a cell
// identity nor a position.
var ErrNoContent = errors.New("observation must carry a cell identity or a position")

// CellIdentity identifies the serving cell for an observation.
//
// LAC holds the LAC or TAC depending on radio generation; the store
// does not distinguish them when keying towers.
type CellIdentity struct {
	MCC    int `json:"mcc"`
	MNC    int `json:"mnc"`
	LAC    int `json:"lac"`
	CellID int `json:"cid"`

	// PCI is the physical cell id, when reported. Zero means absent.
	PCI int `json:"pci,omitempty"`

	// RSRP is the reference signal received power in dBm. Zero means
	// absent (real readings are negative).
	RSRP int `json:"rsrp,omitempty"`
}

// TowerKey returns the canonical MCC-MNC-LAC-CID tower key string.
func (c CellIdentity) TowerKey() string {
	return fmt.Sprintf("%d-%d-%d-%d", c.MCC, c.MNC, c.LAC, c.CellID)
}

// Complete reports whether the identity is sufficient to key a tower.
func (c CellIdentity) Complete() bool {
	return c.MCC > 0 && c.MNC >= 0 && c.CellID > 0
}

// Position is a latitude/longitude fix with an accuracy radius.
type Position struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	AccuracyM float64 `json:"accuracy_m"`
}

// Observation is a single timestamped reading.
//
// Invariant: at least one of Cell or Position is non-nil. Use
// Validate before handing an externally built Observation to the store.
type Observation struct {
	// ID is a stable unique identifier assigned at creation. Replaying
	// an observation with an ID the store has already ingested is a
	// no-op for device creation.
	ID string `json:"id"`

	// Timestamp is the wall-clock reading time.
	Timestamp time.Time `json:"timestamp"`

	// Monotonic is nanoseconds since process start, used to order
	// observations that share a wall-clock timestamp.
	Monotonic int64 `json:"monotonic"`

	Source Source `json:"source"`

	Cell     *CellIdentity `json:"cell,omitempty"`
	Position *Position     `json:"position,omitempty"`

	// RawFields preserves unrecognized report fields for forward
	// compatibility.
	RawFields map[string]string `json:"raw_fields,omitempty"`

	// Identifier is a confirmed subscriber/equipment identifier (IMSI
	// or IMEI) attached to the reading, when the source supplies one.
	Identifier string `json:"identifier,omitempty"`
}

var processStart = time.Now()

// New creates an Observation with a fresh ID and monotonic stamp.
//
// Inputs:
//
//	source - Reading source. Must be a valid Source.
//	ts - Wall-clock reading time.
//
// Outputs:
//
//	Observation - The new observation. Cell/Position are nil; callers
//	must attach at least one before ingesting.
func New(source Source, ts time.Time) Observation {
	return Observation{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Monotonic: int64(time.Since(processStart)),
		Source:    source,
	}
}

// Validate checks the observation invariant.
//
// Outputs:
//
//	error - ErrNoContent if neither Cell nor Position is present, or a
//	descriptive error for an invalid source.
func (o *Observation) Validate() error {
	if !o.Source.Valid() {
		return fmt.Errorf("invalid observation source %q", o.Source)
	}
	if o.Cell == nil && o.Position == nil {
		return ErrNoContent
	}
	return nil
}

// HasPosition reports whether the observation carries a position fix.
func (o *Observation) HasPosition() bool {
	return o.Position != nil
}
