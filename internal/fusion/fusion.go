// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fusion combines concurrent position readings from multiple
// providers (GPS, network, fused OS provider) into a single
// best-estimate fix.
//
// Fusion never fails: with no position-bearing input it returns the
// NoFix sentinel rather than an error, so callers can treat "no fix
// yet" as a normal state during a live session.
package fusion

import (
	"time"

	"github.com/AleutianAI/CellintRC/internal/observation"
)

// Config tunes the fusion window and source comparison.
type Config struct {
	// Window is the maximum timestamp spread for readings to count as
	// concurrent. Default 5s.
	Window time.Duration

	// ComparableRatio is the accuracy ratio under which two sources are
	// considered comparable and blended instead of picking one outright.
	// Default 1.5.
	ComparableRatio float64
}

// DefaultConfig returns the production fusion tuning.
func DefaultConfig() Config {
	return Config{
		Window:          5 * time.Second,
		ComparableRatio: 1.5,
	}
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 5 * time.Second
	}
	if c.ComparableRatio <= 1 {
		c.ComparableRatio = 1.5
	}
	return c
}

// Fix is the fusion result.
//
// Ok=false is the NoFix sentinel: no position-bearing observation was
// available. It is a defined result, not an error.
type Fix struct {
	Ok        bool
	Position  observation.Position
	Source    observation.Source
	Timestamp time.Time

	// Blended is true when the fix is an accuracy-weighted centroid of
	// two comparable sources rather than a single reading passed through.
	Blended bool
}

// NoFix is the sentinel returned when no position is available.
var NoFix = Fix{}

// Fuse combines concurrent position-bearing observations into one fix.
//
// Description:
//
//	Selects the reading with the smallest accuracy radius among those
//	concurrent with it (within cfg.Window). When the runner-up's
//	accuracy is within cfg.ComparableRatio of the best, the two are
//	blended into an accuracy-weighted centroid and the result accuracy
//	is the smaller of the two. A single position source passes through
//	unchanged with its Source preserved.
//
//	Readings with unknown (zero) accuracy are treated as the least
//	accurate input present.
//
// Inputs:
//
//	obs - Candidate observations; entries without a position are ignored.
//	cfg - Fusion tuning. Zero fields fall back to defaults.
//
// Outputs:
//
//	Fix - The fused fix, or NoFix when no input carries a position.
func Fuse(obs []observation.Observation, cfg Config) Fix {
	cfg = cfg.withDefaults()

	positioned := make([]observation.Observation, 0, len(obs))
	worst := 0.0
	for _, o := range obs {
		if o.HasPosition() {
			positioned = append(positioned, o)
			if o.Position.AccuracyM > worst {
				worst = o.Position.AccuracyM
			}
		}
	}
	if len(positioned) == 0 {
		return NoFix
	}

	// Unknown accuracy sorts behind every known reading.
	accuracyOf := func(o observation.Observation) float64 {
		if o.Position.AccuracyM <= 0 {
			return worst + 1
		}
		return o.Position.AccuracyM
	}

	best := positioned[0]
	for _, o := range positioned[1:] {
		if accuracyOf(o) < accuracyOf(best) {
			best = o
		}
	}

	// Restrict to readings concurrent with the best one.
	var runnerUp *observation.Observation
	for i := range positioned {
		o := &positioned[i]
		if o.ID == best.ID {
			continue
		}
		if !concurrent(best.Timestamp, o.Timestamp, cfg.Window) {
			continue
		}
		if runnerUp == nil || accuracyOf(*o) < accuracyOf(*runnerUp) {
			runnerUp = o
		}
	}

	if runnerUp == nil {
		return Fix{
			Ok:        true,
			Position:  *best.Position,
			Source:    best.Source,
			Timestamp: best.Timestamp,
		}
	}

	bestAcc := accuracyOf(best)
	otherAcc := accuracyOf(*runnerUp)
	if best.Position.AccuracyM <= 0 || runnerUp.Position.AccuracyM <= 0 ||
		otherAcc > bestAcc*cfg.ComparableRatio {
		// Runner-up is not comparable (or has unknown accuracy); the
		// best source wins outright.
		return Fix{
			Ok:        true,
			Position:  *best.Position,
			Source:    best.Source,
			Timestamp: best.Timestamp,
		}
	}

	// Accuracy-weighted centroid: weight by inverse accuracy so the
	// tighter reading dominates.
	wBest := 1 / bestAcc
	wOther := 1 / otherAcc
	total := wBest + wOther
	fusedPos := observation.Position{
		Lat:       (best.Position.Lat*wBest + runnerUp.Position.Lat*wOther) / total,
		Lon:       (best.Position.Lon*wBest + runnerUp.Position.Lon*wOther) / total,
		AccuracyM: min(bestAcc, otherAcc),
	}
	return Fix{
		Ok:        true,
		Position:  fusedPos,
		Source:    observation.SourceFusedLocation,
		Timestamp: best.Timestamp,
		Blended:   true,
	}
}

// Observation wraps the fix back into an observation for ingestion.
//
// Outputs:
//
//	observation.Observation - Source=FusedLocation for blended fixes,
//	the original source otherwise; ok=false for NoFix.
func (f Fix) Observation() (observation.Observation, bool) {
	if !f.Ok {
		return observation.Observation{}, false
	}
	obs := observation.New(f.Source, f.Timestamp)
	pos := f.Position
	obs.Position = &pos
	return obs, true
}

func concurrent(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}
