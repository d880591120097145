// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"time"
)

// CellintConfig is the on-disk configuration (~/.cellint/cellint.yaml).
type CellintConfig struct {
	// Storage: where the device database and logs live
	Storage StorageConfig `yaml:"storage"`

	// Fusion: position fusion tuning
	Fusion FusionConfig `yaml:"fusion"`

	// Session: live collection loop tuning
	Session SessionConfig `yaml:"session"`

	// Identity: candidate generation limits
	Identity IdentityConfig `yaml:"identity"`
}

type StorageConfig struct {
	DatabaseDir string `yaml:"database_dir"` // e.g. ~/.cellint/db
	LogDir      string `yaml:"log_dir"`      // e.g. ~/.cellint/logs
}

type FusionConfig struct {
	WindowSeconds   int     `yaml:"window_seconds"`   // readings this close count as concurrent
	ComparableRatio float64 `yaml:"comparable_ratio"` // accuracy ratio under which sources blend
}

type SessionConfig struct {
	RefreshSeconds       int `yaml:"refresh_seconds"`        // collection cycle period
	ReaderTimeoutSeconds int `yaml:"reader_timeout_seconds"` // per-reader call budget
}

type IdentityConfig struct {
	// MaxUnknownDigits caps '?' wildcards in calculate fragments. The
	// engine itself enforces its own hard bound; this only lowers it.
	MaxUnknownDigits int `yaml:"max_unknown_digits"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() CellintConfig {
	return CellintConfig{
		Storage: StorageConfig{
			DatabaseDir: "~/.cellint/db",
			LogDir:      "~/.cellint/logs",
		},
		Fusion: FusionConfig{
			WindowSeconds:   5,
			ComparableRatio: 1.5,
		},
		Session: SessionConfig{
			RefreshSeconds:       5,
			ReaderTimeoutSeconds: 2,
		},
		Identity: IdentityConfig{
			MaxUnknownDigits: 4,
		},
	}
}

// FusionWindow returns the fusion window as a duration.
func (c *CellintConfig) FusionWindow() time.Duration {
	return time.Duration(c.Fusion.WindowSeconds) * time.Second
}

// RefreshInterval returns the live session cycle period.
func (c *CellintConfig) RefreshInterval() time.Duration {
	return time.Duration(c.Session.RefreshSeconds) * time.Second
}

// ReaderTimeout returns the per-reader call budget.
func (c *CellintConfig) ReaderTimeout() time.Duration {
	return time.Duration(c.Session.ReaderTimeoutSeconds) * time.Second
}
