// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics exposes Prometheus instrumentation for the
// correlation engine. Collectors are registered on a package-level
// Registry rather than the global default so tests can scrape them
// in isolation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all cellint collectors.
var Registry = prometheus.NewRegistry()

var (
	// ObservationsIngested counts observations accepted by the store,
	// labeled by source.
	ObservationsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellint_observations_ingested_total",
			Help: "Observations ingested into the device store.",
		},
		[]string{"source"},
	)

	// ParseWarnings counts per-record report import problems.
	ParseWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellint_parse_warnings_total",
			Help: "Recoverable per-record warnings during report import.",
		},
	)

	// DevicesCreated counts new device records (confirmed or synthetic).
	DevicesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellint_devices_created_total",
			Help: "Device records created by identity resolution.",
		},
	)

	// TowersUpserted counts tower record creations and updates.
	TowersUpserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellint_towers_upserted_total",
			Help: "Tower record upserts triggered by cell observations.",
		},
	)

	// SessionActive is 1 while a live correlation session is Running.
	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cellint_session_active",
			Help: "Whether a live correlation session is currently running.",
		},
	)
)

func init() {
	Registry.MustRegister(
		ObservationsIngested,
		ParseWarnings,
		DevicesCreated,
		TowersUpserted,
		SessionActive,
	)
}
