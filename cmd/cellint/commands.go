// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CellintRC/cmd/cellint/config"
)

// --- Global Command Variables ---
var (
	liveDuration  string
	liveInput     string
	scanInput     string
	calcMCC       string
	calcMNC       string
	calcMSIN      string
	listKind      string
	listSince     string
	listLimit     int
	historyFrom   string
	historyTo     string
	importWatch   string
	exportOutPath string

	rootCmd = &cobra.Command{
		Use:   "cellint",
		Short: "Correlate cellular and location observations into device and tower records",
		Long: `Cellint ingests serving-cell readings, position fixes, and imported
scan reports, correlates them into device and tower records, and answers
questions like "where was this device last seen" from a local database.
All data stays on your machine.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			return nil
		},
	}

	// --- Live Collection ---
	liveCmd = &cobra.Command{
		Use:   "live",
		Short: "Run a live correlation session against a reading feed",
		Long: `Runs the collection loop: each cycle pulls a serving-cell reading and
position fixes from the feed, fuses concurrent positions, and ingests the
result. The feed is JSON Lines on a file or stdin (--input -), one reading
per line.`,
		RunE: runLive, // Defined in cmd_live.go
	}

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "One-shot readings",
	}
	scanCellCmd = &cobra.Command{
		Use:   "cell",
		Short: "Take a single serving-cell reading and ingest it",
		RunE:  runScanCell, // Defined in cmd_live.go
	}

	// --- Devices ---
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored records",
	}
	listDevicesCmd = &cobra.Command{
		Use:   "devices",
		Short: "List known devices, most recently seen first",
		RunE:  runListDevices, // Defined in cmd_devices.go
	}
	listTowersCmd = &cobra.Command{
		Use:   "towers",
		Short: "List observed towers, most recently seen first",
		RunE:  runListTowers, // Defined in cmd_devices.go
	}

	trackCmd = &cobra.Command{
		Use:   "track",
		Short: "Locate stored records",
	}
	trackDeviceCmd = &cobra.Command{
		Use:   "device [key]",
		Short: "Show the most recent known position of a device",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrackDevice, // Defined in cmd_devices.go
	}

	showCmd = &cobra.Command{
		Use:   "show [key]",
		Short: "Show a device record in full",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow, // Defined in cmd_devices.go
	}

	historyCmd = &cobra.Command{
		Use:   "history [key]",
		Short: "Show a device's observation history in time order",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory, // Defined in cmd_devices.go
	}

	exportCmd = &cobra.Command{
		Use:   "export [key]",
		Short: "Export a device record and its history as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport, // Defined in cmd_devices.go
	}

	// --- Identifier Calculation ---
	calculateCmd = &cobra.Command{
		Use:   "calculate",
		Short: "Generate identifier candidates from partial fragments",
	}
	calculateIMSICmd = &cobra.Command{
		Use:   "imsi",
		Short: "Enumerate IMSI candidates from MCC, MNC, and a partial MSIN",
		RunE:  runCalculateIMSI, // Defined in cmd_calculate.go
	}
	calculateIMEICmd = &cobra.Command{
		Use:   "imei [base]",
		Short: "Complete a 14-digit IMEI base with its Luhn check digit",
		Args:  cobra.ExactArgs(1),
		RunE:  runCalculateIMEI, // Defined in cmd_calculate.go
	}

	// --- Import ---
	importCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "Import a cellular scan report, or watch a directory for reports",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runImport, // Defined in cmd_import.go
	}
)

func init() {
	liveCmd.Flags().StringVar(&liveDuration, "duration", "", "session length (e.g. 10m); empty runs until interrupted")
	liveCmd.Flags().StringVar(&liveInput, "input", "-", "JSONL reading feed file, or - for stdin")
	scanCellCmd.Flags().StringVar(&scanInput, "input", "-", "JSONL reading feed file, or - for stdin")

	calculateIMSICmd.Flags().StringVar(&calcMCC, "mcc", "", "mobile country code (3 digits)")
	calculateIMSICmd.Flags().StringVar(&calcMNC, "mnc", "", "mobile network code (2-3 digits)")
	calculateIMSICmd.Flags().StringVar(&calcMSIN, "msin", "", "subscriber number fragment, ? for unknown digits")
	_ = calculateIMSICmd.MarkFlagRequired("mcc")
	_ = calculateIMSICmd.MarkFlagRequired("mnc")
	_ = calculateIMSICmd.MarkFlagRequired("msin")

	listDevicesCmd.Flags().StringVar(&listKind, "kind", "", "filter by key kind: confirmed or synthetic")
	listDevicesCmd.Flags().StringVar(&listSince, "since", "", "only devices seen since this RFC 3339 time")
	listDevicesCmd.Flags().IntVar(&listLimit, "limit", 0, "cap the number of results")

	historyCmd.Flags().StringVar(&historyFrom, "from", "", "start of the time range (RFC 3339)")
	historyCmd.Flags().StringVar(&historyTo, "to", "", "end of the time range (RFC 3339)")

	importCmd.Flags().StringVar(&importWatch, "watch", "", "watch a directory and import reports as they appear")
	exportCmd.Flags().StringVarP(&exportOutPath, "output", "o", "", "write to file instead of stdout")

	scanCmd.AddCommand(scanCellCmd)
	listCmd.AddCommand(listDevicesCmd, listTowersCmd)
	trackCmd.AddCommand(trackDeviceCmd)
	calculateCmd.AddCommand(calculateIMSICmd, calculateIMEICmd)

	rootCmd.AddCommand(liveCmd, scanCmd, listCmd, trackCmd, showCmd,
		historyCmd, exportCmd, calculateCmd, importCmd)
}
