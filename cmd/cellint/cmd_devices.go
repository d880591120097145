// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CellintRC/internal/store"
)

// runListDevices prints known devices, most recently seen first.
func runListDevices(cmd *cobra.Command, args []string) error {
	since, err := parseTimeFlag("since", listSince)
	if err != nil {
		return err
	}
	filter := store.Filter{Since: since, Limit: listLimit}
	switch listKind {
	case "":
	case "confirmed":
		filter.Kind = store.KeyConfirmed
	case "synthetic":
		filter.Kind = store.KeySynthetic
	default:
		return fmt.Errorf("--kind must be confirmed or synthetic, got %q", listKind)
	}

	st, err := openStore(nil)
	if err != nil {
		return err
	}
	defer st.Close()

	devices, err := st.ListDevices(context.Background(), filter)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No devices recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tLAST SEEN\tOBSERVATIONS\tIDENTIFIERS\tLAST TOWER")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			d.Key, formatAge(d.LastSeen), d.ObservationCount, d.Identifiers, d.LastTower)
	}
	return w.Flush()
}

// runListTowers prints observed towers, most recently seen first.
func runListTowers(cmd *cobra.Command, args []string) error {
	st, err := openStore(nil)
	if err != nil {
		return err
	}
	defer st.Close()

	towers, err := st.ListTowers(context.Background())
	if err != nil {
		return err
	}
	if len(towers) == 0 {
		fmt.Println("No towers recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOWER\tLAST SEEN\tOBSERVATIONS\tPOSITIONS\tLAST RSRP")
	for _, t := range towers {
		rsrp := "-"
		if t.LastRSRP != 0 {
			rsrp = fmt.Sprintf("%d dBm", t.LastRSRP)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			t.Key, formatAge(t.LastSeen), t.ObservationCount, len(t.PositionsSeen), rsrp)
	}
	return w.Flush()
}

// runShow prints one device record in full.
func runShow(cmd *cobra.Command, args []string) error {
	key := store.ParseDeviceKey(args[0])

	st, err := openStore(nil)
	if err != nil {
		return err
	}
	defer st.Close()

	dev, err := st.Device(context.Background(), key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no device with key %s", key)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Device %s\n", dev.Key)
	fmt.Printf("  First seen:   %s\n", dev.FirstSeen.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("  Last seen:    %s\n", dev.LastSeen.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("  Observations: %d\n", dev.ObservationCount)
	if dev.LastCell != nil {
		fmt.Printf("  Last tower:   %s\n", dev.LastCell.TowerKey())
	}
	if len(dev.Identifiers) > 0 {
		fmt.Println("  Identifiers:")
		for _, id := range dev.Identifiers {
			fmt.Printf("    %s (%s, %s)\n", id.Value, id.Kind, id.Confidence)
		}
	}
	return nil
}

// runTrackDevice prints the latest known position of a device.
func runTrackDevice(cmd *cobra.Command, args []string) error {
	key := store.ParseDeviceKey(args[0])

	st, err := openStore(nil)
	if err != nil {
		return err
	}
	defer st.Close()

	obs, err := st.Track(context.Background(), key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no position recorded for device %s", key)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Device %s last position:\n", key)
	fmt.Printf("  Lat/Lon:  %.6f, %.6f\n", obs.Position.Lat, obs.Position.Lon)
	if obs.Position.AccuracyM > 0 {
		fmt.Printf("  Accuracy: %.0f m\n", obs.Position.AccuracyM)
	}
	fmt.Printf("  Source:   %s\n", obs.Source)
	fmt.Printf("  Seen:     %s (%s)\n", obs.Timestamp.Format("2006-01-02 15:04:05 MST"), formatAge(obs.Timestamp))
	return nil
}

// runHistory prints a device's observations in time order.
func runHistory(cmd *cobra.Command, args []string) error {
	key := store.ParseDeviceKey(args[0])
	from, err := parseTimeFlag("from", historyFrom)
	if err != nil {
		return err
	}
	to, err := parseTimeFlag("to", historyTo)
	if err != nil {
		return err
	}

	st, err := openStore(nil)
	if err != nil {
		return err
	}
	defer st.Close()

	history, err := st.History(context.Background(), key, from, to)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no device with key %s", key)
	}
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("No observations in the requested range.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSOURCE\tTOWER\tPOSITION")
	for _, obs := range history {
		tower, position := "-", "-"
		if obs.Cell != nil {
			tower = obs.Cell.TowerKey()
		}
		if obs.Position != nil {
			position = fmt.Sprintf("%.5f,%.5f", obs.Position.Lat, obs.Position.Lon)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			obs.Timestamp.Format("2006-01-02 15:04:05"), obs.Source, tower, position)
	}
	return w.Flush()
}

// runExport writes a device record and its history as JSON.
func runExport(cmd *cobra.Command, args []string) error {
	key := store.ParseDeviceKey(args[0])

	st, err := openStore(nil)
	if err != nil {
		return err
	}
	defer st.Close()

	out := os.Stdout
	if exportOutPath != "" {
		f, err := os.Create(exportOutPath)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := st.ExportDevice(context.Background(), key, out); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no device with key %s", key)
		}
		return err
	}
	if exportOutPath != "" {
		fmt.Fprintf(os.Stderr, "Exported %s to %s\n", key, exportOutPath)
	}
	return nil
}
