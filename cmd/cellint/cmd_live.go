// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CellintRC/cmd/cellint/config"
	"github.com/AleutianAI/CellintRC/internal/session"
	"github.com/AleutianAI/CellintRC/internal/store"
)

// runLive runs a live correlation session against the JSONL feed.
func runLive(cmd *cobra.Command, args []string) error {
	var duration time.Duration
	if liveDuration != "" {
		d, err := time.ParseDuration(liveDuration)
		if err != nil {
			return fmt.Errorf("--duration: %w", err)
		}
		duration = d
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	feed, err := openFeed(liveInput)
	if err != nil {
		return err
	}

	sess := session.New(st,
		feed.cellReader(),
		[]session.PositionReader{
			feed.positionReader(sourceGPS),
			feed.positionReader(sourceNetwork),
		},
		session.Config{
			Interval:      config.Global.RefreshInterval(),
			ReaderTimeout: config.Global.ReaderTimeout(),
			Fusion:        fusionConfig(),
			Logger:        logger,
		})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx, duration); err != nil {
		return err
	}
	fmt.Println("Live session started (Ctrl-C to stop).")

	// Stop the session once the feed runs dry rather than warning
	// forever on an exhausted reader.
	go func() {
		select {
		case <-feed.Exhausted():
			sess.Stop()
		case <-sess.Done():
		}
	}()

	var last session.Summary
	for summary := range sess.Summaries() {
		last = summary
		fix := "no fix"
		if summary.BestFix.Ok {
			fix = fmt.Sprintf("%.5f,%.5f (±%.0fm)",
				summary.BestFix.Position.Lat,
				summary.BestFix.Position.Lon,
				summary.BestFix.Position.AccuracyM)
		}
		fmt.Printf("cycle %d: devices=%d towers=%d fix=%s warnings=%d\n",
			summary.Cycle, summary.NewDevices, summary.Towers, fix, summary.Warnings)
	}
	<-sess.Done()

	fmt.Printf("Session finished: %d device(s), %d tower(s), %d warning(s).\n",
		last.NewDevices, last.Towers, last.Warnings)
	return nil
}

// runScanCell ingests a single serving-cell reading from the feed.
func runScanCell(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	feed, err := openFeed(scanInput)
	if err != nil {
		return err
	}
	defer feed.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.Global.ReaderTimeout())
	defer cancel()

	obs, err := feed.cellReader().ReadCell(ctx)
	if err != nil {
		return fmt.Errorf("read serving cell: %w", err)
	}

	key, err := st.Ingest(context.Background(), obs)
	if err != nil {
		return err
	}
	logger.Info("cell scan ingested", "tower", obs.Cell.TowerKey(), "device", key.String())

	fmt.Printf("Serving cell %s", obs.Cell.TowerKey())
	if obs.Cell.RSRP != 0 {
		fmt.Printf(" (RSRP %d dBm)", obs.Cell.RSRP)
	}
	fmt.Printf("\nCorrelated with device %s\n", key)
	printTowerStats(st, obs.Cell.TowerKey())
	return nil
}

// printTowerStats shows the tower aggregate after a scan.
func printTowerStats(st *store.Store, towerKey string) {
	tower, err := st.Tower(context.Background(), towerKey)
	if err != nil {
		return
	}
	fmt.Printf("Tower seen %d time(s), %d distinct position(s) recorded.\n",
		tower.ObservationCount, len(tower.PositionsSeen))
}
