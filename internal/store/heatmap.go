// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
)

// gridSize is the heatmap resolution on each axis.
const gridSize = 16

// Grid is a density aggregation of the observer positions recorded for
// one tower. Counts[row][col] is the number of positions falling in
// that cell of the bounding box; row 0 is the southern edge.
type Grid struct {
	TowerKey string `json:"tower_key"`

	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`

	Counts [gridSize][gridSize]int `json:"counts"`

	// Total is the number of positions aggregated.
	Total int `json:"total"`
}

// Heatmap aggregates a tower's PositionsSeen into a density grid.
//
// Outputs:
//
//	Grid - Position density over the tower's bounding box. A tower
//	with no recorded positions yields an empty grid (Total=0).
//	error - ErrNotFound when the tower is unknown.
func (s *Store) Heatmap(ctx context.Context, key string) (Grid, error) {
	tower, err := s.Tower(ctx, key)
	if err != nil {
		return Grid{}, err
	}

	grid := Grid{TowerKey: key}
	if len(tower.PositionsSeen) == 0 {
		return grid, nil
	}

	grid.MinLat, grid.MaxLat = tower.PositionsSeen[0].Lat, tower.PositionsSeen[0].Lat
	grid.MinLon, grid.MaxLon = tower.PositionsSeen[0].Lon, tower.PositionsSeen[0].Lon
	for _, pos := range tower.PositionsSeen[1:] {
		grid.MinLat = min(grid.MinLat, pos.Lat)
		grid.MaxLat = max(grid.MaxLat, pos.Lat)
		grid.MinLon = min(grid.MinLon, pos.Lon)
		grid.MaxLon = max(grid.MaxLon, pos.Lon)
	}

	latSpan := grid.MaxLat - grid.MinLat
	lonSpan := grid.MaxLon - grid.MinLon
	for _, pos := range tower.PositionsSeen {
		row := bucket(pos.Lat-grid.MinLat, latSpan)
		col := bucket(pos.Lon-grid.MinLon, lonSpan)
		grid.Counts[row][col]++
		grid.Total++
	}
	return grid, nil
}

// HeatmapArea aggregates the recorded positions of every tower that
// fall inside a bounding box into a density grid spanning that box.
//
// Outputs:
//
//	Grid - Position density over [minLat,maxLat] x [minLon,maxLon].
//	TowerKey is empty; positions outside the box are ignored.
//	error - When the box is inverted, or on a storage failure.
func (s *Store) HeatmapArea(ctx context.Context, minLat, minLon, maxLat, maxLon float64) (Grid, error) {
	if minLat > maxLat || minLon > maxLon {
		return Grid{}, fmt.Errorf("inverted bounding box %g,%g .. %g,%g",
			minLat, minLon, maxLat, maxLon)
	}

	towers, err := s.ListTowers(ctx)
	if err != nil {
		return Grid{}, err
	}

	grid := Grid{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
	latSpan := maxLat - minLat
	lonSpan := maxLon - minLon
	for _, tower := range towers {
		for _, pos := range tower.PositionsSeen {
			if pos.Lat < minLat || pos.Lat > maxLat || pos.Lon < minLon || pos.Lon > maxLon {
				continue
			}
			row := bucket(pos.Lat-minLat, latSpan)
			col := bucket(pos.Lon-minLon, lonSpan)
			grid.Counts[row][col]++
			grid.Total++
		}
	}
	return grid, nil
}

// bucket maps an offset within [0, span] to a grid index. A zero span
// (single distinct coordinate) collapses to index 0.
func bucket(offset, span float64) int {
	if span <= 0 {
		return 0
	}
	idx := int(offset / span * gridSize)
	if idx >= gridSize {
		idx = gridSize - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}
