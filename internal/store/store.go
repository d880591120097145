// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists device and tower records in an embedded
// BadgerDB and correlates incoming observations with known devices.
//
// Writes are serialized: all mutation goes through Ingest, which runs
// under a single mutex and a single badger transaction, so a device is
// never half-updated. Reads run concurrently on read-only transactions
// and see a consistent snapshot.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/CellintRC/internal/identity"
	"github.com/AleutianAI/CellintRC/internal/metrics"
	"github.com/AleutianAI/CellintRC/internal/observation"
)

// =============================================================================
// Records
// =============================================================================

// ErrNotFound is returned when a device, tower, or requested reading
// does not exist. It is a defined outcome, not a failure.
var ErrNotFound = errors.New("not found")

// Confidence grades how well an identifier is attested.
type Confidence string

const (
	// ConfidenceConfirmed means the identifier came from a direct radio
	// reading.
	ConfidenceConfirmed Confidence = "confirmed"

	// ConfidenceChecksumValid means the identifier passed its checksum
	// but came from an imported report rather than a direct reading.
	ConfidenceChecksumValid Confidence = "checksum_valid_unverified"

	// ConfidenceCandidate means the identifier is syntactically
	// plausible but unverified.
	ConfidenceCandidate Confidence = "candidate"
)

// KnownIdentifier is an identifier attached to a device record.
type KnownIdentifier struct {
	Value      string        `json:"value"`
	Kind       identity.Kind `json:"kind"`
	Confidence Confidence    `json:"confidence"`
}

// Device is a correlated device record. The Key is assigned at
// creation and never changes; observations only update attributes.
type Device struct {
	Key       DeviceKey `json:"key"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	Identifiers []KnownIdentifier `json:"identifiers,omitempty"`

	// ObservationCount is the number of arena entries indexed under
	// this device.
	ObservationCount int `json:"observation_count"`

	// LastCell is the serving cell of the most recent cell-bearing
	// observation.
	LastCell *observation.CellIdentity `json:"last_cell,omitempty"`
}

// Tower is an aggregate record for one cell, keyed MCC-MNC-LAC-CID.
type Tower struct {
	Key    string `json:"key"`
	MCC    int    `json:"mcc"`
	MNC    int    `json:"mnc"`
	LAC    int    `json:"lac"`
	CellID int    `json:"cid"`

	// PositionsSeen holds the distinct observer positions recorded
	// while this cell was serving.
	PositionsSeen []observation.Position `json:"positions_seen,omitempty"`

	ObservationCount int       `json:"observation_count"`
	LastRSRP         int       `json:"last_rsrp,omitempty"`
	LastSeen         time.Time `json:"last_seen"`
}

// DeviceSummary is the list-view projection of a Device.
type DeviceSummary struct {
	Key              DeviceKey `json:"key"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	ObservationCount int       `json:"observation_count"`
	Identifiers      int       `json:"identifiers"`
	LastTower        string    `json:"last_tower,omitempty"`
}

// Filter narrows ListDevices output. Zero values match everything.
type Filter struct {
	// Kind restricts results to confirmed or synthetic devices.
	Kind KeyKind

	// Since drops devices last seen before this time.
	Since time.Time

	// Limit caps the result count. Zero means unlimited.
	Limit int
}

// =============================================================================
// Keyspace
// =============================================================================

// Badger keyspace:
//
//	meta/seq          next arena sequence number (8-byte big-endian)
//	obs/<seq>         immutable observation arena, seq big-endian
//	obsid/<uuid>      observation ID -> owning device key (replay dedup)
//	dev/<kind:value>  device record
//	devobs/<kind:value>/<seq>  per-device history index
//	twr/<mcc-mnc-lac-cid>      tower record
var (
	metaSeqKey   = []byte("meta/seq")
	obsPrefix    = []byte("obs/")
	obsIDPrefix  = []byte("obsid/")
	devPrefix    = []byte("dev/")
	devObsPrefix = []byte("devobs/")
	towerPrefix  = []byte("twr/")
)

func obsKey(seq uint64) []byte {
	key := make([]byte, len(obsPrefix)+8)
	copy(key, obsPrefix)
	binary.BigEndian.PutUint64(key[len(obsPrefix):], seq)
	return key
}

func obsIDKey(id string) []byte {
	return append(append([]byte{}, obsIDPrefix...), id...)
}

func deviceKey(k DeviceKey) []byte {
	return append(append([]byte{}, devPrefix...), k.String()...)
}

func deviceObsPrefix(k DeviceKey) []byte {
	return append(append(append([]byte{}, devObsPrefix...), k.String()...), '/')
}

func deviceObsKey(k DeviceKey, seq uint64) []byte {
	prefix := deviceObsPrefix(k)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}

func towerKey(key string) []byte {
	return append(append([]byte{}, towerPrefix...), key...)
}

// =============================================================================
// Store
// =============================================================================

// Store correlates observations with devices and towers on top of an
// embedded BadgerDB.
//
// Thread Safety: Ingest is serialized internally; query methods are
// safe for concurrent use alongside Ingest.
type Store struct {
	db *badger.DB
	gc *gcRunner

	// writeMu serializes Ingest. Badger would detect write conflicts on
	// the shared sequence counter anyway, but serializing up front keeps
	// device resolution deterministic.
	writeMu sync.Mutex

	closeMu sync.Mutex
	closed  bool
}

// Open opens (or creates) a store at cfg.Path.
func Open(cfg DBConfig) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		s.gc.start()
	}
	return s, nil
}

// OpenInMemory opens an ephemeral store for tests.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryDBConfig())
}

// Close stops background GC and closes the database. Safe to call
// more than once.
func (s *Store) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// =============================================================================
// Ingest
// =============================================================================

// Ingest appends an observation and correlates it with a device.
//
// Description:
//
//	Resolution order: a confirmed identifier keys the device directly;
//	otherwise the observation's synthetic fingerprint and recent
//	same-tower activity are scored against existing devices, ties
//	broken by most recent LastSeen; a residual tie or no match creates
//	a new synthetic device. The observation is appended to the
//	immutable arena, indexed under the device, and the serving tower
//	record is upserted. All of this happens in one transaction.
//
//	Replaying an observation whose ID was already ingested is a no-op
//	and returns the originally assigned device key.
//
// Inputs:
//
//	ctx - Cancellation; checked before the transaction starts.
//	obs - The observation. Must pass Validate.
//
// Outputs:
//
//	DeviceKey - The key of the owning device (existing or created).
//	error - Validation or storage failure; the store is unchanged.
func (s *Store) Ingest(ctx context.Context, obs observation.Observation) (DeviceKey, error) {
	if err := obs.Validate(); err != nil {
		return DeviceKey{}, err
	}
	if obs.ID == "" {
		return DeviceKey{}, errors.New("observation has no ID")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		resolved      DeviceKey
		deviceCreated bool
		replayed      bool
		towerUpserted bool
	)
	err := withTxn(ctx, s.db, func(txn *badger.Txn) error {
		// Idempotent replay: an already-ingested ID maps straight back
		// to its device.
		if item, err := txn.Get(obsIDKey(obs.ID)); err == nil {
			replayed = true
			return item.Value(func(val []byte) error {
				resolved = ParseDeviceKey(string(val))
				return nil
			})
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check observation id: %w", err)
		}

		seq, err := nextSeq(txn)
		if err != nil {
			return err
		}

		raw, err := json.Marshal(&obs)
		if err != nil {
			return fmt.Errorf("marshal observation: %w", err)
		}
		if err := txn.Set(obsKey(seq), raw); err != nil {
			return fmt.Errorf("append observation: %w", err)
		}

		dev, created, err := resolveDevice(txn, &obs)
		if err != nil {
			return err
		}
		deviceCreated = created
		resolved = dev.Key

		applyObservation(dev, &obs)
		if err := putJSON(txn, deviceKey(dev.Key), dev); err != nil {
			return fmt.Errorf("update device %s: %w", dev.Key, err)
		}
		if err := txn.Set(deviceObsKey(dev.Key, seq), nil); err != nil {
			return fmt.Errorf("index observation: %w", err)
		}
		if err := txn.Set(obsIDKey(obs.ID), []byte(dev.Key.String())); err != nil {
			return fmt.Errorf("record observation id: %w", err)
		}

		if obs.Cell != nil && obs.Cell.Complete() {
			if err := upsertTower(txn, &obs); err != nil {
				return err
			}
			towerUpserted = true
		}
		return nil
	})
	if err != nil {
		return DeviceKey{}, err
	}

	// Counters move only after the transaction commits.
	if !replayed {
		metrics.ObservationsIngested.WithLabelValues(string(obs.Source)).Inc()
	}
	if deviceCreated {
		metrics.DevicesCreated.Inc()
	}
	if towerUpserted {
		metrics.TowersUpserted.Inc()
	}
	return resolved, nil
}

// nextSeq allocates the next arena sequence number.
func nextSeq(txn *badger.Txn) (uint64, error) {
	var seq uint64
	item, err := txn.Get(metaSeqKey)
	switch {
	case err == nil:
		err = item.Value(func(val []byte) error {
			seq = binary.BigEndian.Uint64(val)
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("read sequence counter: %w", err)
		}
	case errors.Is(err, badger.ErrKeyNotFound):
	default:
		return 0, fmt.Errorf("read sequence counter: %w", err)
	}

	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, seq+1)
	if err := txn.Set(metaSeqKey, next); err != nil {
		return 0, fmt.Errorf("advance sequence counter: %w", err)
	}
	return seq, nil
}

// resolveDevice finds the device an observation belongs to, creating a
// new synthetic device when nothing matches.
func resolveDevice(txn *badger.Txn, obs *observation.Observation) (*Device, bool, error) {
	if obs.Identifier != "" {
		key := ConfirmedKey(obs.Identifier)
		dev, err := getDevice(txn, key)
		if err == nil {
			return dev, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		return newDevice(key, obs), true, nil
	}

	fingerprint := Fingerprint(obs)
	best, err := bestMatch(txn, obs, fingerprint)
	if err != nil {
		return nil, false, err
	}
	if best != nil {
		return best, false, nil
	}
	return newDevice(SyntheticKey(fingerprint), obs), true, nil
}

// bestMatch scans device records for the strongest fingerprint match.
// Equal scores break toward the most recent LastSeen; devices that are
// still tied after that are not distinguishable, so nil is returned
// and the caller creates a fresh device.
func bestMatch(txn *badger.Txn, obs *observation.Observation, fingerprint string) (*Device, error) {
	var (
		best      *Device
		bestScore int
		tied      bool
	)

	it := txn.NewIterator(prefixIterOpts(devPrefix))
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		var dev Device
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &dev)
		})
		if err != nil {
			return nil, fmt.Errorf("decode device record: %w", err)
		}

		score := matchScore(&dev, obs, fingerprint)
		if score == 0 || score < bestScore {
			continue
		}
		switch {
		case best == nil || score > bestScore:
			d := dev
			best, bestScore, tied = &d, score, false
		case dev.LastSeen.After(best.LastSeen):
			d := dev
			best, tied = &d, false
		case dev.LastSeen.Equal(best.LastSeen):
			tied = true
		}
	}

	if best == nil || tied {
		return nil, nil
	}
	return best, nil
}

// newDevice creates a fresh device record. Callers guarantee the key
// is unoccupied: a synthetic key colliding with an existing record
// would have matched in bestMatch first.
func newDevice(key DeviceKey, obs *observation.Observation) *Device {
	return &Device{
		Key:       key,
		FirstSeen: obs.Timestamp,
		LastSeen:  obs.Timestamp,
	}
}

// applyObservation folds an observation into a device record.
func applyObservation(dev *Device, obs *observation.Observation) {
	if obs.Timestamp.Before(dev.FirstSeen) {
		dev.FirstSeen = obs.Timestamp
	}
	if obs.Timestamp.After(dev.LastSeen) {
		dev.LastSeen = obs.Timestamp
	}
	dev.ObservationCount++
	if obs.Cell != nil {
		cell := *obs.Cell
		dev.LastCell = &cell
	}
	if obs.Identifier != "" {
		addIdentifier(dev, classifyIdentifier(obs))
	}
}

// classifyIdentifier grades an observation-supplied identifier.
// Direct radio readings are confirmed; identifiers from imported
// reports are downgraded to checksum-valid (IMEI passing Luhn) or
// candidate.
func classifyIdentifier(obs *observation.Observation) KnownIdentifier {
	id := KnownIdentifier{Value: obs.Identifier, Kind: identity.KindIMSI}
	if identity.LuhnValid(obs.Identifier) {
		id.Kind = identity.KindIMEI
	}

	switch {
	case obs.Source == observation.SourceCellRadio:
		id.Confidence = ConfidenceConfirmed
	case id.Kind == identity.KindIMEI:
		id.Confidence = ConfidenceChecksumValid
	default:
		id.Confidence = ConfidenceCandidate
	}
	return id
}

// addIdentifier merges an identifier into the device, upgrading
// confidence in place when the value is already known.
func addIdentifier(dev *Device, id KnownIdentifier) {
	for i := range dev.Identifiers {
		if dev.Identifiers[i].Value != id.Value {
			continue
		}
		if rank(id.Confidence) > rank(dev.Identifiers[i].Confidence) {
			dev.Identifiers[i].Confidence = id.Confidence
		}
		return
	}
	dev.Identifiers = append(dev.Identifiers, id)
}

func rank(c Confidence) int {
	switch c {
	case ConfidenceConfirmed:
		return 2
	case ConfidenceChecksumValid:
		return 1
	}
	return 0
}

// positionEpsilon collapses positions within ~1 meter when deduping a
// tower's PositionsSeen.
const positionEpsilon = 1e-5

// upsertTower folds a cell-bearing observation into its tower record.
func upsertTower(txn *badger.Txn, obs *observation.Observation) error {
	cell := obs.Cell
	key := cell.TowerKey()

	var tower Tower
	item, err := txn.Get(towerKey(key))
	switch {
	case err == nil:
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tower)
		})
		if err != nil {
			return fmt.Errorf("decode tower %s: %w", key, err)
		}
	case errors.Is(err, badger.ErrKeyNotFound):
		tower = Tower{
			Key:    key,
			MCC:    cell.MCC,
			MNC:    cell.MNC,
			LAC:    cell.LAC,
			CellID: cell.CellID,
		}
	default:
		return fmt.Errorf("load tower %s: %w", key, err)
	}

	tower.ObservationCount++
	if obs.Timestamp.After(tower.LastSeen) {
		tower.LastSeen = obs.Timestamp
	}
	if cell.RSRP != 0 {
		tower.LastRSRP = cell.RSRP
	}
	if obs.HasPosition() {
		pos := *obs.Position
		duplicate := false
		for _, seen := range tower.PositionsSeen {
			if math.Abs(seen.Lat-pos.Lat) < positionEpsilon &&
				math.Abs(seen.Lon-pos.Lon) < positionEpsilon {
				duplicate = true
				break
			}
		}
		if !duplicate {
			tower.PositionsSeen = append(tower.PositionsSeen, pos)
		}
	}

	if err := putJSON(txn, towerKey(key), &tower); err != nil {
		return fmt.Errorf("update tower %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// Device returns the device record for key, or ErrNotFound.
func (s *Store) Device(ctx context.Context, key DeviceKey) (*Device, error) {
	var dev *Device
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		d, err := getDevice(txn, key)
		if err != nil {
			return err
		}
		dev = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Tower returns the tower record for the MCC-MNC-LAC-CID key, or
// ErrNotFound.
func (s *Store) Tower(ctx context.Context, key string) (*Tower, error) {
	var tower Tower
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		item, err := txn.Get(towerKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("tower %s: %w", key, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load tower %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tower)
		})
	})
	if err != nil {
		return nil, err
	}
	return &tower, nil
}

// ListTowers returns all tower records, most recently seen first.
func (s *Store) ListTowers(ctx context.Context) ([]Tower, error) {
	var towers []Tower
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		it := txn.NewIterator(prefixIterOpts(towerPrefix))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var tower Tower
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &tower)
			})
			if err != nil {
				return fmt.Errorf("decode tower record: %w", err)
			}
			towers = append(towers, tower)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(towers, func(i, j int) bool {
		return towers[i].LastSeen.After(towers[j].LastSeen)
	})
	return towers, nil
}

// ListDevices returns device summaries matching filter, ordered by
// LastSeen descending.
func (s *Store) ListDevices(ctx context.Context, filter Filter) ([]DeviceSummary, error) {
	var summaries []DeviceSummary
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		it := txn.NewIterator(prefixIterOpts(devPrefix))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var dev Device
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &dev)
			})
			if err != nil {
				return fmt.Errorf("decode device record: %w", err)
			}
			if filter.Kind != "" && dev.Key.Kind != filter.Kind {
				continue
			}
			if !filter.Since.IsZero() && dev.LastSeen.Before(filter.Since) {
				continue
			}
			summary := DeviceSummary{
				Key:              dev.Key,
				FirstSeen:        dev.FirstSeen,
				LastSeen:         dev.LastSeen,
				ObservationCount: dev.ObservationCount,
				Identifiers:      len(dev.Identifiers),
			}
			if dev.LastCell != nil {
				summary.LastTower = dev.LastCell.TowerKey()
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastSeen.After(summaries[j].LastSeen)
	})
	if filter.Limit > 0 && len(summaries) > filter.Limit {
		summaries = summaries[:filter.Limit]
	}
	return summaries, nil
}

// Track returns the most recent position-bearing observation for a
// device.
//
// Outputs:
//
//	observation.Observation - The latest observation carrying a
//	position.
//	error - ErrNotFound when the device is unknown or has never been
//	observed with a position.
func (s *Store) Track(ctx context.Context, key DeviceKey) (observation.Observation, error) {
	var result observation.Observation
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		if _, err := getDevice(txn, key); err != nil {
			return err
		}

		// Walk the history index newest-first.
		opts := prefixIterOpts(deviceObsPrefix(key))
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek past the prefix range.
		seek := append(append([]byte{}, opts.Prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seek); it.Valid(); it.Next() {
			seq := binary.BigEndian.Uint64(it.Item().Key()[len(opts.Prefix):])
			obs, err := getObservation(txn, seq)
			if err != nil {
				return err
			}
			if obs.HasPosition() {
				result = obs
				return nil
			}
		}
		return fmt.Errorf("device %s has no position-bearing observation: %w", key, ErrNotFound)
	})
	if err != nil {
		return observation.Observation{}, err
	}
	return result, nil
}

// History returns a device's observations within [from, to], ordered
// by non-decreasing timestamp with insertion order breaking ties.
// Zero bounds are unbounded.
func (s *Store) History(ctx context.Context, key DeviceKey, from, to time.Time) ([]observation.Observation, error) {
	var history []observation.Observation
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		if _, err := getDevice(txn, key); err != nil {
			return err
		}

		prefix := deviceObsPrefix(key)
		it := txn.NewIterator(prefixIterOpts(prefix))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			seq := binary.BigEndian.Uint64(it.Item().Key()[len(prefix):])
			obs, err := getObservation(txn, seq)
			if err != nil {
				return err
			}
			if !from.IsZero() && obs.Timestamp.Before(from) {
				continue
			}
			if !to.IsZero() && obs.Timestamp.After(to) {
				continue
			}
			history = append(history, obs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The index is in insertion order already; a stable sort on
	// timestamp keeps that order for ties.
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	return history, nil
}

// deviceExport is the document written by ExportDevice.
type deviceExport struct {
	Device       *Device                   `json:"device"`
	Observations []observation.Observation `json:"observations"`
}

// ExportDevice writes a device record and its full observation history
// to w as indented JSON.
func (s *Store) ExportDevice(ctx context.Context, key DeviceKey, w io.Writer) error {
	dev, err := s.Device(ctx, key)
	if err != nil {
		return err
	}
	history, err := s.History(ctx, key, time.Time{}, time.Time{})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&deviceExport{Device: dev, Observations: history})
}

// =============================================================================
// Helpers
// =============================================================================

func getDevice(txn *badger.Txn, key DeviceKey) (*Device, error) {
	item, err := txn.Get(deviceKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("device %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load device %s: %w", key, err)
	}
	var dev Device
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &dev)
	})
	if err != nil {
		return nil, fmt.Errorf("decode device %s: %w", key, err)
	}
	return &dev, nil
}

func getObservation(txn *badger.Txn, seq uint64) (observation.Observation, error) {
	var obs observation.Observation
	item, err := txn.Get(obsKey(seq))
	if err != nil {
		return obs, fmt.Errorf("load observation %d: %w", seq, err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &obs)
	})
	if err != nil {
		return obs, fmt.Errorf("decode observation %d: %w", seq, err)
	}
	return obs, nil
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

func prefixIterOpts(prefix []byte) badger.IteratorOptions {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = append([]byte{}, prefix...)
	return opts
}
