// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/CellintRC/internal/observation"
)

// =============================================================================
// Device Keys
// =============================================================================

// KeyKind tags the two DeviceKey variants. A device key is either a
// confirmed identifier (IMSI/IMEI) or a synthetic fingerprint hash;
// modeling this as a tagged variant instead of a nullable identifier
// forces callers to handle both cases.
type KeyKind string

const (
	// KeyConfirmed keys a device by a confirmed IMSI/IMEI.
	KeyConfirmed KeyKind = "confirmed"

	// KeySynthetic keys a device by a fingerprint hash derived from
	// observed patterns.
	KeySynthetic KeyKind = "synthetic"
)

// DeviceKey is the stable identity of a device record. Once assigned
// it never changes; later observations update attributes, never the key.
type DeviceKey struct {
	Kind  KeyKind `json:"kind"`
	Value string  `json:"value"`
}

// ConfirmedKey builds a key from a confirmed identifier.
func ConfirmedKey(id string) DeviceKey {
	return DeviceKey{Kind: KeyConfirmed, Value: id}
}

// SyntheticKey builds a key from a fingerprint hash.
func SyntheticKey(fingerprint string) DeviceKey {
	return DeviceKey{Kind: KeySynthetic, Value: fingerprint}
}

// String renders the key in kind:value form used in the badger keyspace
// and on the CLI.
func (k DeviceKey) String() string {
	return string(k.Kind) + ":" + k.Value
}

// ParseDeviceKey parses the kind:value form back into a DeviceKey.
// A bare value with no kind prefix is treated as confirmed, matching
// what operators type on the CLI.
func ParseDeviceKey(s string) DeviceKey {
	if kind, value, ok := strings.Cut(s, ":"); ok {
		switch KeyKind(kind) {
		case KeyConfirmed, KeySynthetic:
			return DeviceKey{Kind: KeyKind(kind), Value: value}
		}
	}
	return ConfirmedKey(s)
}

// IsZero reports whether the key is unset.
func (k DeviceKey) IsZero() bool {
	return k.Value == ""
}

// =============================================================================
// Fingerprinting
// =============================================================================

// fingerprintBucket is the coarse timing bucket used in the synthetic
// fingerprint: observations of the same cell within the same bucket
// hash identically.
const fingerprintBucket = 10 * time.Minute

// activeWindow is how long after its last observation a device is
// still considered a plausible match for a same-tower observation.
const activeWindow = 10 * time.Minute

// Fingerprint derives the synthetic identity hash for an observation
// without a confirmed identifier: SHA-256 over the serving-cell tuple
// and the observation's coarse timing bucket.
func Fingerprint(obs *observation.Observation) string {
	var towerKey string
	if obs.Cell != nil {
		towerKey = obs.Cell.TowerKey()
	}
	bucket := obs.Timestamp.Unix() / int64(fingerprintBucket/time.Second)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", towerKey, bucket)))
	return hex.EncodeToString(sum[:16])
}

// matchScore rates how plausibly an existing device matches a new
// observation. Zero means no match; higher is stronger. The tie-break
// rules in resolveDevice depend only on the ordering of these values.
func matchScore(dev *Device, obs *observation.Observation, fingerprint string) int {
	if dev.Key.Kind == KeySynthetic && dev.Key.Value == fingerprint {
		return 3
	}
	if obs.Cell != nil && dev.LastCell != nil &&
		dev.LastCell.TowerKey() == obs.Cell.TowerKey() {
		gap := obs.Timestamp.Sub(dev.LastSeen)
		if gap < 0 {
			gap = -gap
		}
		if gap <= activeWindow {
			return 2
		}
	}
	return 0
}
