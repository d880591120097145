// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Report Parser
// =============================================================================

// ErrUnrecognizedFormat is returned when the overall document structure
// is not a cellular-scan report. Per-record problems never produce this
// error; they become ParseWarnings instead.
var ErrUnrecognizedFormat = errors.New("unrecognized report format")

// ParseWarning describes a recoverable per-record problem found while
// importing a report. Warnings are accumulated and surfaced alongside
// the successfully parsed observations, never silently dropped.
type ParseWarning struct {
	// Record is the 1-based index of the offending record.
	Record int

	// Line is the 1-based line number where the problem was detected.
	Line int

	Reason string
}

// String formats the warning for the operation log.
func (w ParseWarning) String() string {
	return fmt.Sprintf("record %d (line %d): %s", w.Record, w.Line, w.Reason)
}

// cellFields maps the numeric report keys that feed CellIdentity.
// Everything else that parses as key:value lands in RawFields.
var cellFields = map[string]bool{
	"mcc": true, "mnc": true, "tac": true, "lac": true,
	"cid": true, "ci": true, "pci": true, "rsrp": true,
}

// knownNumeric lists all keys the third-party report emits as integers.
// A non-integer value under one of these keys marks the record malformed.
var knownNumeric = map[string]bool{
	"mcc": true, "mnc": true, "tac": true, "lac": true,
	"cid": true, "ci": true, "pci": true, "rsrp": true,
	"rsrq": true, "rssnr": true, "band": true, "nid": true,
	"asu": true, "power": true, "rssi": true, "channel": true,
}

var (
	kvPattern        = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_ ()]*?)\s*[:=]\s*(.*\S)\s*$`)
	separatorPattern = regexp.MustCompile(`^\s*[-=]{3,}\s*$`)
	headerPattern    = regexp.MustCompile(`(?i)network cell info`)
)

// rawRecord is one record's key/value lines before interpretation.
type rawRecord struct {
	index     int
	firstLine int
	fields    []rawField
}

type rawField struct {
	line  int
	key   string
	value string
}

// Parse converts a cellular-scan report export into observations.
//
// Description:
//
//	Reads the record-oriented, line-delimited export format produced by
//	the Network Cell Info Lite family of scan tools. Records are
//	separated by dashed/ruled lines. Known numeric fields populate the
//	cell identity and position; unknown fields are preserved in
//	RawFields for forward compatibility.
//
//	A malformed record yields a ParseWarning and parsing continues with
//	the next record. Only a document with no recognizable structure at
//	all fails, with ErrUnrecognizedFormat.
//
// Inputs:
//
//	r - The report text.
//	now - Import time, used for records without a timestamp field.
//
// Outputs:
//
//	[]Observation - One per well-formed record, Source=ImportedReport.
//	[]ParseWarning - One per malformed or empty record.
//	error - ErrUnrecognizedFormat, or a read error from r.
func Parse(r io.Reader, now time.Time) ([]Observation, []ParseWarning, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		observations []Observation
		warnings     []ParseWarning
		current      rawRecord
		recordCount  int
		recognized   bool
		lineNo       int
	)

	flush := func() {
		if len(current.fields) == 0 {
			current = rawRecord{}
			return
		}
		current.index = recordCount + 1
		obs, warn, ok := buildObservation(current, now)
		switch {
		case warn != nil:
			recordCount++
			warnings = append(warnings, *warn)
		case ok:
			recordCount++
			observations = append(observations, obs)
		}
		// Neither: a metadata block (device/permissions preamble), not
		// a scan record. Skipped without a warning.
		current = rawRecord{}
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if headerPattern.MatchString(line) {
			recognized = true
			continue
		}
		if separatorPattern.MatchString(line) {
			flush()
			continue
		}

		m := kvPattern.FindStringSubmatch(line)
		if m == nil {
			continue // prose lines between records are ignored
		}

		key := normalizeKey(m[1])
		if cellFields[key] || key == "lat" || key == "latitude" ||
			key == "lon" || key == "longitude" {
			recognized = true
		}
		if len(current.fields) == 0 {
			current.firstLine = lineNo
		}
		current.fields = append(current.fields, rawField{
			line:  lineNo,
			key:   key,
			value: m[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read report: %w", err)
	}
	flush()

	if !recognized {
		return nil, nil, ErrUnrecognizedFormat
	}
	return observations, warnings, nil
}

// normalizeKey lowercases a report key and collapses it to a bare
// identifier ("SIM(tm)" -> "sim", "Is Location Enabled" -> "is_location_enabled").
func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if i := strings.IndexByte(key, '('); i > 0 {
		key = strings.TrimSpace(key[:i])
	}
	return strings.ReplaceAll(key, " ", "_")
}

// buildObservation interprets one raw record. It returns a valid
// observation (ok=true), a warning describing why the record was
// skipped, or neither for metadata-only blocks.
func buildObservation(rec rawRecord, now time.Time) (Observation, *ParseWarning, bool) {
	obs := New(SourceImportedReport, now)
	cell := CellIdentity{}
	var (
		haveCell           bool
		hadData            bool
		lat, lon, accuracy float64
		haveLat, haveLon   bool
	)

	for _, f := range rec.fields {
		if knownNumeric[f.key] {
			hadData = true
			n, err := strconv.Atoi(strings.TrimSpace(f.value))
			if err != nil {
				return Observation{}, &ParseWarning{
					Record: rec.index,
					Line:   f.line,
					Reason: fmt.Sprintf("field %q: invalid integer %q", f.key, f.value),
				}, false
			}
			switch f.key {
			case "mcc":
				cell.MCC, haveCell = n, true
			case "mnc":
				cell.MNC, haveCell = n, true
			case "tac", "lac":
				cell.LAC, haveCell = n, true
			case "cid", "ci":
				cell.CellID, haveCell = n, true
			case "pci":
				cell.PCI, haveCell = n, true
			case "rsrp":
				cell.RSRP, haveCell = n, true
			default:
				// Recognized report field with no model slot (rsrq,
				// band, asu, ...): preserved raw.
				setRaw(&obs, f.key, f.value)
			}
			continue
		}

		switch f.key {
		case "lat", "latitude":
			hadData = true
			v, err := strconv.ParseFloat(strings.TrimSpace(f.value), 64)
			if err != nil {
				return Observation{}, &ParseWarning{
					Record: rec.index, Line: f.line,
					Reason: fmt.Sprintf("field %q: invalid number %q", f.key, f.value),
				}, false
			}
			lat, haveLat = v, true
		case "lon", "longitude":
			hadData = true
			v, err := strconv.ParseFloat(strings.TrimSpace(f.value), 64)
			if err != nil {
				return Observation{}, &ParseWarning{
					Record: rec.index, Line: f.line,
					Reason: fmt.Sprintf("field %q: invalid number %q", f.key, f.value),
				}, false
			}
			lon, haveLon = v, true
		case "accuracy":
			if v, err := strconv.ParseFloat(strings.TrimSpace(f.value), 64); err == nil {
				accuracy = v
			}
		case "timestamp":
			if ts, ok := parseTimestamp(f.value); ok {
				obs.Timestamp = ts
			} else {
				setRaw(&obs, f.key, f.value)
			}
		case "imsi", "imei":
			obs.Identifier = strings.TrimSpace(f.value)
			setRaw(&obs, f.key, f.value)
		default:
			setRaw(&obs, f.key, f.value)
		}
	}

	if haveCell {
		obs.Cell = &cell
	}
	if haveLat && haveLon {
		obs.Position = &Position{Lat: lat, Lon: lon, AccuracyM: accuracy}
	}

	if err := obs.Validate(); err != nil {
		if !hadData {
			return Observation{}, nil, false
		}
		return Observation{}, &ParseWarning{
			Record: rec.index,
			Line:   rec.firstLine,
			Reason: "record has no cell identity or position",
		}, false
	}
	return obs, nil, true
}

func setRaw(obs *Observation, key, value string) {
	if obs.RawFields == nil {
		obs.RawFields = make(map[string]string)
	}
	obs.RawFields[key] = value
}

// parseTimestamp accepts the two timestamp formats seen in report
// exports: RFC 3339 and "2006-01-02 15:04:05".
func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, true
	}
	if ts, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return ts, true
	}
	return time.Time{}, false
}
