// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package identity generates syntactically valid IMSI/IMEI candidates
// from partial identifier fragments.
//
// Generation is a pure function: the same fragments always produce the
// same candidates in the same (ascending) order, which keeps results
// reproducible and testable. Unknown digits are written as '?' and are
// brute-forced up to MaxUnknownDigits positions.
package identity

import (
	"errors"
	"fmt"
)

// =============================================================================
// Types
// =============================================================================

// Kind distinguishes candidate identifier types.
type Kind string

const (
	// KindIMSI is an International Mobile Subscriber Identity (15 digits).
	KindIMSI Kind = "imsi"

	// KindIMEI is an International Mobile Equipment Identity (15 digits,
	// Luhn check digit).
	KindIMEI Kind = "imei"
)

// Candidate is one generated identifier.
type Candidate struct {
	// Value is the full identifier digit string.
	Value string `json:"value"`

	Kind Kind `json:"kind"`

	// ChecksumValid is true for IMEI candidates (valid by construction)
	// and false for IMSI candidates (IMSI has no universal checksum).
	ChecksumValid bool `json:"checksum_valid"`

	// Derivation records which input fragments produced the candidate.
	Derivation string `json:"derivation"`
}

// ErrInvalidFragment is returned when a fragment has the wrong length,
// contains a non-digit/non-wildcard rune, or asks for more unknown
// digits than MaxUnknownDigits.
var ErrInvalidFragment = errors.New("invalid identifier fragment")

const (
	// Wildcard marks an unknown digit position in a fragment.
	Wildcard = '?'

	// MaxUnknownDigits bounds the brute-force space to 10^4 candidates.
	MaxUnknownDigits = 4

	imeiBaseLen = 14
	imsiLen     = 15
)

// =============================================================================
// IMEI
// =============================================================================

// GenerateIMEI produces 15-digit IMEI candidates from a 14-digit base.
//
// Description:
//
//	The base is the TAC + serial portion of an IMEI (14 digits), with
//	'?' for unknown positions. Each combination of unknown digits is
//	enumerated in ascending numeric order and completed with the Luhn
//	check digit, so every emitted candidate passes the standard IMEI
//	checksum by construction.
//
// Inputs:
//
//	base - 14 characters, digits and '?' only, at most MaxUnknownDigits
//	wildcards.
//
// Outputs:
//
//	[]Candidate - One candidate per combination, ascending.
//	error - ErrInvalidFragment for a malformed base.
func GenerateIMEI(base string) ([]Candidate, error) {
	if len(base) != imeiBaseLen {
		return nil, fmt.Errorf("%w: imei base must be %d characters, got %d",
			ErrInvalidFragment, imeiBaseLen, len(base))
	}
	if err := checkFragment(base); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, combinations(base))
	for _, filled := range enumerate(base) {
		check := luhnCheckDigit(filled)
		candidates = append(candidates, Candidate{
			Value:         filled + string(rune('0'+check)),
			Kind:          KindIMEI,
			ChecksumValid: true,
			Derivation:    fmt.Sprintf("base %s + luhn", base),
		})
	}
	return candidates, nil
}

// LuhnValid reports whether a 15-digit IMEI passes the checksum.
//
// Used by the store to tag externally observed equipment identifiers
// as checksum-valid-unverified.
func LuhnValid(imei string) bool {
	if len(imei) != imsiLen {
		return false
	}
	for _, r := range imei {
		if r < '0' || r > '9' {
			return false
		}
	}
	check := luhnCheckDigit(imei[:imeiBaseLen])
	return int(imei[imeiBaseLen]-'0') == check
}

// luhnCheckDigit computes the IMEI check digit for a 14-digit base:
// double every second digit (1-based even positions), reduce digit
// sums, check = (10 - sum mod 10) mod 10.
func luhnCheckDigit(base string) int {
	sum := 0
	for i := 0; i < len(base); i++ {
		d := int(base[i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return (10 - sum%10) % 10
}

// =============================================================================
// IMSI
// =============================================================================

// GenerateIMSI produces 15-digit IMSI candidates from MCC, MNC, and a
// partial Mobile Subscriber Identification Number.
//
// Description:
//
//	MCC and MNC must be fully specified (3 and 2-3 digits). The MSIN
//	fragment fills the remaining positions and may contain up to
//	MaxUnknownDigits '?' wildcards, enumerated in ascending order.
//	IMSI has no universal checksum, so every candidate is emitted with
//	ChecksumValid=false (syntactically valid, unverified).
//
// Inputs:
//
//	mcc - Mobile Country Code, exactly 3 digits.
//	mnc - Mobile Network Code, 2 or 3 digits.
//	msin - Subscriber fragment, digits and '?', exactly 15-len(mcc+mnc)
//	characters.
//
// Outputs:
//
//	[]Candidate - 10^k candidates for k wildcards, ascending, distinct.
//	error - ErrInvalidFragment for malformed inputs.
func GenerateIMSI(mcc, mnc, msin string) ([]Candidate, error) {
	if len(mcc) != 3 || !allDigits(mcc) {
		return nil, fmt.Errorf("%w: mcc must be exactly 3 digits", ErrInvalidFragment)
	}
	if (len(mnc) != 2 && len(mnc) != 3) || !allDigits(mnc) {
		return nil, fmt.Errorf("%w: mnc must be 2 or 3 digits", ErrInvalidFragment)
	}
	want := imsiLen - len(mcc) - len(mnc)
	if len(msin) != want {
		return nil, fmt.Errorf("%w: msin must be %d characters for mcc %s / mnc %s, got %d",
			ErrInvalidFragment, want, mcc, mnc, len(msin))
	}
	if err := checkFragment(msin); err != nil {
		return nil, err
	}

	prefix := mcc + mnc
	candidates := make([]Candidate, 0, combinations(msin))
	for _, filled := range enumerate(msin) {
		candidates = append(candidates, Candidate{
			Value:         prefix + filled,
			Kind:          KindIMSI,
			ChecksumValid: false,
			Derivation:    fmt.Sprintf("mcc %s + mnc %s + msin %s", mcc, mnc, msin),
		})
	}
	return candidates, nil
}

// =============================================================================
// Fragment Enumeration
// =============================================================================

// checkFragment validates fragment characters and the wildcard bound.
func checkFragment(fragment string) error {
	unknown := 0
	for _, r := range fragment {
		switch {
		case r == Wildcard:
			unknown++
		case r >= '0' && r <= '9':
		default:
			return fmt.Errorf("%w: unexpected character %q", ErrInvalidFragment, r)
		}
	}
	if unknown > MaxUnknownDigits {
		return fmt.Errorf("%w: %d unknown digits exceeds the maximum of %d",
			ErrInvalidFragment, unknown, MaxUnknownDigits)
	}
	return nil
}

// allDigits reports whether s consists solely of ASCII digits.
// Wildcards are not digits: MCC and MNC admit no unknowns.
func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// combinations returns 10^k for k wildcards in the fragment.
func combinations(fragment string) int {
	n := 1
	for _, r := range fragment {
		if r == Wildcard {
			n *= 10
		}
	}
	return n
}

// enumerate fills wildcard positions with every digit combination, in
// ascending numeric order of the filled-in digits.
func enumerate(fragment string) []string {
	positions := make([]int, 0, MaxUnknownDigits)
	for i, r := range fragment {
		if r == Wildcard {
			positions = append(positions, i)
		}
	}
	total := combinations(fragment)

	results := make([]string, 0, total)
	buf := []byte(fragment)
	for n := 0; n < total; n++ {
		v := n
		// Rightmost wildcard is the least significant digit.
		for i := len(positions) - 1; i >= 0; i-- {
			buf[positions[i]] = byte('0' + v%10)
			v /= 10
		}
		results = append(results, string(buf))
	}
	return results
}
