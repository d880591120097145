// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CellintRC/cmd/cellint/config"
	"github.com/AleutianAI/CellintRC/internal/identity"
)

// runCalculateIMSI enumerates IMSI candidates from --mcc/--mnc/--msin.
func runCalculateIMSI(cmd *cobra.Command, args []string) error {
	if err := checkWildcardBudget(calcMSIN); err != nil {
		return err
	}
	candidates, err := identity.GenerateIMSI(calcMCC, calcMNC, calcMSIN)
	if err != nil {
		return err
	}

	fmt.Printf("IMSI candidates for MCC %s / MNC %s / MSIN %s (%d total):\n",
		calcMCC, calcMNC, calcMSIN, len(candidates))
	for _, c := range candidates {
		fmt.Println(c.Value)
	}
	if len(candidates) > 1 {
		fmt.Println("Note: IMSI has no checksum; candidates are syntactically valid but unverified.")
	}
	return nil
}

// runCalculateIMEI completes a 14-digit base with its check digit.
func runCalculateIMEI(cmd *cobra.Command, args []string) error {
	base := strings.TrimSpace(args[0])
	if err := checkWildcardBudget(base); err != nil {
		return err
	}
	candidates, err := identity.GenerateIMEI(base)
	if err != nil {
		return err
	}

	if len(candidates) == 1 {
		fmt.Printf("IMEI: %s (check digit %c, Luhn valid)\n",
			candidates[0].Value, candidates[0].Value[14])
		return nil
	}
	fmt.Printf("IMEI candidates for base %s (%d total, all Luhn valid):\n", base, len(candidates))
	for _, c := range candidates {
		fmt.Println(c.Value)
	}
	return nil
}

// checkWildcardBudget enforces the configured wildcard cap before the
// engine's hard bound kicks in.
func checkWildcardBudget(fragment string) error {
	limit := config.Global.Identity.MaxUnknownDigits
	if limit <= 0 || limit > identity.MaxUnknownDigits {
		limit = identity.MaxUnknownDigits
	}
	if n := strings.Count(fragment, string(identity.Wildcard)); n > limit {
		return fmt.Errorf("%d unknown digits exceeds the configured maximum of %d", n, limit)
	}
	return nil
}
