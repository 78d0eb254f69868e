// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "inspect the capability graph",
}

var graphInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "print graph and scorer summary statistics",
	Args:  cobra.NoArgs,
	RunE:  runGraphInspect,
}

func init() {
	graphCmd.AddCommand(graphInspectCmd)
}

func runGraphInspect(cmd *cobra.Command, _ []string) error {
	c := newClient(addrFlag)
	ctx := cmd.Context()

	stats, err := c.graphStats(ctx)
	if err != nil {
		return fmt.Errorf("fetching graph stats: %w", err)
	}
	scorer, err := c.scorerState(ctx)
	if err != nil {
		return fmt.Errorf("fetching scorer state: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "graph version: %d\n", stats.Version)
	fmt.Fprintf(out, "tools: %d\n", stats.ToolCount)
	fmt.Fprintf(out, "capabilities: %d\n", stats.CapabilityCount)
	fmt.Fprintf(out, "scorer state: %s\n", scorer.State)
	return nil
}
