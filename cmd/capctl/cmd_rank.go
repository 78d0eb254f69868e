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
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/capgateway/internal/api"
)

var (
	rankLimit    int
	rankFilter   string
	rankMinScore float64
)

var rankCmd = &cobra.Command{
	Use:   "rank <intent>",
	Short: "rank tools and capabilities against an intent",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRank,
}

func init() {
	rankCmd.Flags().IntVar(&rankLimit, "limit", 10, "maximum results to return")
	rankCmd.Flags().StringVar(&rankFilter, "filter", "both", "candidate kind: tools, capabilities, or both")
	rankCmd.Flags().Float64Var(&rankMinScore, "min-score", 0, "drop results scoring below this threshold")
}

func runRank(cmd *cobra.Command, args []string) error {
	intent := strings.Join(args, " ")
	c := newClient(addrFlag)

	resp, err := c.rank(cmd.Context(), api.RankRequest{
		Intent:   intent,
		Limit:    rankLimit,
		Filter:   rankFilter,
		MinScore: rankMinScore,
	})
	if err != nil {
		return fmt.Errorf("ranking %q: %w", intent, err)
	}
	printRankResults(cmd, resp)
	return nil
}

// printRankResults renders results as a plain tab-aligned table, then a
// colored summary below it. Color never goes inside a tabwriter cell: ANSI
// escapes count toward that cell's padding width and throw off alignment
// between rows that are and aren't styled, so styling is confined to
// whole lines printed after w.Flush.
func printRankResults(cmd *cobra.Command, resp api.RankResponse) {
	out := cmd.OutOrStdout()
	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "no candidates matched")
		return
	}

	colored := colorEnabled()
	var pinned []string
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSCORE\tSEMANTIC\tGRAPH\tRELIABILITY")
	for _, r := range resp.Results {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\n",
			r.ID, r.Kind, r.Score, r.Semantic, r.Graph, r.Reliability)
		if r.Pinned {
			pinned = append(pinned, r.ID)
		}
	}
	w.Flush()

	note := func(msg string) {
		if colored {
			msg = noteStyle.Render(msg)
		}
		fmt.Fprintln(out, msg)
	}
	if len(pinned) > 0 {
		note(fmt.Sprintf("pinned: %s", strings.Join(pinned, ", ")))
	}
	if resp.EscalationRecommended {
		note("note: escalation recommended (low-confidence top result)")
	}
	if resp.LexicalFallback {
		note("note: served from lexical fallback, semantic scoring was unavailable")
	}
	if resp.Incomplete {
		note("note: response is incomplete, the scoring deadline was reached")
	}
}

var noteStyle = lipgloss.NewStyle().Faint(true)
