// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command capctl is the operator CLI for a running capgateway instance:
// ranking candidates for an intent, triggering a training pass, inspecting
// the capability graph, and watching live rankings in a terminal dashboard.
//
// Usage:
//
//	capctl rank "read the config file"
//	capctl train
//	capctl graph inspect
//	capctl dashboard
//
// Every subcommand talks to a gatewayd instance over HTTP; point it at a
// non-default address with --addr or the CAPGATEWAY_ADDR environment
// variable.
package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var addrFlag string

var rootCmd = &cobra.Command{
	Use:           "capctl",
	Short:         "operate a capgateway ranking and learning engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", envOr("CAPGATEWAY_ADDR", "http://localhost:8080"), "gatewayd base URL")
	rootCmd.AddCommand(rankCmd, trainCmd, graphCmd, dashboardCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// colorEnabled reports whether stdout is an interactive terminal, the
// signal `rank` uses to decide between a plain and an ANSI-colored table.
func colorEnabled() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
