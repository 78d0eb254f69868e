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

	"github.com/AleutianAI/capgateway/internal/api"
)

var trainDeadlineMs int64

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "trigger an immediate training pass over the replay buffer",
	Args:  cobra.NoArgs,
	RunE:  runTrain,
}

func init() {
	trainCmd.Flags().Int64Var(&trainDeadlineMs, "deadline-ms", 0, "abort and report partial progress after this many milliseconds (0 = trainer default)")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	c := newClient(addrFlag)
	resp, err := c.trainNow(cmd.Context(), api.TrainRequest{DeadlineMs: trainDeadlineMs})
	if err != nil {
		return fmt.Errorf("training: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "trained: %v\n", resp.Trained)
	fmt.Fprintf(out, "examples: %d\n", resp.Examples)
	fmt.Fprintf(out, "avg loss: %.6f\n", resp.AvgLoss)
	fmt.Fprintf(out, "updated priorities: %d\n", resp.UpdatedPriorities)
	return nil
}
