//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-hitl-go/graph"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the latest checkpoint of a session",
	Long: `Prints the next node, the pending request for help and the messages
of --session. Use a sqlite or redis store to inspect sessions of other
processes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		saver, closeSaver, err := newSaver(cfg.Store)
		if err != nil {
			return err
		}
		defer closeSaver()

		// Reading a snapshot never calls the model.
		g, err := buildGraph(nil, newTools(cfg.Search))
		if err != nil {
			return err
		}
		exec, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
		if err != nil {
			return err
		}
		snap, err := exec.GetState(cmd.Context(), sessionFlag(cmd))
		if err != nil {
			return err
		}
		printSnapshot(cmd.OutOrStdout(), snap)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
}

func printSnapshot(out io.Writer, snap *graph.StateSnapshot) {
	fmt.Fprintf(out, "session: %s\n", snap.SessionID)
	fmt.Fprintf(out, "checkpoint: %s (step %d, %s)\n", snap.CheckpointID, snap.Step, snap.Source)
	fmt.Fprintf(out, "next: %s\n", snap.Next)
	printInterrupt(out, snap.Interrupt)
	for _, m := range snap.State.Messages() {
		printMessage(out, m)
	}
}
