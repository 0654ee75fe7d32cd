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
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trpc.group/trpc-go/trpc-hitl-go/internal/config"
	"trpc.group/trpc-go/trpc-hitl-go/log"
	"trpc.group/trpc-go/trpc-hitl-go/telemetry/trace"
)

var rootCmd = &cobra.Command{
	Use:   "hitl-agent",
	Short: "hitl-agent is a chat agent that can ask a human for help",
	Long: `hitl-agent runs an agent/tools graph whose tools may suspend the run
to wait for a person. Checkpoints keep the session so it can be resumed
later, from the command line or over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("session", "1", "Session ID to run or inspect")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("trace", false, "Export traces over OTLP gRPC")
}

// loadConfig reads the configuration and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(viper.New(), file)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.SetLevel(cfg.Log.Level)
	return cfg, nil
}

// startTracing installs the OTLP exporter when --trace is set. The
// returned func flushes it.
func startTracing(ctx context.Context, cmd *cobra.Command) (func(), error) {
	enabled, _ := cmd.Flags().GetBool("trace")
	if !enabled {
		return func() {}, nil
	}
	clean, err := trace.Start(ctx, trace.WithServiceName(rootCmd.Name()))
	if err != nil {
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}
	return func() {
		if err := clean(); err != nil {
			log.Warnf("failed to flush traces: %v", err)
		}
	}, nil
}

func sessionFlag(cmd *cobra.Command) string {
	s, _ := cmd.Flags().GetString("session")
	return s
}
