// Copyright 2025 The perfprobe Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package main provides the CLI entry point for perfprobe, a counter-group
// microbenchmark harness.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/perfprobe/perfprobe"
	"github.com/perfprobe/perfprobe/events"
	"github.com/perfprobe/perfprobe/harness"
	"github.com/perfprobe/perfprobe/workloads"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Error("perfprobe failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "perfprobe",
		Short: "Measure microarchitectural behavior of probe workloads",
		Long: `Perfprobe runs small, repeatable probe kernels under Linux performance
counter groups and reports cycles, instructions per cycle, cache miss
ratios, and related derived metrics for each one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newListCmd())

	return root
}

type runConfig struct {
	benches    []string
	eventList  string
	iterations int
	arraySize  int
	stride     int
	seed       int64
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var cfg runConfig

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run probe workloads under performance counters",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runBenchmarks(logger, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&cfg.benches, "bench", nil,
		"Workloads to run (default: all; see 'perfprobe list')")
	flags.StringVar(&cfg.eventList, "events", "",
		"Comma-separated event list overriding the default counter set")
	flags.IntVar(&cfg.iterations, "iterations", 1000,
		"Kernel repetitions per measured call")
	flags.IntVar(&cfg.arraySize, "array-size", 1_000_000,
		"Backing array size in bytes")
	flags.IntVar(&cfg.stride, "stride", 16,
		"Element stride for the strided kernels")
	flags.Int64Var(&cfg.seed, "seed", 0,
		"Random seed for the indirect kernel (0 = use current time)")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered probe workloads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, w := range workloads.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s\n", w.Name, w.Description)
			}
			return nil
		},
	}
}

func runBenchmarks(logger *slog.Logger, cfg runConfig) error {
	evs := harness.DefaultEvents()
	if cfg.eventList != "" {
		var err error
		evs, err = events.ParseList(cfg.eventList)
		if err != nil {
			return fmt.Errorf("parse events: %w", err)
		}
	}

	names := cfg.benches
	if len(names) == 0 {
		for _, w := range workloads.All() {
			names = append(names, w.Name)
		}
	}

	seed := cfg.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	wcfg := workloads.Config{
		Iterations: cfg.iterations,
		ArraySize:  cfg.arraySize,
		Stride:     cfg.stride,
		Seed:       seed,
	}

	for _, name := range names {
		w, err := workloads.Lookup(name)
		if err != nil {
			return err
		}

		fn, items, bytes := w.Make(wcfg)
		logger.Info("running benchmark",
			slog.String("name", name),
			slog.Int("iterations", wcfg.Iterations),
			slog.Int("array_size", wcfg.ArraySize),
		)
		if err := perfprobe.Measure(os.Stdout, name, fn, evs, items, bytes); err != nil {
			return fmt.Errorf("run %s: %w", name, err)
		}
	}

	return nil
}
