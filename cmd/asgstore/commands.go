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
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/asgstore/pkg/logging"
	"github.com/AleutianAI/asgstore/services/asg/graph"
	"github.com/AleutianAI/asgstore/services/asg/telemetry"
)

// app carries the state shared by every command of one invocation.
type app struct {
	cfg    Config
	logger *logging.Logger
	tel    *telemetry.Telemetry

	// Global flags.
	configPath string
	logLevel   string
	quiet      bool
	jsonOutput bool

	// promFile is set by "stats --prom-file" and switches the metric
	// exporter to prometheus before telemetry starts.
	promFile string
}

// newRootCmd builds the command tree bound to a.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "asgstore",
		Short: "Inspect, convert and store JavaScript ASG graph files",
		Long: `asgstore works with graph files holding a JavaScript abstract semantic
graph: typed nodes, ownership and reference edges, and a shared string table.

Graph files are written as "csi" (plain) or "zsi" (zstd compressed) and end
with a blake3 checksum. Snapshots are graph files kept by name in a local
BadgerDB store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigFile, "Configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Disable log output on stderr")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(
		newInfoCmd(a),
		newVerifyCmd(a),
		newStatsCmd(a),
		newConvertCmd(a),
		newFilterCmd(a),
		newDumpCmd(a),
		newSnapshotCmd(a),
	)
	return root
}

// setup loads configuration and starts logging and telemetry.
func (a *app) setup(cmd *cobra.Command) error {
	explicit := cmd.Flags().Changed("config")
	cfg, err := LoadConfig(a.configPath, explicit)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		lvl, err := logging.ParseLevel(a.logLevel)
		if err != nil {
			return err
		}
		cfg.Log.Level = lvl
	}
	if a.quiet {
		cfg.Log.Quiet = true
	}
	if cfg.Log.Output == nil {
		cfg.Log.Output = cmd.ErrOrStderr()
	}
	if a.promFile != "" {
		cfg.Telemetry.MetricExporter = "prometheus"
	}
	if cfg.Telemetry.Stdout == nil {
		cfg.Telemetry.Stdout = cmd.ErrOrStderr()
	}
	a.cfg = cfg

	a.logger, err = logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	a.tel, err = telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.logger.Debug("configuration loaded",
		"config", a.configPath,
		"store", cfg.Store.Path,
		"metric_exporter", cfg.Telemetry.MetricExporter,
	)
	return nil
}

// close flushes telemetry and closes the log file.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.tel != nil {
		errs = append(errs, a.tel.Shutdown(ctx))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// newFactory returns an empty factory configured from a.cfg.
func (a *app) newFactory() *graph.Factory {
	return graph.NewFactory(nil,
		graph.WithMaxNodes(a.cfg.MaxNodes),
		graph.WithLogger(a.logger.Slog()),
	)
}

// loadGraph reads one graph file into a new factory.
func (a *app) loadGraph(ctx context.Context, path string) (*graph.Factory, error) {
	f := a.newFactory()
	if err := f.LoadFile(ctx, path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	a.logger.Info("graph loaded", "path", path, "nodes", f.NodeCount())
	return f, nil
}

// saveOptions returns the save options for a command, honouring an
// explicit --zip flag over the configured default.
func (a *app) saveOptions(cmd *cobra.Command, zip bool) []graph.SaveOption {
	if !cmd.Flags().Changed("zip") {
		zip = a.cfg.Save.Zip
	}
	return []graph.SaveOption{graph.WithZip(zip)}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
