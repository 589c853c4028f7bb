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
	"io"
	"os"
	"runtime"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/asgstore/services/asg/export/sqlite"
	"github.com/AleutianAI/asgstore/services/asg/graph"
)

// =============================================================================
// INFO
// =============================================================================

// infoResult is the JSON form of "asgstore info".
type infoResult struct {
	Path       string            `json:"path"`
	Zip        bool              `json:"zip"`
	Properties map[string]string `json:"properties"`
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Print the header of a graph file without loading it",
		Long: `Reads the magic and the property header of a graph file. The body and
the checksum are not read, so this is fast on large files but does not
detect corruption. Use 'asgstore verify' for that.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInfo(cmd.OutOrStdout(), args[0])
		},
	}
}

func (a *app) runInfo(out io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	props, zip, err := graph.LoadHeader(file)
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", path, err)
	}
	res := infoResult{Path: path, Zip: zip, Properties: make(map[string]string, props.Len())}
	for _, k := range props.Keys() {
		v, _ := props.Get(k)
		res.Properties[k] = v
	}
	if a.jsonOutput {
		return printJSON(out, res)
	}

	fmt.Fprintf(out, "file:        %s\n", path)
	fmt.Fprintf(out, "compressed:  %t\n", zip)
	keys := props.Keys()
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%-12s %s\n", k+":", res.Properties[k])
	}
	return nil
}

// =============================================================================
// VERIFY
// =============================================================================

func newVerifyCmd(a *app) *cobra.Command {
	var reverse bool
	cmd := &cobra.Command{
		Use:   "verify FILE...",
		Short: "Load graph files and check their structural invariants",
		Long: `Loads every file, which checks the blake3 trailer and the record
layout, then checks ownership, edge targets and kinds. With --reverse the
reverse edge index is built and checked against the forward edges too.

The exit status is non-zero if any file fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := a.verifyFile(cmd.Context(), path, reverse); err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed verification", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reverse, "reverse", false, "Also build and check the reverse edge index")
	return cmd
}

func (a *app) verifyFile(ctx context.Context, path string, reverse bool) error {
	f, err := a.loadGraph(ctx, path)
	if err != nil {
		return err
	}
	if reverse {
		if err := f.EnableReverseEdges(nil); err != nil {
			return err
		}
	}
	return f.Verify()
}

// =============================================================================
// STATS
// =============================================================================

// fileStats is the per file result of "asgstore stats".
type fileStats struct {
	Path           string         `json:"path"`
	GraphID        string         `json:"graph_id"`
	Nodes          int            `json:"nodes"`
	Filtered       int            `json:"filtered"`
	Roots          int            `json:"roots"`
	OwnershipEdges int            `json:"ownership_edges"`
	ReferenceEdges int            `json:"reference_edges"`
	MaxDepth       int            `json:"max_depth"`
	ByKind         map[string]int `json:"by_kind,omitempty"`
}

func newStatsCmd(a *app) *cobra.Command {
	var (
		filterFile string
		byKind     bool
		jobs       int
	)
	cmd := &cobra.Command{
		Use:   "stats FILE...",
		Short: "Summarise one or more graph files",
		Long: `Loads each file into its own factory and prints node, root and edge
counts. Files are processed in parallel.

With --filter, a filter file written by 'asgstore filter' is applied first
and only the visible graph is counted. Filter files match one graph, so
--filter takes a single FILE.

With --prom-file the metrics collected while loading are written in the
node_exporter textfile format.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if filterFile != "" && len(args) != 1 {
				return fmt.Errorf("--filter needs exactly one graph file, got %d", len(args))
			}
			results, err := a.collectStats(cmd.Context(), args, filterFile, byKind, jobs)
			if err != nil {
				return err
			}
			if err := a.printStats(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if a.promFile != "" {
				if err := a.tel.WriteTextfile(a.promFile); err != nil {
					return err
				}
				a.logger.Info("metrics written", "path", a.promFile)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filterFile, "filter", "", "Apply a saved filter before counting")
	cmd.Flags().BoolVar(&byKind, "by-kind", false, "Include per kind node counts")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.GOMAXPROCS(0), "Files loaded in parallel")
	cmd.Flags().StringVar(&a.promFile, "prom-file", "", "Write prometheus metrics to this file")
	return cmd
}

// collectStats loads every path concurrently. Results keep argument order.
// The first failure cancels the remaining loads.
func (a *app) collectStats(ctx context.Context, paths []string, filterFile string, byKind bool, jobs int) ([]fileStats, error) {
	results := make([]fileStats, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, path := range paths {
		g.Go(func() error {
			f, err := a.loadGraph(gCtx, path)
			if err != nil {
				return err
			}
			if filterFile != "" {
				if err := applyFilterFile(f, filterFile); err != nil {
					return err
				}
			}
			s, err := f.Stats()
			if err != nil {
				return fmt.Errorf("stats for %s: %w", path, err)
			}
			res := fileStats{
				Path:           path,
				GraphID:        f.GraphID().String(),
				Nodes:          s.Nodes,
				Filtered:       s.Filtered,
				Roots:          s.Roots,
				OwnershipEdges: s.OwnershipEdges,
				ReferenceEdges: s.ReferenceEdges,
				MaxDepth:       s.MaxDepth,
			}
			if byKind {
				res.ByKind = make(map[string]int, len(s.ByKind))
				for k, n := range s.ByKind {
					res.ByKind[k.String()] = n
				}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *app) printStats(out io.Writer, results []fileStats) error {
	if a.jsonOutput {
		return printJSON(out, results)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tNODES\tFILTERED\tROOTS\tOWNERSHIP\tREFERENCE\tDEPTH")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			r.Path, r.Nodes, r.Filtered, r.Roots, r.OwnershipEdges, r.ReferenceEdges, r.MaxDepth)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, r := range results {
		if len(r.ByKind) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s\n", r.Path)
		kinds := make([]string, 0, len(r.ByKind))
		for k := range r.ByKind {
			kinds = append(kinds, k)
		}
		slices.SortFunc(kinds, func(x, y string) int {
			if c := r.ByKind[y] - r.ByKind[x]; c != 0 {
				return c
			}
			return strings.Compare(x, y)
		})
		for _, k := range kinds {
			fmt.Fprintf(out, "  %-28s %d\n", k, r.ByKind[k])
		}
	}
	return nil
}

// =============================================================================
// CONVERT
// =============================================================================

func newConvertCmd(a *app) *cobra.Command {
	var zip bool
	cmd := &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Rewrite a graph file, optionally changing compression",
		Long: `Loads IN and saves it to OUT. Unused strings are dropped from the string
table on the way. Without --zip the configured default (save.zip) is used.

Examples:
  asgstore convert big.zsi big.csi --zip=false
  asgstore convert old.csi new.zsi --zip`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.loadGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := f.SaveFile(cmd.Context(), args[1], a.saveOptions(cmd, zip)...); err != nil {
				return fmt.Errorf("saving %s: %w", args[1], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d nodes)\n", args[1], f.NodeCount())
			return nil
		},
	}
	cmd.Flags().BoolVar(&zip, "zip", true, "Compress the output")
	return cmd
}

// =============================================================================
// FILTER
// =============================================================================

func newFilterCmd(a *app) *cobra.Command {
	var (
		patterns []string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "filter FILE --path PATTERN...",
		Short: "Write a filter hiding the nodes of matching source paths",
		Long: `Loads FILE and filters every positioned node whose source path matches
one of the doublestar patterns, together with everything it owns. The
resulting filter is written to --out (default FILE.filter) and can be
applied with 'asgstore stats --filter' or 'asgstore dump --filter'.

Example:
  asgstore filter app.zsi --path '**/node_modules/**' --path '**/*.test.js'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(patterns) == 0 {
				return fmt.Errorf("at least one --path pattern is required")
			}
			f, err := a.loadGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			matched, err := f.FilterByPath(patterns...)
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".filter"
			}
			if err := writeFilterFile(f, out); err != nil {
				return err
			}
			hidden := f.FilteredCount()
			a.logger.Info("filter written", "path", out, "matched", matched, "hidden", hidden)
			fmt.Fprintf(cmd.OutOrStdout(), "%d matching nodes, %d hidden, %d visible\n",
				matched, hidden, f.NodeCount()-hidden)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&patterns, "path", nil, "Doublestar pattern of source paths to hide")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Filter file to write")
	return cmd
}

func writeFilterFile(f *graph.Factory, path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return f.SaveFilter(file)
}

func applyFilterFile(f *graph.Factory, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := f.LoadFilter(file); err != nil {
		return fmt.Errorf("applying filter %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// DUMP
// =============================================================================

func newDumpCmd(a *app) *cobra.Command {
	var filterFile string
	cmd := &cobra.Command{
		Use:   "dump FILE DB",
		Short: "Export the visible graph into a SQLite database",
		Long: `Writes nodes, attributes and edges of FILE into the SQLite database DB,
replacing it if present. The edges table is indexed by target, so reverse
lookups are plain SQL:

  SELECT source, edge FROM edges WHERE target = 42;`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.loadGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if filterFile != "" {
				if err := applyFilterFile(f, filterFile); err != nil {
					return err
				}
			}
			sum, err := sqlite.Dump(cmd.Context(), f, args[1], sqlite.WithLogger(a.logger.Slog()))
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), sum)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d nodes, %d attributes, %d edges\n",
				args[1], sum.Nodes, sum.Attrs, sum.Edges)
			return nil
		},
	}
	cmd.Flags().StringVar(&filterFile, "filter", "", "Apply a saved filter before dumping")
	return cmd
}
