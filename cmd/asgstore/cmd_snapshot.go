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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/asgstore/services/asg/graph"
	"github.com/AleutianAI/asgstore/services/asg/storage/badger"
)

func newSnapshotCmd(a *app) *cobra.Command {
	var storePath string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Keep graph files by name in the local snapshot store",
		Long: `Snapshots are complete graph files stored in a BadgerDB database
(store.path in the configuration, or --store). Each snapshot records the
graph id, node count and a blake3 digest checked on every read.

Subcommands:
  put     - Store a graph file under a name
  get     - Write a snapshot back to a graph file
  list    - List stored snapshots
  delete  - Remove a snapshot`,
	}
	cmd.PersistentFlags().StringVar(&storePath, "store", "", "Snapshot database directory (overrides store.path)")

	withStore := func(run func(cmd *cobra.Command, args []string, s *badger.SnapshotStore) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Store.badgerConfig()
			if storePath != "" {
				cfg.Path = storePath
			}
			cfg.Logger = a.logger.Slog()
			db, err := badger.Open(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return run(cmd, args, badger.NewSnapshotStore(db, badger.WithLogger(a.logger.Slog())))
		}
	}

	var putZip bool
	put := &cobra.Command{
		Use:   "put NAME FILE",
		Short: "Store a graph file under NAME, replacing an existing snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: withStore(func(cmd *cobra.Command, args []string, s *badger.SnapshotStore) error {
			f, err := a.loadGraph(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			meta, err := s.Put(cmd.Context(), args[0], f, a.saveOptions(cmd, putZip)...)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), meta)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s: %d nodes, %d bytes\n", meta.Name, meta.Nodes, meta.Size)
			return nil
		}),
	}
	put.Flags().BoolVar(&putZip, "zip", true, "Compress the stored graph")

	var getZip bool
	get := &cobra.Command{
		Use:   "get NAME FILE",
		Short: "Load snapshot NAME and save it to FILE",
		Long: `Loads the snapshot, which checks the stored digest and the graph itself,
and saves it to FILE. The snapshot's own compression is kept unless --zip
is given.`,
		Args: cobra.ExactArgs(2),
		RunE: withStore(func(cmd *cobra.Command, args []string, s *badger.SnapshotStore) error {
			f := a.newFactory()
			meta, err := s.Get(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			zip := meta.Zip
			if cmd.Flags().Changed("zip") {
				zip = getZip
			}
			if err := f.SaveFile(cmd.Context(), args[1], graph.WithZip(zip)); err != nil {
				return fmt.Errorf("saving %s: %w", args[1], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d nodes)\n", args[1], f.NodeCount())
			return nil
		}),
	}
	get.Flags().BoolVar(&getZip, "zip", false, "Compress the output")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, args []string, s *badger.SnapshotStore) error {
			metas, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				if metas == nil {
					metas = []badger.SnapshotMeta{}
				}
				return printJSON(cmd.OutOrStdout(), metas)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tNODES\tBYTES\tZIP\tCREATED")
			for _, m := range metas {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%s\n", m.Name, m.Nodes, m.Size, m.Zip, m.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		}),
	}

	del := &cobra.Command{
		Use:     "delete NAME...",
		Aliases: []string{"rm"},
		Short:   "Remove snapshots",
		Args:    cobra.MinimumNArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, s *badger.SnapshotStore) error {
			for _, name := range args {
				if err := s.Delete(cmd.Context(), name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
			}
			return nil
		}),
	}

	cmd.AddCommand(put, get, list, del)
	return cmd
}
