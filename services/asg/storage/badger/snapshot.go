// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/asgstore/services/asg/binio"
	"github.com/AleutianAI/asgstore/services/asg/graph"
)

var (
	// ErrSnapshotNotFound is returned when no snapshot has the given name.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotCorrupt is returned when stored graph bytes do not match
	// the digest recorded at Put time.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")

	// ErrInvalidSnapshotName is returned for empty names and names
	// containing a NUL byte.
	ErrInvalidSnapshotName = errors.New("invalid snapshot name")
)

const (
	metaPrefix = "meta/"
	dataPrefix = "graph/"
)

// SnapshotMeta describes a stored graph.
type SnapshotMeta struct {
	Name      string    `json:"name"`
	GraphID   string    `json:"graph_id"`
	Nodes     int       `json:"nodes"`
	Zip       bool      `json:"zip"`
	Size      int64     `json:"size"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotStore saves and restores graphs by name.
//
// Thread Safety: Safe for concurrent use. The factories passed in are not;
// callers must not use a factory concurrently with Put or Get on it.
type SnapshotStore struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

// StoreOption configures a SnapshotStore.
type StoreOption func(*SnapshotStore)

// WithLogger sets the logger for store operations.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *SnapshotStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSnapshotStore returns a store backed by db.
func NewSnapshotStore(db *DB, opts ...StoreOption) *SnapshotStore {
	s := &SnapshotStore{
		db:     db,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func checkName(name string) error {
	if name == "" || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidSnapshotName, name)
	}
	return nil
}

func metaKey(name string) []byte { return []byte(metaPrefix + name) }
func dataKey(name string) []byte { return []byte(dataPrefix + name) }

// Put saves f under name, replacing any snapshot with that name.
//
// Description:
//
//	The graph is serialised with f.Save and the given options, then the
//	file bytes and a metadata record are written in one transaction.
//	The recorded digest is the blake3 digest of the whole file.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	name - Snapshot name. Must be non-empty.
//	f - The graph to save.
//	opts - Passed to f.Save.
//
// Outputs:
//
//	SnapshotMeta - The stored metadata.
//	error - Non-nil if saving or the transaction fails.
func (s *SnapshotStore) Put(ctx context.Context, name string, f *graph.Factory, opts ...graph.SaveOption) (SnapshotMeta, error) {
	if err := checkName(name); err != nil {
		return SnapshotMeta{}, err
	}
	var buf bytes.Buffer
	if err := f.Save(ctx, &buf, opts...); err != nil {
		return SnapshotMeta{}, fmt.Errorf("saving graph %q: %w", name, err)
	}
	data := buf.Bytes()

	_, zip, err := graph.LoadHeader(bytes.NewReader(data))
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("reading back header of %q: %w", name, err)
	}
	digest := binio.Digest(data)
	meta := SnapshotMeta{
		Name:      name,
		GraphID:   f.GraphID().String(),
		Nodes:     f.NodeCount(),
		Zip:       zip,
		Size:      int64(len(data)),
		Digest:    hex.EncodeToString(digest[:]),
		CreatedAt: s.now().UTC(),
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("encoding snapshot meta: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(dataKey(name), data); err != nil {
			return err
		}
		return txn.Set(metaKey(name), encoded)
	})
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("storing snapshot %q: %w", name, err)
	}
	s.logger.Info("snapshot stored",
		slog.String("name", name),
		slog.Int("nodes", meta.Nodes),
		slog.Int64("bytes", meta.Size),
	)
	return meta, nil
}

// Raw returns the stored graph file of a snapshot after checking its
// digest.
func (s *SnapshotStore) Raw(ctx context.Context, name string) ([]byte, SnapshotMeta, error) {
	if err := checkName(name); err != nil {
		return nil, SnapshotMeta{}, err
	}
	var meta SnapshotMeta
	var data []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		if meta, err = readMeta(txn, name); err != nil {
			return err
		}
		item, err := txn.Get(dataKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %q has metadata but no graph", ErrSnapshotCorrupt, name)
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, SnapshotMeta{}, err
	}

	digest := binio.Digest(data)
	if got := hex.EncodeToString(digest[:]); got != meta.Digest {
		return nil, SnapshotMeta{}, fmt.Errorf("%w: %q digest %s, recorded %s", ErrSnapshotCorrupt, name, got, meta.Digest)
	}
	return data, meta, nil
}

// Get loads the snapshot name into f, replacing its content. headers are
// passed to f.Load.
func (s *SnapshotStore) Get(ctx context.Context, name string, f *graph.Factory, headers ...graph.Header) (SnapshotMeta, error) {
	data, meta, err := s.Raw(ctx, name)
	if err != nil {
		return SnapshotMeta{}, err
	}
	if err := f.Load(ctx, bytes.NewReader(data), headers...); err != nil {
		return SnapshotMeta{}, fmt.Errorf("loading snapshot %q: %w", name, err)
	}
	s.logger.Debug("snapshot loaded", slog.String("name", name), slog.Int("nodes", f.NodeCount()))
	return meta, nil
}

// Stat returns the metadata of a snapshot.
func (s *SnapshotStore) Stat(ctx context.Context, name string) (SnapshotMeta, error) {
	if err := checkName(name); err != nil {
		return SnapshotMeta{}, err
	}
	var meta SnapshotMeta
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		meta, err = readMeta(txn, name)
		return err
	})
	return meta, err
}

// List returns the metadata of every snapshot, ordered by name.
func (s *SnapshotStore) List(ctx context.Context) ([]SnapshotMeta, error) {
	var out []SnapshotMeta
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var meta SnapshotMeta
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a snapshot.
func (s *SnapshotStore) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if _, err := readMeta(txn, name); err != nil {
			return err
		}
		if err := txn.Delete(metaKey(name)); err != nil {
			return err
		}
		return txn.Delete(dataKey(name))
	})
	if err != nil {
		return err
	}
	s.logger.Info("snapshot deleted", slog.String("name", name))
	return nil
}

func readMeta(txn *badger.Txn, name string) (SnapshotMeta, error) {
	var meta SnapshotMeta
	item, err := txn.Get(metaKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return meta, fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
	}
	if err != nil {
		return meta, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	})
	if err != nil {
		return meta, fmt.Errorf("decoding meta of %q: %w", name, err)
	}
	return meta, nil
}
