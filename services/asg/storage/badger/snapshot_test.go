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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/asgstore/services/asg/graph"
	"github.com/AleutianAI/asgstore/services/asg/schema"
)

func openTestStore(t *testing.T) (*DB, *SnapshotStore) {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := NewSnapshotStore(db)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return db, s
}

// smallGraph builds a program with one declaration of x.
func smallGraph(t *testing.T) *graph.Factory {
	t.Helper()
	f := graph.NewFactory(nil)
	p, err := f.CreateProgram()
	require.NoError(t, err)
	require.NoError(t, p.SetString(schema.AttrNamedName, "main.js"))
	decl, err := f.CreateVariableDeclaration(1)
	require.NoError(t, err)
	declarator, err := f.CreateVariableDeclarator()
	require.NoError(t, err)
	x, err := f.CreateIdentifier("x")
	require.NoError(t, err)
	require.NoError(t, declarator.SetIdentifier(x.ID()))
	require.NoError(t, decl.AddDeclaration(declarator.ID()))
	require.NoError(t, p.AddBody(decl.ID()))
	return f
}

func TestOpen(t *testing.T) {
	t.Run("persistent store needs a path", func(t *testing.T) {
		_, err := Open(Config{})
		assert.Error(t, err)
	})

	t.Run("bad gc ratio", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Path = t.TempDir()
		cfg.GCDiscardRatio = 1.5
		_, err := Open(cfg)
		assert.Error(t, err)
	})

	t.Run("on disk with gc", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Path = t.TempDir()
		cfg.SyncWrites = false
		cfg.GCInterval = time.Hour
		db, err := Open(cfg)
		require.NoError(t, err)
		assert.Equal(t, cfg.Path, db.Path())
		assert.False(t, db.InMemory())
		assert.Equal(t, 0, db.gc.collect())
		require.NoError(t, db.Sync())
		require.NoError(t, db.Close())
	})
}

func TestDB_Txn(t *testing.T) {
	db, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}))

	boom := errors.New("boom")
	err := db.WithTxn(ctx, func(txn *badger.Txn) error {
		require.NoError(t, txn.Set([]byte("k"), []byte("changed")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("k"))
		require.NoError(t, err)
		val, err := item.ValueCopy(nil)
		require.NoError(t, err)
		assert.Equal(t, "v", string(val), "failed transaction is discarded")
		return nil
	}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, db.WithReadTxn(cancelled, func(*badger.Txn) error { return nil }), context.Canceled)
}

func TestSnapshotStore_PutGet(t *testing.T) {
	_, s := openTestStore(t)
	ctx := context.Background()
	src := smallGraph(t)

	meta, err := s.Put(ctx, "main", src, graph.WithZip(true))
	require.NoError(t, err)
	assert.Equal(t, "main", meta.Name)
	assert.Equal(t, src.GraphID().String(), meta.GraphID)
	assert.Equal(t, 4, meta.Nodes)
	assert.True(t, meta.Zip)
	assert.Len(t, meta.Digest, 64)
	assert.Positive(t, meta.Size)

	dst := graph.NewFactory(nil)
	got, err := s.Get(ctx, "main", dst)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
	assert.Equal(t, src.NodeCount(), dst.NodeCount())
	assert.Equal(t, src.GraphID(), dst.GraphID())
	for n := range src.Nodes() {
		m, err := dst.Node(n.ID())
		require.NoError(t, err)
		assert.Equal(t, n.Hash(), m.Hash())
	}

	stat, err := s.Stat(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, meta, stat)
}

func TestSnapshotStore_ListDelete(t *testing.T) {
	_, s := openTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"b", "a", "c/nested"} {
		_, err := s.Put(ctx, name, smallGraph(t))
		require.NoError(t, err)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	var names []string
	for _, m := range list {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"a", "b", "c/nested"}, names)

	require.NoError(t, s.Delete(ctx, "b"))
	assert.ErrorIs(t, s.Delete(ctx, "b"), ErrSnapshotNotFound)
	_, err = s.Get(ctx, "b", graph.NewFactory(nil))
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSnapshotStore_Errors(t *testing.T) {
	db, s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "", smallGraph(t))
	assert.ErrorIs(t, err, ErrInvalidSnapshotName)
	_, err = s.Stat(ctx, "a\x00b")
	assert.ErrorIs(t, err, ErrInvalidSnapshotName)

	_, err = s.Put(ctx, "g", smallGraph(t))
	require.NoError(t, err)

	t.Run("tampered bytes", func(t *testing.T) {
		raw, _, err := s.Raw(ctx, "g")
		require.NoError(t, err)
		raw[len(raw)/2] ^= 0x01
		require.NoError(t, db.WithTxn(ctx, func(txn *badger.Txn) error {
			return txn.Set(dataKey("g"), raw)
		}))

		f := graph.NewFactory(nil)
		_, err = s.Get(ctx, "g", f)
		assert.ErrorIs(t, err, ErrSnapshotCorrupt)
		assert.True(t, f.IsEmpty())
	})

	t.Run("missing graph bytes", func(t *testing.T) {
		require.NoError(t, db.WithTxn(ctx, func(txn *badger.Txn) error {
			return txn.Delete(dataKey("g"))
		}))
		_, _, err := s.Raw(ctx, "g")
		assert.ErrorIs(t, err, ErrSnapshotCorrupt)
	})
}
