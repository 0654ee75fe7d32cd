//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // Import SQLite driver.
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint"
	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint/checkpointtest"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSaver_Contract(t *testing.T) {
	saver, err := NewSaver(setupTestDB(t))
	require.NoError(t, err)
	checkpointtest.RunSaverContract(t, saver)
}

func TestNewSaver_NilDB(t *testing.T) {
	_, err := NewSaver(nil)
	assert.Error(t, err)
}

func TestSaver_BoundedHistory(t *testing.T) {
	ctx := context.Background()
	saver, err := NewSaver(setupTestDB(t))
	require.NoError(t, err)
	saver.WithMaxCheckpointsPerSession(2)

	prev := checkpoint.New("s", -1, checkpoint.SourceInput, json.RawMessage(`{}`), "agent")
	require.NoError(t, saver.Put(ctx, prev))
	for i := 0; i < 4; i++ {
		next := prev.Next(i, checkpoint.SourceLoop, json.RawMessage(`{}`), "agent")
		require.NoError(t, saver.Put(ctx, next))
		prev = next
	}
	all, err := saver.List(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, prev.ID, all[0].ID)
}

func TestSaver_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	saver, err := NewSaver(db)
	require.NoError(t, err)
	c := checkpoint.New("s", 0, checkpoint.SourceInterrupt, json.RawMessage(`{"messages":[]}`), "tools")
	c.Interrupt = &checkpoint.InterruptState{NodeID: "tools", Payload: map[string]any{"query": "q"}}
	require.NoError(t, saver.Put(ctx, c))
	require.NoError(t, saver.Close())

	db, err = sql.Open("sqlite3", path)
	require.NoError(t, err)
	saver, err = NewSaver(db)
	require.NoError(t, err)
	defer saver.Close()
	got, err := saver.Latest(ctx, "s")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.ID, got.ID)
	assert.True(t, got.Interrupt.Pending())
}
