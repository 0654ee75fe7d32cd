//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a checkpoint saver on top of database/sql with a
// SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint"
)

var _ checkpoint.Saver = (*Saver)(nil)

const (
	sqliteCreateCheckpoints = "CREATE TABLE IF NOT EXISTS checkpoints (" +
		"seq INTEGER PRIMARY KEY AUTOINCREMENT, " +
		"session_id TEXT NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"parent_checkpoint_id TEXT, " +
		"ts INTEGER NOT NULL, " +
		"checkpoint_json BLOB NOT NULL" +
		")"

	sqliteCreateIndex = "CREATE INDEX IF NOT EXISTS idx_checkpoints_session " +
		"ON checkpoints (session_id, seq)"

	sqliteInsertCheckpoint = "INSERT INTO checkpoints (" +
		"session_id, checkpoint_id, parent_checkpoint_id, ts, checkpoint_json) " +
		"VALUES (?, ?, ?, ?, ?)"

	sqliteTrimSession = "DELETE FROM checkpoints WHERE session_id = ? AND seq NOT IN (" +
		"SELECT seq FROM checkpoints WHERE session_id = ? ORDER BY seq DESC LIMIT ?)"

	sqliteSelectLatest = "SELECT checkpoint_json FROM checkpoints " +
		"WHERE session_id = ? ORDER BY seq DESC LIMIT 1"

	sqliteSelectHistory = "SELECT checkpoint_json FROM checkpoints " +
		"WHERE session_id = ? ORDER BY seq DESC LIMIT ?"

	sqliteDeleteSession = "DELETE FROM checkpoints WHERE session_id = ?"
)

// Saver is a SQLite-backed implementation of checkpoint.Saver.
// It expects an initialized *sql.DB and will create the required schema.
// Each checkpoint is stored as one JSON row; the newest row of a session
// is its latest slot.
type Saver struct {
	db *sql.DB
	// writeMu serializes writers so SQLite never reports a busy database
	// for writes issued by this process.
	writeMu                  sync.Mutex
	maxCheckpointsPerSession int
}

// NewSaver creates a new saver using the provided DB.
// The DB must use a SQLite driver. The constructor creates tables if needed.
func NewSaver(db *sql.DB) (*Saver, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateCheckpoints); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	if _, err := db.Exec(sqliteCreateIndex); err != nil {
		return nil, fmt.Errorf("create checkpoints index: %w", err)
	}
	return &Saver{
		db:                       db,
		maxCheckpointsPerSession: checkpoint.DefaultMaxCheckpointsPerSession,
	}, nil
}

// WithMaxCheckpointsPerSession sets the maximum number of checkpoints kept per session.
func (s *Saver) WithMaxCheckpointsPerSession(max int) *Saver {
	if max > 0 {
		s.maxCheckpointsPerSession = max
	}
	return s
}

// Put implements checkpoint.Saver. The insert and the history trim share
// one transaction.
func (s *Saver) Put(ctx context.Context, c *checkpoint.Checkpoint) error {
	b, err := checkpoint.Encode(c)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, sqliteInsertCheckpoint,
		c.SessionID, c.ID, c.ParentID, c.Timestamp.UnixNano(), b); err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqliteTrimSession,
		c.SessionID, c.SessionID, s.maxCheckpointsPerSession); err != nil {
		return fmt.Errorf("trim checkpoints: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Latest implements checkpoint.Saver.
func (s *Saver) Latest(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, sqliteSelectLatest, sessionID).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest checkpoint: %w", err)
	}
	return checkpoint.Decode(b)
}

// List implements checkpoint.Saver.
func (s *Saver) List(ctx context.Context, sessionID string, limit int) ([]*checkpoint.Checkpoint, error) {
	if limit <= 0 {
		// SQLite treats a negative LIMIT as no limit.
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, sqliteSelectHistory, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("select checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		c, err := checkpoint.Decode(b)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete implements checkpoint.Saver.
func (s *Saver) Delete(ctx context.Context, sessionID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, sqliteDeleteSession, sessionID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Saver) Close() error {
	return s.db.Close()
}
