//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-process checkpoint saver.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint"
)

var _ checkpoint.Saver = (*Saver)(nil)

// Saver provides an in-memory implementation of checkpoint.Saver.
// Checkpoints are held encoded, so every read decodes a private copy.
// This is suitable for testing and single-process hosts.
type Saver struct {
	mu sync.RWMutex
	// sessionID -> encoded checkpoints, oldest first.
	storage map[string][][]byte
	// maxCheckpointsPerSession limits the history kept per session.
	maxCheckpointsPerSession int
}

// NewSaver creates a new in-memory checkpoint saver.
func NewSaver() *Saver {
	return &Saver{
		storage:                  make(map[string][][]byte),
		maxCheckpointsPerSession: checkpoint.DefaultMaxCheckpointsPerSession,
	}
}

// WithMaxCheckpointsPerSession sets the maximum number of checkpoints kept per session.
func (s *Saver) WithMaxCheckpointsPerSession(max int) *Saver {
	if max > 0 {
		s.maxCheckpointsPerSession = max
	}
	return s
}

// Put implements checkpoint.Saver.
func (s *Saver) Put(_ context.Context, c *checkpoint.Checkpoint) error {
	b, err := checkpoint.Encode(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.storage[c.SessionID], b)
	if over := len(history) - s.maxCheckpointsPerSession; over > 0 {
		history = append([][]byte(nil), history[over:]...)
	}
	s.storage[c.SessionID] = history
	return nil
}

// Latest implements checkpoint.Saver.
func (s *Saver) Latest(_ context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	history := s.storage[sessionID]
	var b []byte
	if len(history) > 0 {
		b = history[len(history)-1]
	}
	s.mu.RUnlock()
	if b == nil {
		return nil, nil
	}
	return checkpoint.Decode(b)
}

// List implements checkpoint.Saver.
func (s *Saver) List(_ context.Context, sessionID string, limit int) ([]*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	history := s.storage[sessionID]
	n := len(history)
	if limit > 0 && limit < n {
		n = limit
	}
	encoded := make([][]byte, 0, n)
	for i := len(history) - 1; i >= 0 && len(encoded) < n; i-- {
		encoded = append(encoded, history[i])
	}
	s.mu.RUnlock()

	out := make([]*checkpoint.Checkpoint, 0, len(encoded))
	for _, b := range encoded {
		c, err := checkpoint.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Delete implements checkpoint.Saver.
func (s *Saver) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.storage, sessionID)
	return nil
}

// Close implements checkpoint.Saver.
func (s *Saver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage = make(map[string][][]byte)
	return nil
}
