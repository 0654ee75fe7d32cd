//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package checkpoint defines the persisted form of a graph session and the
// Saver interface every store implements.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version is the current checkpoint format version.
const Version = 1

// DefaultMaxCheckpointsPerSession bounds the history a saver keeps.
const DefaultMaxCheckpointsPerSession = 100

// Source records what produced a checkpoint.
type Source string

// Checkpoint sources.
const (
	SourceInput     Source = "input"
	SourceLoop      Source = "loop"
	SourceInterrupt Source = "interrupt"
	SourceResume    Source = "resume"
	// SourceRoute holds the work of a completed node whose route failed.
	// NextNode is that node, and it is routed again instead of re-invoked.
	SourceRoute Source = "route"
)

// ErrInvalidCheckpoint is returned when a stored checkpoint cannot be used.
var ErrInvalidCheckpoint = errors.New("invalid checkpoint")

// InterruptState describes a node suspended waiting for outside data.
type InterruptState struct {
	// NodeID is the node to re-invoke on resume.
	NodeID string `json:"node_id"`
	// Payload is the opaque value shown to the human.
	Payload any `json:"payload,omitempty"`
	// Progress is node-private data saved with the suspension.
	Progress json.RawMessage `json:"progress,omitempty"`
	// Step is the checkpoint step the suspension happened after.
	Step int `json:"step"`
	// Timestamp is when the node suspended.
	Timestamp time.Time `json:"timestamp"`
	// Resumed is set once a resume value has been supplied.
	Resumed bool `json:"resumed"`
	// ResumeValue is the supplied value, kept so a failed resumed node can
	// be retried.
	ResumeValue any `json:"resume_value,omitempty"`
}

// Pending reports whether the interrupt still waits for a resume.
func (i *InterruptState) Pending() bool {
	return i != nil && !i.Resumed
}

// Checkpoint is the latest persisted position of a session.
type Checkpoint struct {
	Version   int       `json:"v"`
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"ts"`
	// Step counts completed nodes. It is -1 before the first node ran.
	Step   int    `json:"step"`
	Source Source `json:"source"`
	// State is the canonical JSON encoding of the graph state.
	State json.RawMessage `json:"state"`
	// NextNode is the node to run next, or the end marker.
	NextNode  string          `json:"next_node"`
	Interrupt *InterruptState `json:"interrupt,omitempty"`
}

// New creates a checkpoint for the session.
func New(sessionID string, step int, source Source, state json.RawMessage, next string) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Step:      step,
		Source:    source,
		State:     state,
		NextNode:  next,
	}
}

// Next creates the successor of c. The interrupt is cleared.
func (c *Checkpoint) Next(step int, source Source, state json.RawMessage, next string) *Checkpoint {
	n := New(c.SessionID, step, source, state, next)
	n.ParentID = c.ID
	return n
}

// Encode serializes the checkpoint.
func Encode(c *Checkpoint) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil checkpoint", ErrInvalidCheckpoint)
	}
	if c.SessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrInvalidCheckpoint)
	}
	return json.Marshal(c)
}

// Decode parses a checkpoint and checks its version.
func Decode(b []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	if c.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidCheckpoint, c.Version)
	}
	return &c, nil
}

// Saver persists checkpoints. Put overwrites the session's latest slot
// atomically. Implementations must be safe for concurrent use.
type Saver interface {
	// Put stores c as the latest checkpoint of c.SessionID.
	Put(ctx context.Context, c *Checkpoint) error
	// Latest returns the latest checkpoint, or nil when the session has none.
	Latest(ctx context.Context, sessionID string) (*Checkpoint, error)
	// List returns up to limit checkpoints, newest first. A limit <= 0
	// returns everything retained.
	List(ctx context.Context, sessionID string, limit int) ([]*Checkpoint, error)
	// Delete removes every checkpoint of the session.
	Delete(ctx context.Context, sessionID string) error
	// Close releases the store's resources.
	Close() error
}
