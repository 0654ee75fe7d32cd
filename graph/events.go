//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package graph

import "time"

// EventType identifies an execution event.
type EventType string

// Event types.
const (
	// EventNodeComplete is emitted after a node finished and its checkpoint
	// was saved.
	EventNodeComplete EventType = "node_complete"
	// EventInterrupt is emitted when a node suspended. It ends the run.
	EventInterrupt EventType = "interrupt"
	// EventDone is emitted when the run reaches End.
	EventDone EventType = "done"
	// EventError is emitted when a run fails. It ends the run.
	EventError EventType = "error"
)

// Event is one item of the sequence a run produces.
type Event struct {
	Type      EventType
	SessionID string
	// NodeID is the node the event is about. It is empty for EventDone.
	NodeID string
	// Step is the checkpoint step after the event.
	Step int
	// State is a snapshot of the state after the event.
	State State
	// Interrupt is set on EventInterrupt.
	Interrupt *InterruptState
	// Err is set on EventError.
	Err       error
	Timestamp time.Time
}

func newEvent(t EventType, sessionID, nodeID string, step int, state State) *Event {
	return &Event{
		Type:      t,
		SessionID: sessionID,
		NodeID:    nodeID,
		Step:      step,
		State:     state,
		Timestamp: time.Now().UTC(),
	}
}
