//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"encoding/json"
)

// NodeFunc is a function that can be executed by a node. It receives a copy
// of the current state and returns either a partial update or a suspension.
type NodeFunc func(ctx context.Context, state State) (Result, error)

// Result is what a node returns. It is either Completed or Suspended.
type Result interface {
	isResult()
}

// Completed carries the partial state update of a node that finished.
type Completed struct {
	Update State
}

// Suspended asks the executor to pause at the node until it is resumed.
// The node stays pending and is invoked again on resume.
type Suspended struct {
	// Payload is shown to whoever supplies the resume data.
	Payload any
	// Progress is handed back to the node through ResumeProgress.
	Progress json.RawMessage
}

func (Completed) isResult() {}

func (Suspended) isResult() {}

// Complete is shorthand for a Completed result.
func Complete(update State) Result {
	return Completed{Update: update}
}

// Suspend is shorthand for a Suspended result without progress.
func Suspend(payload any) Result {
	return Suspended{Payload: payload}
}
