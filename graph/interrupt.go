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

// ResumeCommand carries the data handed back to a suspended node.
type ResumeCommand struct {
	// Resume is returned to the suspended call as if it had returned
	// normally.
	Resume any
}

// NewResumeCommand creates a resume command with the given value.
func NewResumeCommand(value any) *ResumeCommand {
	return &ResumeCommand{Resume: value}
}

type resumeKey struct{}

type resumeInfo struct {
	value    any
	progress json.RawMessage
}

func withResume(ctx context.Context, value any, progress json.RawMessage) context.Context {
	return context.WithValue(ctx, resumeKey{}, resumeInfo{value: value, progress: progress})
}

// ResumeValue returns the value a node is resumed with. The boolean is false
// when the node runs for the first time.
func ResumeValue(ctx context.Context) (any, bool) {
	info, ok := ctx.Value(resumeKey{}).(resumeInfo)
	if !ok {
		return nil, false
	}
	return info.value, true
}

// ResumeProgress returns the progress the node saved when it suspended.
func ResumeProgress(ctx context.Context) json.RawMessage {
	info, _ := ctx.Value(resumeKey{}).(resumeInfo)
	return info.progress
}
