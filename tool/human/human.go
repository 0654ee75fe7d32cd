//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package human provides the tool through which the model asks a person for
// help. Calling it suspends the graph until a resume supplies the answer.
package human

import (
	"context"
	"encoding/json"
	"fmt"

	"trpc.group/trpc-go/trpc-hitl-go/tool"
	"trpc.group/trpc-go/trpc-hitl-go/tool/function"
)

const (
	// ToolName is the name the model uses to call the tool.
	ToolName = "human_assistance"
	// QueryKey is the payload key holding the model's question.
	QueryKey = "query"
	// DataKey is the resume key holding the person's answer.
	DataKey = "data"
)

type request struct {
	Query string `json:"query" jsonschema:"description=The question to put to the human"`
}

// NewTool creates the human assistance tool.
func NewTool() tool.CallableTool {
	return function.NewFunctionTool(
		assist,
		function.WithName(ToolName),
		function.WithDescription("Request assistance from a human. "+
			"Use it when expert guidance or a decision from a person is needed; "+
			"query is the question to ask."),
	)
}

func assist(ctx context.Context, req request) (any, error) {
	v, resumed := tool.ResumeValue(ctx)
	if !resumed {
		return &tool.Suspension{Payload: map[string]any{QueryKey: req.Query}}, nil
	}
	return Answer(v), nil
}

// Answer extracts the text of a resume value. A map carrying DataKey yields
// that entry and any other value is rendered as a string.
func Answer(v any) string {
	if m, ok := v.(map[string]any); ok {
		if data, ok := m[DataKey]; ok {
			return stringify(data)
		}
	}
	return stringify(v)
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
