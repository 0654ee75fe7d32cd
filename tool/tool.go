//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package tool provides the tool interfaces the agent graph calls into.
package tool

import (
	"context"
)

// Tool describes a capability the model can request.
type Tool interface {
	Declaration() *Declaration
}

// CallableTool is a Tool the tools node can run.
type CallableTool interface {
	Tool
	// Call runs the tool with the JSON arguments the model produced. A tool
	// that needs outside input returns a *Suspension as its result.
	Call(ctx context.Context, jsonArgs []byte) (any, error)
}

// Declaration is what the model is told about a tool.
type Declaration struct {
	// Name is unique within a tool set.
	Name        string  `json:"name"`
	Description string  `json:"description"`
	InputSchema *Schema `json:"inputSchema"`
	// OutputSchema is optional and informational.
	OutputSchema *Schema `json:"outputSchema,omitempty"`
}

// Schema represents the subset of JSON Schema used for tool arguments.
type Schema struct {
	Type                 string             `json:"type"`
	Description          string             `json:"description,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	AdditionalProperties any                `json:"additionalProperties,omitempty"`
}
