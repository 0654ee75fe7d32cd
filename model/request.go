//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package model

import "trpc.group/trpc-go/trpc-hitl-go/tool"

// GenerationConfig holds optional sampling parameters. Nil fields keep the
// provider default.
type GenerationConfig struct {
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Request is one chat completion call: the conversation so far and the
// tools the model may call in reply.
type Request struct {
	Messages []Message `json:"messages"`
	GenerationConfig `json:",inline"`
	// Tools are declared to the provider by the adapter.
	Tools map[string]tool.Tool `json:"-"`
}
