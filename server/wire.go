//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package server

import (
	"encoding/json"

	"trpc.group/trpc-go/trpc-hitl-go/model"
)

// Message is the HTTP form of a conversation message.
type Message struct {
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	ToolID    string     `json:"tool_id,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is the HTTP form of a tool call. Arguments are inline JSON. When
// the model produced text that is not valid JSON it is sent as a JSON string.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func toWire(msgs []model.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		wm := Message{Role: m.Role, Content: m.Content, ToolID: m.ToolID, ToolName: m.ToolName}
		for _, c := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, ToolCall{
				ID:        c.ID,
				Type:      c.Type,
				Name:      c.Function.Name,
				Arguments: wireArguments(c.Function.Arguments),
			})
		}
		out = append(out, wm)
	}
	return out
}

func wireArguments(args []byte) json.RawMessage {
	if len(args) == 0 {
		return nil
	}
	if json.Valid(args) {
		return json.RawMessage(args)
	}
	quoted, _ := json.Marshal(string(args))
	return quoted
}

func fromWire(msgs []Message) []model.Message {
	var out []model.Message
	for _, wm := range msgs {
		m := model.Message{Role: wm.Role, Content: wm.Content, ToolID: wm.ToolID, ToolName: wm.ToolName}
		for _, c := range wm.ToolCalls {
			call := model.NewToolCall(c.ID, c.Name, []byte(c.Arguments))
			if c.Type != "" {
				call.Type = c.Type
			}
			m.ToolCalls = append(m.ToolCalls, call)
		}
		out = append(out, m)
	}
	return out
}
