//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"fmt"
	"time"
)

const (
	// ErrorTypeAPIError marks a failure reported by the provider.
	ErrorTypeAPIError = "api_error"
	// ObjectTypeChatCompletion is the Object of a complete chat response.
	ObjectTypeChatCompletion = "chat.completion"
)

// Choice is one candidate reply. The graph only reads the first.
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message,omitempty"`
	// FinishReason is the provider's stop reason, such as "stop" or "tool_calls".
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage counts the tokens of one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is one item on the GenerateContent channel.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
	// Error is set instead of Choices when the provider rejected the call.
	Error     *ResponseError `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	// Done marks the final response of a GenerateContent call.
	Done bool `json:"done"`
}

// ResponseError is a failure reported inside a Response.
type ResponseError struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param,omitempty"`
	Code    *string `json:"code,omitempty"`
}

// Error implements error so a response error can be returned as-is.
func (e *ResponseError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("%s (%s): %s", e.Type, *e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// IsToolCallResponse reports whether the first choice requests tool calls.
func (rsp *Response) IsToolCallResponse() bool {
	return rsp != nil && len(rsp.Choices) > 0 && len(rsp.Choices[0].Message.ToolCalls) > 0
}
