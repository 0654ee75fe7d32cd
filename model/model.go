//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package model provides the interface the agent node uses to talk to a
// language model, together with the message types stored in graph state.
package model

import "context"

// Model is the interface for all language models.
//
// Errors are reported on two layers:
//
//  1. Function-level errors (returned as `error`) mean the request could not
//     be sent at all, e.g. a nil request or a transport failure.
//  2. Response-level errors (Response.Error) mean the service answered with
//     an API error such as a rate limit or a filtered completion.
//
// Callers treat both layers as failures of the agent step.
type Model interface {
	// GenerateContent generates content from the given request. The returned
	// channel is closed after the final response.
	GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error)

	// Info returns basic information about the model.
	Info() Info
}

// Info contains basic information about a Model.
type Info struct {
	Name string
}
