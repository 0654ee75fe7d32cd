//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package tool

import "context"

// Suspension is returned as a tool result when the tool cannot finish
// without data from outside the process. The tools node stops the batch,
// persists Payload and waits for a resume.
//
// When the call is replayed after a resume, ResumeValue(ctx) reports the
// supplied data and the tool is expected to return a regular result.
type Suspension struct {
	Payload any
}

type resumeValueKey struct{}

type resumeValue struct {
	v any
}

// WithResumeValue returns a context that carries the value a suspended call
// is resumed with.
func WithResumeValue(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, resumeValueKey{}, resumeValue{v: v})
}

// ResumeValue returns the value the current call is resumed with. The
// boolean is false on a first call.
func ResumeValue(ctx context.Context) (any, bool) {
	rv, ok := ctx.Value(resumeValueKey{}).(resumeValue)
	if !ok {
		return nil, false
	}
	return rv.v, true
}
