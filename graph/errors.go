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
	"errors"
	"fmt"
)

// Errors.
var (
	// ErrConfiguration matches every *ConfigurationError.
	ErrConfiguration = errors.New("graph configuration error")
	// ErrInvalidResume matches every *InvalidResumeError.
	ErrInvalidResume = errors.New("invalid resume")
	// ErrSessionBusy is returned when a session already has an active run.
	ErrSessionBusy = errors.New("session has an active run")
	// ErrCheckpointNotFound is returned when a session has no checkpoint.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrSessionIDRequired is returned when no session ID is given.
	ErrSessionIDRequired = errors.New("session id is required")
	// ErrMaxStepsExceeded is returned when a run exceeds the step limit.
	ErrMaxStepsExceeded = errors.New("maximum execution steps exceeded")
)

// ConfigurationError reports a graph that was built wrong: an unknown node,
// a bad edge or a route outside the declared destinations.
type ConfigurationError struct {
	Reason string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidResumeError reports a resume against a session without a pending
// suspension. The checkpoint is left unchanged.
type InvalidResumeError struct {
	SessionID string
	Reason    string
}

// Error implements error.
func (e *InvalidResumeError) Error() string {
	return fmt.Sprintf("%s for session %s: %s", ErrInvalidResume, e.SessionID, e.Reason)
}

// Is reports whether target is ErrInvalidResume.
func (e *InvalidResumeError) Is(target error) bool {
	return target == ErrInvalidResume
}

// NodeError wraps a failure returned by a node or its collaborators.
type NodeError struct {
	NodeID string
	Err    error
}

// Error implements error.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.NodeID, e.Err)
}

// Unwrap returns the node failure.
func (e *NodeError) Unwrap() error {
	return e.Err
}
