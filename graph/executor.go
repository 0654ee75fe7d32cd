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
	"fmt"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint"
	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint/inmemory"
	"trpc.group/trpc-go/trpc-hitl-go/log"
	"trpc.group/trpc-go/trpc-hitl-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-hitl-go/telemetry/trace"
)

const (
	defaultChannelBufferSize = 256
	defaultMaxSteps          = 100
)

// Executor executes a graph for many sessions, persisting a checkpoint
// after every step.
type Executor struct {
	graph             *Graph
	saver             CheckpointSaver
	channelBufferSize int
	maxSteps          int
	metrics           *metric.Recorder

	mu     sync.Mutex
	active map[string]struct{}
}

// ExecutorOption is a function that configures an Executor.
type ExecutorOption func(*ExecutorOptions)

// ExecutorOptions contains configuration options for creating an Executor.
type ExecutorOptions struct {
	// CheckpointSaver stores the checkpoints (default: a new in-memory saver).
	CheckpointSaver CheckpointSaver
	// ChannelBufferSize is the buffer size for event channels (default: 256).
	ChannelBufferSize int
	// MaxSteps is the maximum number of nodes one run may invoke
	// (default: 100).
	MaxSteps int
	// Metrics records execution metrics. Nil records nothing.
	Metrics *metric.Recorder
}

// WithCheckpointSaver sets the checkpoint saver.
func WithCheckpointSaver(saver CheckpointSaver) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.CheckpointSaver = saver
	}
}

// WithChannelBufferSize sets the buffer size for event channels.
func WithChannelBufferSize(size int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.ChannelBufferSize = size
	}
}

// WithMaxSteps sets the maximum number of steps for graph execution.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.MaxSteps = maxSteps
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder *metric.Recorder) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.Metrics = recorder
	}
}

// NewExecutor creates a new graph executor.
func NewExecutor(g *Graph, opts ...ExecutorOption) (*Executor, error) {
	if g == nil {
		return nil, configErrorf("graph is nil")
	}
	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	options := ExecutorOptions{
		ChannelBufferSize: defaultChannelBufferSize,
		MaxSteps:          defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.CheckpointSaver == nil {
		options.CheckpointSaver = inmemory.NewSaver()
	}
	if options.ChannelBufferSize < 0 {
		options.ChannelBufferSize = 0
	}
	if options.MaxSteps <= 0 {
		options.MaxSteps = defaultMaxSteps
	}
	return &Executor{
		graph:             g,
		saver:             options.CheckpointSaver,
		channelBufferSize: options.ChannelBufferSize,
		maxSteps:          options.MaxSteps,
		metrics:           options.Metrics,
		active:            make(map[string]struct{}),
	}, nil
}

// Graph returns the executed graph.
func (e *Executor) Graph() *Graph {
	return e.graph
}

// CheckpointSaver returns the saver the executor persists to.
func (e *Executor) CheckpointSaver() CheckpointSaver {
	return e.saver
}

// run is the state of one traversal.
type run struct {
	sessionID string
	cp        *Checkpoint
	state     State
	nodeID    string
	steps     int
	events    chan *Event
}

// Execute starts a run with fresh input. The input is merged into the
// session's latest state, or into an empty state, and the run starts at the
// entry point. Fresh input on a suspended session discards the pending
// interrupt; use Resume to answer it.
//
// The returned channel is closed when the run halts.
func (e *Executor) Execute(ctx context.Context, sessionID string, input State) (<-chan *Event, error) {
	if err := e.acquire(sessionID); err != nil {
		return nil, err
	}
	r, err := e.prepareInput(ctx, sessionID, input)
	if err != nil {
		e.release(sessionID)
		return nil, err
	}
	return e.start(ctx, r), nil
}

func (e *Executor) prepareInput(ctx context.Context, sessionID string, input State) (*run, error) {
	latest, err := e.saver.Latest(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	base := State{}
	if latest != nil {
		if base, err = e.graph.schema.Decode(latest.State); err != nil {
			return nil, err
		}
		if latest.Interrupt.Pending() {
			log.Warnf("session %s: fresh input discards the pending interrupt at node %s",
				sessionID, latest.Interrupt.NodeID)
		}
	}
	state := e.graph.schema.ApplyUpdate(base, input)
	if err := e.graph.schema.Validate(state); err != nil {
		return nil, fmt.Errorf("invalid input state: %w", err)
	}
	encoded, err := e.graph.schema.Encode(state)
	if err != nil {
		return nil, err
	}
	var cp *Checkpoint
	if latest == nil {
		cp = checkpoint.New(sessionID, -1, checkpoint.SourceInput, encoded, e.graph.entryPoint)
	} else {
		cp = latest.Next(latest.Step, checkpoint.SourceInput, encoded, e.graph.entryPoint)
	}
	if err := e.saver.Put(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return &run{sessionID: sessionID, cp: cp, state: state}, nil
}

// Resume answers the pending interrupt of a session and re-invokes the
// suspended node. It fails with *InvalidResumeError, leaving the checkpoint
// untouched, when the session has no pending interrupt.
func (e *Executor) Resume(ctx context.Context, sessionID string, cmd *ResumeCommand) (<-chan *Event, error) {
	if err := e.acquire(sessionID); err != nil {
		return nil, err
	}
	r, err := e.prepareResume(ctx, sessionID, cmd)
	if err != nil {
		e.release(sessionID)
		return nil, err
	}
	return e.start(ctx, r), nil
}

func (e *Executor) prepareResume(ctx context.Context, sessionID string, cmd *ResumeCommand) (*run, error) {
	latest, err := e.saver.Latest(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if latest == nil {
		return nil, &InvalidResumeError{SessionID: sessionID, Reason: "session has no checkpoint"}
	}
	if !latest.Interrupt.Pending() {
		return nil, &InvalidResumeError{SessionID: sessionID, Reason: "session has no pending interrupt"}
	}
	state, err := e.graph.schema.Decode(latest.State)
	if err != nil {
		return nil, err
	}
	var value any
	if cmd != nil {
		value = cmd.Resume
	}
	interrupt := *latest.Interrupt
	interrupt.Resumed = true
	interrupt.ResumeValue = value
	cp := latest.Next(latest.Step, checkpoint.SourceResume, latest.State, latest.NextNode)
	cp.Interrupt = &interrupt
	if err := e.saver.Put(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return &run{sessionID: sessionID, cp: cp, state: state}, nil
}

// Continue restarts a session from its latest checkpoint without new input.
// It retries the node that failed last, replaying a resume value that was
// supplied but not yet consumed. A pending interrupt is reported again
// without invoking the node.
func (e *Executor) Continue(ctx context.Context, sessionID string) (<-chan *Event, error) {
	if err := e.acquire(sessionID); err != nil {
		return nil, err
	}
	r, err := e.prepareContinue(ctx, sessionID)
	if err != nil {
		e.release(sessionID)
		return nil, err
	}
	return e.start(ctx, r), nil
}

func (e *Executor) prepareContinue(ctx context.Context, sessionID string) (*run, error) {
	latest, err := e.saver.Latest(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: session %s", ErrCheckpointNotFound, sessionID)
	}
	state, err := e.graph.schema.Decode(latest.State)
	if err != nil {
		return nil, err
	}
	return &run{sessionID: sessionID, cp: latest, state: state}, nil
}

func (e *Executor) acquire(sessionID string) error {
	if sessionID == "" {
		return ErrSessionIDRequired
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[sessionID]; busy {
		return fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
	}
	e.active[sessionID] = struct{}{}
	return nil
}

func (e *Executor) release(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, sessionID)
}

func (e *Executor) start(ctx context.Context, r *run) <-chan *Event {
	r.events = make(chan *Event, e.channelBufferSize)
	go func() {
		defer close(r.events)
		defer e.release(r.sessionID)
		e.executeGraph(ctx, r)
	}()
	return r.events
}

// executeGraph drives the node, edge, checkpoint loop until the run halts.
func (e *Executor) executeGraph(ctx context.Context, r *run) {
	ctx, span := trace.Tracer.Start(ctx, "execute_graph")
	defer span.End()
	span.SetAttributes(
		trace.KeySessionID.String(r.sessionID),
		trace.KeyNodeID.String(r.cp.NextNode),
	)

	outcome, err := e.loop(ctx, r)
	span.SetAttributes(trace.KeyOutcome.String(outcome), trace.KeyStep.Int(r.cp.Step))
	e.metrics.Run(outcome)
	if err == nil {
		return
	}
	span.SetAttributes(trace.KeyError.String(err.Error()))
	log.Errorf("session %s: run failed at node %s: %v", r.sessionID, r.nodeID, err)
	ev := newEvent(EventError, r.sessionID, r.nodeID, r.cp.Step, r.state.Clone())
	ev.Err = err
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

func (e *Executor) loop(ctx context.Context, r *run) (string, error) {
	for {
		cp := r.cp
		if cp.Interrupt.Pending() {
			r.nodeID = cp.Interrupt.NodeID
			ev := newEvent(EventInterrupt, r.sessionID, r.nodeID, cp.Step, r.state.Clone())
			ev.Interrupt = cp.Interrupt
			return metric.OutcomeInterrupted, r.emit(ctx, ev)
		}
		if cp.NextNode == End {
			r.nodeID = ""
			ev := newEvent(EventDone, r.sessionID, "", cp.Step, r.state.Clone())
			return metric.OutcomeCompleted, r.emit(ctx, ev)
		}
		if err := ctx.Err(); err != nil {
			return metric.OutcomeError, err
		}
		r.nodeID = cp.NextNode
		if r.steps >= e.maxSteps {
			return metric.OutcomeError, fmt.Errorf("%w (%d)", ErrMaxStepsExceeded, e.maxSteps)
		}
		r.steps++
		if err := e.step(ctx, r); err != nil {
			return metric.OutcomeError, err
		}
	}
}

// step invokes the pending node once and persists what it produced.
func (e *Executor) step(ctx context.Context, r *run) error {
	cp, nodeID := r.cp, r.nodeID
	if cp.Source == checkpoint.SourceRoute && cp.NextNode == nodeID {
		return e.route(ctx, r, cp, nodeID, r.state, cp.State, cp.Step)
	}
	nodeCtx := ctx
	if in := cp.Interrupt; in != nil && in.Resumed && in.NodeID == nodeID {
		nodeCtx = withResume(ctx, in.ResumeValue, in.Progress)
	}

	result, err := e.executeNode(nodeCtx, r.sessionID, nodeID, cp.Step, r.state)
	if err != nil {
		return err
	}

	switch res := result.(type) {
	case Suspended:
		next := cp.Next(cp.Step, checkpoint.SourceInterrupt, cp.State, nodeID)
		next.Interrupt = &InterruptState{
			NodeID:    nodeID,
			Payload:   res.Payload,
			Progress:  res.Progress,
			Step:      cp.Step,
			Timestamp: next.Timestamp,
		}
		if err := e.saver.Put(ctx, next); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		r.cp = next
		e.metrics.Interrupt(nodeID)
		log.Infof("session %s: node %s suspended at step %d", r.sessionID, nodeID, cp.Step)
		return nil
	case Completed:
		state := e.graph.schema.ApplyUpdate(r.state, res.Update)
		encoded, err := e.graph.schema.Encode(state)
		if err != nil {
			return err
		}
		e.metrics.Step(nodeID)
		return e.route(ctx, r, cp, nodeID, state, encoded, cp.Step+1)
	default:
		return &NodeError{NodeID: nodeID, Err: fmt.Errorf("unsupported result type %T", result)}
	}
}

// route persists the state a completed node left at step and moves the run
// to the next node. When routing fails the state is still persisted, with
// the node held for routing, so the completed work survives the error.
func (e *Executor) route(
	ctx context.Context,
	r *run,
	cp *Checkpoint,
	nodeID string,
	state State,
	encoded []byte,
	step int,
) error {
	to, routeErr := e.graph.next(ctx, nodeID, state)
	source := checkpoint.SourceLoop
	if routeErr != nil {
		source, to = checkpoint.SourceRoute, nodeID
	}
	if routeErr == nil || cp.Source != checkpoint.SourceRoute {
		next := cp.Next(step, source, encoded, to)
		if err := e.saver.Put(ctx, next); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		r.cp = next
	}
	r.state = state
	if routeErr != nil {
		return routeErr
	}
	log.Debugf("session %s: node %s completed step %d, next %s", r.sessionID, nodeID, step, to)
	return r.emit(ctx, newEvent(EventNodeComplete, r.sessionID, nodeID, step, state.Clone()))
}

func (e *Executor) executeNode(
	ctx context.Context,
	sessionID string,
	nodeID string,
	step int,
	state State,
) (Result, error) {
	ctx, span := trace.Tracer.Start(ctx, fmt.Sprintf("execute_node %s", nodeID))
	defer span.End()
	span.SetAttributes(
		trace.KeySessionID.String(sessionID),
		trace.KeyNodeID.String(nodeID),
		trace.KeyStep.Int(step),
	)
	if node, ok := e.graph.Node(nodeID); ok && node.Description != "" {
		span.SetAttributes(trace.KeyNodeDescription.String(node.Description))
	}

	start := time.Now()
	result, err := e.graph.invoke(ctx, nodeID, state)
	e.metrics.NodeDuration(nodeID, time.Since(start))
	if err != nil {
		span.SetAttributes(trace.KeyError.String(err.Error()))
		return nil, err
	}
	return result, nil
}

func (r *run) emit(ctx context.Context, ev *Event) error {
	select {
	case r.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunResult is the outcome of a drained run.
type RunResult struct {
	// State is the state after the last event.
	State State
	// Interrupt is the pending interrupt when the run suspended.
	Interrupt *InterruptState
	// Steps counts the nodes that completed during the run.
	Steps int
	// Events holds every event in order.
	Events []*Event
}

// Interrupted reports whether the run ended on a suspension.
func (r *RunResult) Interrupted() bool {
	return r.Interrupt != nil
}

// Collect drains a run's events. The error is the one carried by an
// EventError. The result reflects the events seen so far in either case.
func Collect(events <-chan *Event) (*RunResult, error) {
	result := &RunResult{}
	var err error
	for ev := range events {
		result.Events = append(result.Events, ev)
		if ev.State != nil {
			result.State = ev.State
		}
		switch ev.Type {
		case EventNodeComplete:
			result.Steps++
		case EventInterrupt:
			result.Interrupt = ev.Interrupt
		case EventError:
			err = ev.Err
		}
	}
	return result, err
}

// Invoke runs Execute and waits for the run to halt.
func (e *Executor) Invoke(ctx context.Context, sessionID string, input State) (*RunResult, error) {
	events, err := e.Execute(ctx, sessionID, input)
	if err != nil {
		return nil, err
	}
	return Collect(events)
}

// InvokeResume runs Resume and waits for the run to halt.
func (e *Executor) InvokeResume(ctx context.Context, sessionID string, cmd *ResumeCommand) (*RunResult, error) {
	events, err := e.Resume(ctx, sessionID, cmd)
	if err != nil {
		return nil, err
	}
	return Collect(events)
}

// InvokeContinue runs Continue and waits for the run to halt.
func (e *Executor) InvokeContinue(ctx context.Context, sessionID string) (*RunResult, error) {
	events, err := e.Continue(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Collect(events)
}

// StateSnapshot is the decoded view of a checkpoint.
type StateSnapshot struct {
	SessionID    string
	CheckpointID string
	Step         int
	Source       checkpoint.Source
	State        State
	// Next is the node the session runs next, or End.
	Next string
	// Interrupt is set while a suspension waits for a resume.
	Interrupt *InterruptState
	Timestamp time.Time
}

// GetState returns the latest snapshot of a session.
func (e *Executor) GetState(ctx context.Context, sessionID string) (*StateSnapshot, error) {
	latest, err := e.saver.Latest(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: session %s", ErrCheckpointNotFound, sessionID)
	}
	return e.snapshot(latest)
}

// History returns up to limit snapshots of a session, newest first.
func (e *Executor) History(ctx context.Context, sessionID string, limit int) ([]*StateSnapshot, error) {
	cps, err := e.saver.List(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	snapshots := make([]*StateSnapshot, 0, len(cps))
	for _, cp := range cps {
		s, err := e.snapshot(cp)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

// DeleteSession removes every checkpoint of a session.
func (e *Executor) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.acquire(sessionID); err != nil {
		return err
	}
	defer e.release(sessionID)
	return e.saver.Delete(ctx, sessionID)
}

func (e *Executor) snapshot(cp *Checkpoint) (*StateSnapshot, error) {
	state, err := e.graph.schema.Decode(cp.State)
	if err != nil {
		return nil, err
	}
	s := &StateSnapshot{
		SessionID:    cp.SessionID,
		CheckpointID: cp.ID,
		Step:         cp.Step,
		Source:       cp.Source,
		State:        state,
		Next:         cp.NextNode,
		Timestamp:    cp.Timestamp,
	}
	if cp.Interrupt.Pending() {
		s.Interrupt = cp.Interrupt
	}
	return s, nil
}
