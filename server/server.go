//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package server exposes a graph executor over HTTP so that a person, or
// any other system, can answer suspended sessions.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-hitl-go/graph"
	"trpc.group/trpc-go/trpc-hitl-go/log"
	"trpc.group/trpc-go/trpc-hitl-go/model"
)

// Run outcomes reported in Outcome.Status.
const (
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
)

const defaultHistoryLimit = 20

// Server serves one executor.
type Server struct {
	executor *graph.Executor
	router   *mux.Router
	handler  http.Handler
	gatherer prometheus.Gatherer
}

// Option configures the Server instance.
type Option func(*Server)

// WithGatherer sets where /metrics reads from. The default is the
// Prometheus default gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates the HTTP server for exec.
func New(exec *graph.Executor, opts ...Option) *Server {
	s := &Server{
		executor: exec,
		router:   mux.NewRouter(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	})
	s.registerRoutes()
	s.handler = c.Handler(s.router)
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/sessions/{id}/run", s.handleRun).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/resume", s.handleResume).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/continue", s.handleContinue).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/history", s.handleHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
}

// RunRequest is the body of POST /sessions/{id}/run.
type RunRequest struct {
	// Messages are appended to the session log.
	Messages []Message `json:"messages,omitempty"`
	// Input is shorthand for one user message.
	Input string `json:"input,omitempty"`
}

// ResumeRequest is the body of POST /sessions/{id}/resume.
type ResumeRequest struct {
	Resume any `json:"resume"`
}

// Interrupt is the public view of a pending suspension.
type Interrupt struct {
	NodeID  string `json:"node_id"`
	Payload any    `json:"payload,omitempty"`
	Step    int    `json:"step"`
}

// Outcome is the response of the run, resume and continue endpoints.
type Outcome struct {
	SessionID string     `json:"session_id"`
	Status    string     `json:"status"`
	Next      string     `json:"next"`
	Step      int        `json:"step"`
	Interrupt *Interrupt `json:"interrupt,omitempty"`
	Messages  []Message  `json:"messages"`
}

// Snapshot is the response of GET /sessions/{id}.
type Snapshot struct {
	SessionID    string     `json:"session_id"`
	CheckpointID string     `json:"checkpoint_id"`
	Source       string     `json:"source"`
	Next         string     `json:"next"`
	Step         int        `json:"step"`
	Interrupt    *Interrupt `json:"interrupt,omitempty"`
	Messages     []Message  `json:"messages"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	log.Infof("handleRun called: session=%s", sessionID)
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	messages := fromWire(req.Messages)
	if req.Input != "" {
		messages = append(messages, model.NewUserMessage(req.Input))
	}
	if len(messages) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("messages or input is required"))
		return
	}
	for _, m := range messages {
		if !m.Role.IsValid() {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid message role %q", m.Role))
			return
		}
	}
	result, err := s.executor.Invoke(r.Context(), sessionID, graph.State{graph.StateKeyMessages: messages})
	s.writeOutcome(w, r, sessionID, result, err)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	log.Infof("handleResume called: session=%s", sessionID)
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	result, err := s.executor.InvokeResume(r.Context(), sessionID, graph.NewResumeCommand(req.Resume))
	s.writeOutcome(w, r, sessionID, result, err)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	log.Infof("handleContinue called: session=%s", sessionID)
	result, err := s.executor.InvokeContinue(r.Context(), sessionID)
	s.writeOutcome(w, r, sessionID, result, err)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	snap, err := s.executor.GetState(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSnapshot(snap))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	snaps, err := s.executor.History(r.Context(), sessionID, limit)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if len(snaps) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%w: session %s", graph.ErrCheckpointNotFound, sessionID))
		return
	}
	out := make([]Snapshot, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toSnapshot(snap))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	log.Infof("handleDeleteSession called: session=%s", sessionID)
	if err := s.executor.DeleteSession(r.Context(), sessionID); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, sessionID string, result *graph.RunResult, err error) {
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	out := Outcome{
		SessionID: sessionID,
		Status:    StatusCompleted,
		Next:      graph.End,
		Messages:  toWire(result.State.Messages()),
	}
	if snap, err := s.executor.GetState(r.Context(), sessionID); err == nil {
		out.Next = snap.Next
		out.Step = snap.Step
	}
	if in := result.Interrupt; in != nil {
		out.Status = StatusInterrupted
		out.Interrupt = &Interrupt{NodeID: in.NodeID, Payload: in.Payload, Step: in.Step}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func toSnapshot(snap *graph.StateSnapshot) Snapshot {
	out := Snapshot{
		SessionID:    snap.SessionID,
		CheckpointID: snap.CheckpointID,
		Source:       string(snap.Source),
		Next:         snap.Next,
		Step:         snap.Step,
		Messages:     toWire(snap.State.Messages()),
	}
	if in := snap.Interrupt; in != nil {
		out.Interrupt = &Interrupt{NodeID: in.NodeID, Payload: in.Payload, Step: in.Step}
	}
	return out
}

// statusFor maps executor errors to HTTP status codes.
func statusFor(err error) int {
	var nodeErr *graph.NodeError
	switch {
	case errors.Is(err, graph.ErrSessionIDRequired):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrCheckpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrInvalidResume), errors.Is(err, graph.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, graph.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.As(err, &nodeErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
