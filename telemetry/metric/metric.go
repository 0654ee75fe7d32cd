//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package metric records graph execution metrics with Prometheus.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes.
const (
	OutcomeCompleted   = "completed"
	OutcomeInterrupted = "interrupted"
	OutcomeError       = "error"
)

// Recorder holds the graph collectors. A nil *Recorder records nothing.
type Recorder struct {
	steps      *prometheus.CounterVec
	interrupts *prometheus.CounterVec
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hitl_graph_steps_total",
				Help: "Total number of completed node steps",
			},
			[]string{"node"},
		),
		interrupts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hitl_graph_interrupts_total",
				Help: "Total number of node suspensions",
			},
			[]string{"node"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hitl_graph_runs_total",
				Help: "Total number of graph runs by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hitl_graph_node_duration_seconds",
				Help:    "Duration of node invocations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
	}
	for _, c := range []prometheus.Collector{r.steps, r.interrupts, r.runs, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Step records a completed node.
func (r *Recorder) Step(node string) {
	if r == nil {
		return
	}
	r.steps.WithLabelValues(node).Inc()
}

// Interrupt records a suspended node.
func (r *Recorder) Interrupt(node string) {
	if r == nil {
		return
	}
	r.interrupts.WithLabelValues(node).Inc()
}

// Run records how a run halted.
func (r *Recorder) Run(outcome string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
}

// NodeDuration observes how long one node invocation took.
func (r *Recorder) NodeDuration(node string, d time.Duration) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(node).Observe(d.Seconds())
}
