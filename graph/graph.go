//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package graph runs named nodes joined by static and conditional edges,
// checkpointing state after every step so that a suspended node can be
// resumed later with data supplied from outside.
package graph

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var errNilResult = errors.New("node returned a nil result")

// Special node identifiers for graph routing.
const (
	// Start represents the virtual start node for routing.
	Start = "__start__"
	// End represents the virtual end node for routing.
	End = "__end__"
)

// ConditionalFunc is a function that picks a path map key based on state.
type ConditionalFunc func(ctx context.Context, state State) (string, error)

// Node represents a node in the graph.
type Node struct {
	ID          string
	Name        string
	Description string
	Function    NodeFunc
}

// Edge represents an unconditional edge in the graph.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge represents a conditional edge with routing logic.
type ConditionalEdge struct {
	From      string
	Condition ConditionalFunc
	// PathMap maps condition results to target nodes. Its keys are the only
	// results the condition may return.
	PathMap map[string]string
}

// Destinations returns the sorted target nodes of the edge.
func (c *ConditionalEdge) Destinations() []string {
	seen := make(map[string]bool, len(c.PathMap))
	var out []string
	for _, to := range c.PathMap {
		if !seen[to] {
			seen[to] = true
			out = append(out, to)
		}
	}
	sort.Strings(out)
	return out
}

// Graph is the compiled, immutable runtime structure created by
// StateGraph.Compile and executed by an Executor.
type Graph struct {
	schema           *StateSchema
	nodes            map[string]*Node
	edges            map[string]*Edge
	conditionalEdges map[string]*ConditionalEdge
	entryPoint       string
}

func newGraph(schema *StateSchema) *Graph {
	if schema == nil {
		schema = NewStateSchema()
	}
	return &Graph{
		schema:           schema,
		nodes:            make(map[string]*Node),
		edges:            make(map[string]*Edge),
		conditionalEdges: make(map[string]*ConditionalEdge),
	}
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// Nodes returns the node IDs in sorted order.
func (g *Graph) Nodes() []string {
	return sortedKeys(g.nodes)
}

// Edge returns the unconditional edge leaving a node.
func (g *Graph) Edge(nodeID string) (*Edge, bool) {
	edge, exists := g.edges[nodeID]
	return edge, exists
}

// ConditionalEdge returns the conditional edge from a node.
func (g *Graph) ConditionalEdge(nodeID string) (*ConditionalEdge, bool) {
	edge, exists := g.conditionalEdges[nodeID]
	return edge, exists
}

// EntryPoint returns the entry point node ID.
func (g *Graph) EntryPoint() string {
	return g.entryPoint
}

// Schema returns the state schema.
func (g *Graph) Schema() *StateSchema {
	return g.schema
}

// invoke runs the node registered under id with a copy of state.
func (g *Graph) invoke(ctx context.Context, id string, state State) (Result, error) {
	node, exists := g.nodes[id]
	if !exists || node.Function == nil {
		return nil, configErrorf("node %s is not registered", id)
	}
	result, err := node.Function(ctx, state.Clone())
	if err != nil {
		return nil, &NodeError{NodeID: id, Err: err}
	}
	if result == nil {
		return nil, &NodeError{NodeID: id, Err: errNilResult}
	}
	return result, nil
}

// next selects the node that follows from. A conditional edge wins over an
// unconditional one. A node without outgoing edges leads to End.
func (g *Graph) next(ctx context.Context, from string, state State) (string, error) {
	if condEdge, exists := g.conditionalEdges[from]; exists {
		key, err := condEdge.Condition(ctx, state)
		if err != nil {
			return "", &NodeError{NodeID: from, Err: err}
		}
		to, exists := condEdge.PathMap[key]
		if !exists {
			return "", configErrorf("condition of node %s returned %q outside its declared destinations %v",
				from, key, condEdge.pathKeys())
		}
		return to, nil
	}
	if edge, exists := g.edges[from]; exists {
		return edge.To, nil
	}
	return End, nil
}

func (c *ConditionalEdge) pathKeys() []string {
	return sortedKeys(c.PathMap)
}

// validate reports every structural problem at once.
func (g *Graph) validate() error {
	if problems := g.problems(); len(problems) > 0 {
		return &ConfigurationError{Reason: strings.Join(problems, "; ")}
	}
	return nil
}

func (g *Graph) problems() []string {
	var problems []string
	if g.entryPoint == "" {
		problems = append(problems, "graph must have an entry point")
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		problems = append(problems, "entry point node "+g.entryPoint+" does not exist")
	}
	for _, from := range sortedKeys(g.edges) {
		to := g.edges[from].To
		if !g.isTarget(to) {
			problems = append(problems, "edge "+from+" -> "+to+" targets a node that does not exist")
		}
	}
	for _, from := range sortedKeys(g.conditionalEdges) {
		condEdge := g.conditionalEdges[from]
		if condEdge.Condition == nil {
			problems = append(problems, "conditional edge from "+from+" has no condition")
		}
		if len(condEdge.PathMap) == 0 {
			problems = append(problems, "conditional edge from "+from+" declares no destinations")
		}
		for _, to := range condEdge.Destinations() {
			if !g.isTarget(to) {
				problems = append(problems, "conditional edge from "+from+" targets "+to+" which does not exist")
			}
		}
	}
	return problems
}

func (g *Graph) isTarget(id string) bool {
	if id == End {
		return true
	}
	_, exists := g.nodes[id]
	return exists
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
