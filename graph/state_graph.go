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
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-hitl-go/model"
	"trpc.group/trpc-go/trpc-hitl-go/tool"
)

// StateGraph provides a fluent interface for building graphs.
// Mistakes are collected and reported together by Compile.
//
// Example usage:
//
//	g, err := NewStateGraph(MessagesStateSchema()).
//	  AddAgentNode("agent", llm, instruction, tools).
//	  AddToolsNode("tools", tools).
//	  AddToolsConditionalEdges("agent", "tools", End).
//	  AddEdge("tools", "agent").
//	  SetEntryPoint("agent").
//	  Compile()
//
// The compiled Graph can then be executed with NewExecutor(g).
type StateGraph struct {
	graph    *Graph
	problems []string
}

// NewStateGraph creates a new graph builder with the given state schema.
func NewStateGraph(schema *StateSchema) *StateGraph {
	return &StateGraph{
		graph: newGraph(schema),
	}
}

// Option is a function that configures a Node.
type Option func(*Node)

// WithName sets the name of the node.
func WithName(name string) Option {
	return func(node *Node) {
		node.Name = name
	}
}

// WithDescription sets the description of the node.
func WithDescription(description string) Option {
	return func(node *Node) {
		node.Description = description
	}
}

func (sg *StateGraph) problemf(format string, args ...any) {
	sg.problems = append(sg.problems, fmt.Sprintf(format, args...))
}

// AddNode adds a node with the given ID and function.
// The name and description of the node can be set with the options.
func (sg *StateGraph) AddNode(id string, function NodeFunc, opts ...Option) *StateGraph {
	switch {
	case id == "":
		sg.problemf("node ID cannot be empty")
		return sg
	case id == Start || id == End:
		sg.problemf("node ID %s is reserved", id)
		return sg
	case function == nil:
		sg.problemf("node %s has no function", id)
		return sg
	}
	if _, exists := sg.graph.nodes[id]; exists {
		sg.problemf("node with ID %s already exists", id)
		return sg
	}
	node := &Node{
		ID:       id,
		Name:     id,
		Function: function,
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.graph.nodes[id] = node
	return sg
}

// AddAgentNode adds a node that asks the model for the next assistant
// message.
func (sg *StateGraph) AddAgentNode(
	id string,
	m model.Model,
	instruction string,
	tools map[string]tool.Tool,
	opts ...Option,
) *StateGraph {
	return sg.AddNode(id, NewAgentNodeFunc(m, instruction, tools), opts...)
}

// AddToolsNode adds a node that runs the tool calls of the latest assistant
// message.
func (sg *StateGraph) AddToolsNode(
	id string,
	tools map[string]tool.Tool,
	opts ...Option,
) *StateGraph {
	return sg.AddNode(id, NewToolsNodeFunc(tools), opts...)
}

// AddEdge adds a normal edge between two nodes. An edge from Start sets the
// entry point. Targets are checked by Compile.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	if from == "" || to == "" {
		sg.problemf("edge from and to cannot be empty")
		return sg
	}
	if from == Start {
		return sg.SetEntryPoint(to)
	}
	if _, exists := sg.graph.nodes[from]; !exists {
		sg.problemf("source node %s does not exist", from)
		return sg
	}
	if existing, exists := sg.graph.edges[from]; exists {
		sg.problemf("node %s already has an edge to %s", from, existing.To)
		return sg
	}
	sg.graph.edges[from] = &Edge{From: from, To: to}
	return sg
}

// AddConditionalEdges adds conditional routing from a node. The keys of
// pathMap are the declared results of condition.
func (sg *StateGraph) AddConditionalEdges(
	from string,
	condition ConditionalFunc,
	pathMap map[string]string,
) *StateGraph {
	if _, exists := sg.graph.nodes[from]; !exists {
		sg.problemf("source node %s does not exist", from)
		return sg
	}
	if _, exists := sg.graph.conditionalEdges[from]; exists {
		sg.problemf("node %s already has a conditional edge", from)
		return sg
	}
	paths := make(map[string]string, len(pathMap))
	for k, v := range pathMap {
		paths[k] = v
	}
	sg.graph.conditionalEdges[from] = &ConditionalEdge{
		From:      from,
		Condition: condition,
		PathMap:   paths,
	}
	return sg
}

// AddToolsConditionalEdges routes from an agent node to a tools node when
// the latest assistant message carries tool calls, and to fallbackNode
// otherwise.
func (sg *StateGraph) AddToolsConditionalEdges(
	fromAgentNode string,
	toToolsNode string,
	fallbackNode string,
) *StateGraph {
	return sg.AddConditionalEdges(fromAgentNode, ToolsCondition, map[string]string{
		RouteTools: toToolsNode,
		End:        fallbackNode,
	})
}

// SetEntryPoint sets the entry point of the graph.
// This is equivalent to AddEdge(Start, nodeID).
func (sg *StateGraph) SetEntryPoint(nodeID string) *StateGraph {
	if sg.graph.entryPoint != "" && sg.graph.entryPoint != nodeID {
		sg.problemf("entry point already set to %s", sg.graph.entryPoint)
		return sg
	}
	sg.graph.entryPoint = nodeID
	return sg
}

// SetFinishPoint adds an edge from the node to End.
// This is equivalent to AddEdge(nodeID, End).
func (sg *StateGraph) SetFinishPoint(nodeID string) *StateGraph {
	return sg.AddEdge(nodeID, End)
}

// Compile checks the graph and returns it for execution. Every problem found
// while building is reported in one *ConfigurationError.
func (sg *StateGraph) Compile() (*Graph, error) {
	problems := append(append([]string(nil), sg.problems...), sg.graph.problems()...)
	if len(problems) > 0 {
		return nil, &ConfigurationError{Reason: strings.Join(problems, "; ")}
	}
	return sg.graph, nil
}

// MustCompile compiles the graph or panics if invalid.
func (sg *StateGraph) MustCompile() *Graph {
	g, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return g
}
