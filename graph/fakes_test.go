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
	"errors"
	"sync"

	"trpc.group/trpc-go/trpc-hitl-go/model"
	"trpc.group/trpc-go/trpc-hitl-go/tool"
	"trpc.group/trpc-go/trpc-hitl-go/tool/function"
	"trpc.group/trpc-go/trpc-hitl-go/tool/human"
)

// reply is one scripted model turn. Exactly one field is set.
type reply struct {
	msg    *model.Message
	err    error
	apiErr *model.ResponseError
}

func say(content string, calls ...model.ToolCall) reply {
	msg := model.NewAssistantMessage(content, calls...)
	return reply{msg: &msg}
}

// scriptedModel answers each GenerateContent call with the next reply.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []reply
	requests []*model.Request
}

func newScriptedModel(replies ...reply) *scriptedModel {
	return &scriptedModel{replies: replies}
}

func (m *scriptedModel) GenerateContent(_ context.Context, req *model.Request) (<-chan *model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i >= len(m.replies) {
		return nil, errors.New("no scripted reply left")
	}
	r := m.replies[i]
	if r.err != nil {
		return nil, r.err
	}
	rsp := &model.Response{Done: true}
	if r.apiErr != nil {
		rsp.Error = r.apiErr
	} else {
		rsp.Choices = []model.Choice{{Message: *r.msg}}
	}
	ch := make(chan *model.Response, 1)
	ch <- rsp
	close(ch)
	return ch, nil
}

func (m *scriptedModel) Info() model.Info {
	return model.Info{Name: "scripted"}
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type echoArgs struct {
	Text string `json:"text"`
}

// countingTool echoes its text argument and counts its calls.
type countingTool struct {
	mu    sync.Mutex
	count int
	fail  error
	tool.CallableTool
}

func newCountingTool(name string) *countingTool {
	ct := &countingTool{}
	ct.CallableTool = function.NewFunctionTool(
		func(_ context.Context, args echoArgs) (string, error) {
			ct.mu.Lock()
			defer ct.mu.Unlock()
			ct.count++
			if ct.fail != nil {
				return "", ct.fail
			}
			return "echo: " + args.Text, nil
		},
		function.WithName(name),
		function.WithDescription("Echoes text."),
	)
	return ct
}

func (ct *countingTool) calls() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.count
}

func (ct *countingTool) setFail(err error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.fail = err
}

// answerTool stands in for the human tool and answers immediately.
func answerTool(answer string) tool.CallableTool {
	return function.NewFunctionTool(
		func(context.Context, struct {
			Query string `json:"query"`
		}) (string, error) {
			return answer, nil
		},
		function.WithName(human.ToolName),
	)
}

func humanCall(id, query string) model.ToolCall {
	return model.NewToolCall(id, human.ToolName, []byte(`{"query":"`+query+`"}`))
}

func echoCall(id, name, text string) model.ToolCall {
	return model.NewToolCall(id, name, []byte(`{"text":"`+text+`"}`))
}

func toolSet(tools ...tool.Tool) map[string]tool.Tool {
	m := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		m[t.Declaration().Name] = t
	}
	return m
}

// buildAgentGraph wires agent -> (tools -> agent)* -> End.
func buildAgentGraph(llm model.Model, tools map[string]tool.Tool) (*Graph, error) {
	return NewStateGraph(MessagesStateSchema()).
		AddAgentNode("agent", llm, "", tools).
		AddToolsNode("tools", tools).
		AddToolsConditionalEdges("agent", "tools", End).
		AddEdge("tools", "agent").
		SetEntryPoint("agent").
		Compile()
}

func userInput(content string) State {
	return State{StateKeyMessages: []model.Message{model.NewUserMessage(content)}}
}
