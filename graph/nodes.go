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
	"encoding/json"
	"errors"
	"fmt"

	oteltrace "go.opentelemetry.io/otel/trace"
	"trpc.group/trpc-go/trpc-hitl-go/model"
	"trpc.group/trpc-go/trpc-hitl-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-hitl-go/tool"
)

// RouteTools is the ToolsCondition result that leads to the tools node.
const RouteTools = "tools"

// ToolsCondition returns RouteTools when the latest message is an assistant
// message with at least one tool call, and End otherwise.
func ToolsCondition(_ context.Context, state State) (string, error) {
	msgs := state.Messages()
	if n := len(msgs); n > 0 && msgs[n-1].HasToolCalls() {
		return RouteTools, nil
	}
	return End, nil
}

// NewAgentNodeFunc creates a NodeFunc that asks the model for the next
// assistant message. The instruction, when set, is sent as a leading system
// message and never stored in state.
func NewAgentNodeFunc(llm model.Model, instruction string, tools map[string]tool.Tool) NodeFunc {
	return func(ctx context.Context, state State) (Result, error) {
		ctx, span := trace.Tracer.Start(ctx, "agent_node_execution")
		defer span.End()
		span.SetAttributes(trace.KeyModelName.String(llm.Info().Name))

		request := &model.Request{
			Messages: buildMessages(state, instruction),
			Tools:    tools,
		}
		responseChan, err := llm.GenerateContent(ctx, request)
		if err != nil {
			return nil, spanError(span, fmt.Errorf("failed to generate content: %w", err))
		}

		var finalResponse *model.Response
		var toolCalls []model.ToolCall
		for response := range responseChan {
			if response.Error != nil {
				return nil, spanError(span, fmt.Errorf("model API error: %w", response.Error))
			}
			if len(response.Choices) > 0 {
				toolCalls = append(toolCalls, response.Choices[0].Message.ToolCalls...)
			}
			finalResponse = response
		}
		if finalResponse == nil || len(finalResponse.Choices) == 0 {
			return nil, spanError(span, errors.New("no response received from model"))
		}

		msg := model.NewAssistantMessage(finalResponse.Choices[0].Message.Content, toolCalls...)
		update := State{
			StateKeyMessages: []model.Message{msg},
		}
		if !msg.HasToolCalls() {
			update[StateKeyLastResponse] = msg.Content
		}
		return Completed{Update: update}, nil
	}
}

func buildMessages(state State, instruction string) []model.Message {
	messages := state.Messages()
	if instruction == "" {
		return messages
	}
	out := make([]model.Message, 0, len(messages)+1)
	out = append(out, model.NewSystemMessage(instruction))
	return append(out, messages...)
}

// toolsProgress is saved when a call in the batch suspends.
type toolsProgress struct {
	// Completed holds the tool messages of the calls that finished before
	// the suspension.
	Completed []model.Message `json:"completed"`
	// SuspendedCallID is the call waiting for the resume value.
	SuspendedCallID string `json:"suspended_call_id"`
}

// NewToolsNodeFunc creates a NodeFunc that runs the tool calls of the latest
// assistant message in order, one tool message per call.
//
// A tool returning *tool.Suspension suspends the node and later calls do not
// run. On resume, calls completed before the suspension are not run again,
// the suspended call sees the value through tool.ResumeValue and the
// remaining calls then run. Tool messages are appended once all calls have
// finished.
func NewToolsNodeFunc(tools map[string]tool.Tool) NodeFunc {
	return func(ctx context.Context, state State) (Result, error) {
		ctx, span := trace.Tracer.Start(ctx, "tools_node_execution")
		defer span.End()

		messages := state.Messages()
		if len(messages) == 0 {
			return nil, spanError(span, errors.New("no messages in state"))
		}
		lastMessage := messages[len(messages)-1]
		if lastMessage.Role != model.RoleAssistant {
			return nil, spanError(span, errors.New("last message is not an assistant message"))
		}
		toolCalls := lastMessage.ToolCalls

		results := make([]model.Message, 0, len(toolCalls))
		resumeAt := -1
		resumeValue, resumed := ResumeValue(ctx)
		if resumed {
			progress, err := decodeToolsProgress(ResumeProgress(ctx))
			if err != nil {
				return nil, spanError(span, err)
			}
			if len(progress.Completed) >= len(toolCalls) {
				return nil, spanError(span, errors.New("saved progress does not match the pending tool calls"))
			}
			if id := progress.SuspendedCallID; id != "" && toolCalls[len(progress.Completed)].ID != id {
				return nil, spanError(span, fmt.Errorf("suspended tool call %s is not pending", id))
			}
			results = append(results, progress.Completed...)
			resumeAt = len(progress.Completed)
		}

		for i := len(results); i < len(toolCalls); i++ {
			toolCall := toolCalls[i]
			callCtx := ctx
			if i == resumeAt {
				callCtx = tool.WithResumeValue(ctx, resumeValue)
			}
			result, err := runTool(callCtx, toolCall, tools)
			if err != nil {
				return nil, spanError(span, err)
			}
			if suspension, ok := asSuspension(result); ok {
				progress, err := json.Marshal(toolsProgress{
					Completed:       results,
					SuspendedCallID: toolCall.ID,
				})
				if err != nil {
					return nil, spanError(span, fmt.Errorf("failed to marshal tool progress: %w", err))
				}
				return Suspended{Payload: suspension.Payload, Progress: progress}, nil
			}
			content, err := toolContent(result)
			if err != nil {
				return nil, spanError(span, fmt.Errorf("failed to marshal tool result: %w", err))
			}
			results = append(results, model.NewToolMessage(toolCall.ID, toolCall.Function.Name, content))
		}
		return Completed{Update: State{StateKeyMessages: results}}, nil
	}
}

func decodeToolsProgress(raw json.RawMessage) (toolsProgress, error) {
	var progress toolsProgress
	if len(raw) == 0 {
		return progress, nil
	}
	if err := json.Unmarshal(raw, &progress); err != nil {
		return progress, fmt.Errorf("failed to decode tool progress: %w", err)
	}
	return progress, nil
}

func runTool(ctx context.Context, toolCall model.ToolCall, tools map[string]tool.Tool) (any, error) {
	name := toolCall.Function.Name
	ctx, span := trace.Tracer.Start(ctx, fmt.Sprintf("execute_tool %s", name))
	defer span.End()
	span.SetAttributes(
		trace.KeyToolName.String(name),
		trace.KeyToolID.String(toolCall.ID),
	)

	t := tools[name]
	if t == nil {
		return nil, spanError(span, fmt.Errorf("tool %s not found", name))
	}
	callable, ok := t.(tool.CallableTool)
	if !ok {
		return nil, spanError(span, fmt.Errorf("tool %s is not callable", name))
	}
	result, err := callable.Call(ctx, toolCall.Function.Arguments)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("tool %s call failed: %w", name, err))
	}
	return result, nil
}

func asSuspension(result any) (tool.Suspension, bool) {
	switch s := result.(type) {
	case *tool.Suspension:
		if s != nil {
			return *s, true
		}
	case tool.Suspension:
		return s, true
	}
	return tool.Suspension{}, false
}

func toolContent(result any) (string, error) {
	switch v := result.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func spanError(span oteltrace.Span, err error) error {
	span.SetAttributes(trace.KeyError.String(err.Error()))
	return err
}
