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
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint"
	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint/inmemory"
	"trpc.group/trpc-go/trpc-hitl-go/log"
	"trpc.group/trpc-go/trpc-hitl-go/model"
	"trpc.group/trpc-go/trpc-hitl-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-hitl-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-hitl-go/tool/human"
	"trpc.group/trpc-go/trpc-hitl-go/tool/search"
)

const helpQuery = "I need some expert guidance for building an AI agent"

func newTestExecutor(t *testing.T, g *Graph, opts ...ExecutorOption) (*Executor, *inmemory.Saver) {
	t.Helper()
	saver := inmemory.NewSaver()
	exec, err := NewExecutor(g, append([]ExecutorOption{WithCheckpointSaver(saver)}, opts...)...)
	require.NoError(t, err)
	return exec, saver
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := log.Default
	log.Default = log.New(&buf)
	t.Cleanup(func() { log.Default = old })
	return &buf
}

func eventTypes(events []*Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestNewExecutor_Errors(t *testing.T) {
	_, err := NewExecutor(nil)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = NewExecutor(&Graph{nodes: map[string]*Node{}})
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestNewExecutor_DefaultSaverIsPrivate(t *testing.T) {
	g, err := buildAgentGraph(newScriptedModel(), nil)
	require.NoError(t, err)
	e1, err := NewExecutor(g)
	require.NoError(t, err)
	e2, err := NewExecutor(g)
	require.NoError(t, err)
	assert.NotSame(t, e1.CheckpointSaver(), e2.CheckpointSaver())
	assert.Equal(t, defaultMaxSteps, e1.maxSteps)
	assert.Equal(t, defaultChannelBufferSize, e1.channelBufferSize)
}

// Scenario A: a reply without tool calls ends the run after one agent step.
func TestExecutor_ReplyWithoutToolCallsTerminates(t *testing.T) {
	llm := newScriptedModel(say("pong"))
	echo := newCountingTool("echo")
	g, err := buildAgentGraph(llm, toolSet(echo))
	require.NoError(t, err)
	exec, saver := newTestExecutor(t, g)
	ctx := context.Background()

	result, err := exec.Invoke(ctx, "session-a", userInput("ping"))
	require.NoError(t, err)

	assert.False(t, result.Interrupted())
	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, []EventType{EventNodeComplete, EventDone}, eventTypes(result.Events))
	assert.Equal(t, "agent", result.Events[0].NodeID)
	assert.Equal(t, []model.Message{
		model.NewUserMessage("ping"),
		model.NewAssistantMessage("pong"),
	}, result.State.Messages())
	assert.Equal(t, "pong", result.State[StateKeyLastResponse])
	assert.Equal(t, 1, llm.calls())
	assert.Equal(t, 0, echo.calls())

	cp, err := saver.Latest(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, End, cp.NextNode)
	assert.Equal(t, 0, cp.Step)
	assert.Nil(t, cp.Interrupt)
}

// Scenario B: the human tool suspends the run at the tools node.
func TestExecutor_HumanToolSuspends(t *testing.T) {
	buf := captureLog(t)
	call := humanCall("call-1", helpQuery)
	llm := newScriptedModel(say("", call))
	g, err := buildAgentGraph(llm, toolSet(human.NewTool()))
	require.NoError(t, err)
	exec, saver := newTestExecutor(t, g)
	ctx := context.Background()

	result, err := exec.Invoke(ctx, "session-b", userInput(helpQuery))
	require.NoError(t, err)

	require.True(t, result.Interrupted())
	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, []EventType{EventNodeComplete, EventInterrupt}, eventTypes(result.Events))
	assert.Equal(t, "tools", result.Interrupt.NodeID)
	assert.Equal(t, map[string]any{human.QueryKey: helpQuery}, result.Interrupt.Payload)
	assert.Equal(t, "tools", result.Events[1].NodeID)

	cp, err := saver.Latest(ctx, "session-b")
	require.NoError(t, err)
	assert.Equal(t, "tools", cp.NextNode)
	assert.Equal(t, checkpoint.SourceInterrupt, cp.Source)
	require.True(t, cp.Interrupt.Pending())
	assert.Equal(t, "tools", cp.Interrupt.NodeID)

	// The stored state equals the state built by hand.
	want, err := g.Schema().Encode(State{StateKeyMessages: []model.Message{
		model.NewUserMessage(helpQuery),
		model.NewAssistantMessage("", call),
	}})
	require.NoError(t, err)
	assert.Equal(t, string(want), string(cp.State))

	assert.NotContains(t, buf.String(), "ERROR")
	assert.Contains(t, buf.String(), "suspended")
}

// Scenario C: resuming appends the answer and runs the agent to the end.
func TestExecutor_ResumeCompletesRun(t *testing.T) {
	call := humanCall("call-1", helpQuery)
	llm := newScriptedModel(say("", call), say("Here is the plan from the expert."))
	g, err := buildAgentGraph(llm, toolSet(human.NewTool()))
	require.NoError(t, err)
	exec, saver := newTestExecutor(t, g)
	ctx := context.Background()

	_, err = exec.Invoke(ctx, "session-c", userInput(helpQuery))
	require.NoError(t, err)

	result, err := exec.InvokeResume(ctx, "session-c", NewResumeCommand("expert answer"))
	require.NoError(t, err)
	assert.False(t, result.Interrupted())
	assert.Equal(t, 2, result.Steps)
	assert.Equal(t, []EventType{EventNodeComplete, EventNodeComplete, EventDone}, eventTypes(result.Events))
	assert.Equal(t, "tools", result.Events[0].NodeID)
	assert.Equal(t, "agent", result.Events[1].NodeID)

	msgs := result.State.Messages()
	assert.Equal(t, []model.Message{
		model.NewUserMessage(helpQuery),
		model.NewAssistantMessage("", call),
		model.NewToolMessage("call-1", human.ToolName, "expert answer"),
		model.NewAssistantMessage("Here is the plan from the expert."),
	}, msgs)
	var toolMsgs int
	for _, m := range msgs {
		if m.Role == model.RoleTool {
			toolMsgs++
		}
	}
	assert.Equal(t, 1, toolMsgs)
	assert.Equal(t, 2, llm.calls())

	cp, err := saver.Latest(ctx, "session-c")
	require.NoError(t, err)
	assert.Equal(t, End, cp.NextNode)
	assert.Nil(t, cp.Interrupt)
	assert.Equal(t, 2, cp.Step)
}

func TestExecutor_ResumeWithDataShape(t *testing.T) {
	llm := newScriptedModel(say("", humanCall("call-1", "q")), say("ok"))
	g, err := buildAgentGraph(llm, toolSet(human.NewTool()))
	require.NoError(t, err)
	exec, _ := newTestExecutor(t, g)
	ctx := context.Background()

	_, err = exec.Invoke(ctx, "s", userInput("q"))
	require.NoError(t, err)
	result, err := exec.InvokeResume(ctx, "s", NewResumeCommand(map[string]any{"data": "from a person"}))
	require.NoError(t, err)
	assert.Equal(t, "from a person", result.State.Messages()[2].Content)
}

func TestExecutor_ResumeWithoutSuspension(t *testing.T) {
	llm := newScriptedModel(say("pong"))
	g, err := buildAgentGraph(llm, nil)
	require.NoError(t, err)
	exec, saver := newTestExecutor(t, g)
	ctx := context.Background()

	_, err = exec.Resume(ctx, "unknown", NewResumeCommand("x"))
	var invalid *InvalidResumeError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "unknown", invalid.SessionID)
	assert.True(t, errors.Is(err, ErrInvalidResume))
	none, err := saver.Latest(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = exec.Invoke(ctx, "done", userInput("ping"))
	require.NoError(t, err)
	before, err := saver.List(ctx, "done", 0)
	require.NoError(t, err)

	_, err = exec.InvokeResume(ctx, "done", NewResumeCommand("x"))
	assert.True(t, errors.Is(err, ErrInvalidResume))

	after, err := saver.List(ctx, "done", 0)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// The session is not left busy.
	_, err = exec.InvokeContinue(ctx, "done")
	require.NoError(t, err)
}

func TestExecutor_ResumeTwiceFails(t *testing.T) {
	llm := newScriptedModel(say("", humanCall("call-1", "q")), say("ok"))
	g, err := buildAgentGraph(llm, toolSet(human.NewTool()))
	require.NoError(t, err)
	exec, _ := newTestExecutor(t, g)
	ctx := context.Background()

	_, err = exec.Invoke(ctx, "s", userInput("q"))
	require.NoError(t, err)
	_, err = exec.InvokeResume(ctx, "s", NewResumeCommand("a"))
	require.NoError(t, err)
	_, err = exec.InvokeResume(ctx, "s", NewResumeCommand("b"))
	assert.True(t, errors.Is(err, ErrInvalidResume))
}

func TestExecutor_ResumeIsTransparent(t *testing.T) {
	const answer = "use a graph with checkpoints"
	call := humanCall("call-1", helpQuery)
	ctx := context.Background()

	interruptedModel := newScriptedModel(say("", call), say("final"))
	g1, err := buildAgentGraph(interruptedModel, toolSet(human.NewTool()))
	require.NoError(t, err)
	exec1, _ := newTestExecutor(t, g1)
	_, err = exec1.Invoke(ctx, "s", userInput(helpQuery))
	require.NoError(t, err)
	resumed, err := exec1.InvokeResume(ctx, "s", NewResumeCommand(answer))
	require.NoError(t, err)

	directModel := newScriptedModel(say("", call), say("final"))
	g2, err := buildAgentGraph(directModel, toolSet(answerTool(answer)))
	require.NoError(t, err)
	exec2, _ := newTestExecutor(t, g2)
	direct, err := exec2.Invoke(ctx, "s", userInput(helpQuery))
	require.NoError(t, err)

	assert.Equal(t, direct.State, resumed.State)
	assert.False(t, direct.Interrupted())
}

func TestExecutor_MessagesAreConcatenationOfUpdates(t *testing.T) {
	msgNode := func(content string) NodeFunc {
		return func(context.Context, State) (Result, error) {
			return Complete(State{StateKeyMessages: []model.Message{model.NewAssistantMessage(content)}}), nil
		}
	}
	g := NewStateGraph(MessagesStateSchema()).
		AddNode("a", msgNode("a")).
		AddNode("b", msgNode("b")).
		AddNode("c", msgNode("c")).
		AddEdge(Start, "a").
		AddEdge("a", "b").
		AddEdge("b", "c").
		SetFinishPoint("c").
		MustCompile()
	exec, _ := newTestExecutor(t, g)

	result, err := exec.Invoke(context.Background(), "s", userInput("go"))
	require.NoError(t, err)
	assert.Equal(t, []model.Message{
		model.NewUserMessage("go"),
		model.NewAssistantMessage("a"),
		model.NewAssistantMessage("b"),
		model.NewAssistantMessage("c"),
	}, result.State.Messages())

	// Earlier snapshots are unaffected by later appends.
	require.Len(t, result.Events, 4)
	assert.Len(t, result.Events[0].State.Messages(), 2)
	assert.Len(t, result.Events[1].State.Messages(), 3)
	assert.Equal(t, []int{0, 1, 2}, []int{result.Events[0].Step, result.Events[1].Step, result.Events[2].Step})
}

func TestExecutor_ContinueAfterModelFailure(t *testing.T) {
	buf := captureLog(t)
	boom := errors.New("model unavailable")
	llm := newScriptedModel(reply{err: boom}, say("recovered"))
	g, err := buildAgentGraph(llm, nil)
	require.NoError(t, err)
	exec, saver := newTestExecutor(t, g)
	ctx := context.Background()

	result, err := exec.Invoke(ctx, "s", userInput("hello"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var nodeErr *NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "agent", nodeErr.NodeID)
	assert.Equal(t, []EventType{EventError}, eventTypes(result.Events))
	assert.Equal(t, "agent", result.Events[0].NodeID)
	assert.Contains(t, buf.String(), "ERROR")

	cp, err := saver.Latest(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "agent", cp.NextNode)
	assert.Equal(t, -1, cp.Step)

	result, err = exec.InvokeContinue(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.State[StateKeyLastResponse])
	assert.Len(t, result.State.Messages(), 2)
}

func TestExecutor_ContinueReplaysResumeValue(t *testing.T) {
	echo := newCountingTool("echo")
	llm := newScriptedModel(
		say("", humanCall("c1", "ok to search?"), echoCall("c2", "echo", "x")),
		say("all done"),
	)
	g, err := buildAgentGraph(llm, toolSet(human.NewTool(), echo))
	require.NoError(t, err)
	exec, saver := newTestExecutor(t, g)
	ctx := context.Background()

	_, err = exec.Invoke(ctx, "s", userInput("go"))
	require.NoError(t, err)

	boom := errors.New("search backend down")
	echo.setFail(boom)
	_, err = exec.InvokeResume(ctx, "s", NewResumeCommand("yes"))
	assert.ErrorIs(t, err, boom)

	cp, err := saver.Latest(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "tools", cp.NextNode)
	require.NotNil(t, cp.Interrupt)
	assert.True(t, cp.Interrupt.Resumed)
	assert.False(t, cp.Interrupt.Pending())
	assert.Equal(t, "yes", cp.Interrupt.ResumeValue)

	echo.setFail(nil)
	result, err := exec.InvokeContinue(ctx, "s")
	require.NoError(t, err)
	msgs := result.State.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, model.NewToolMessage("c1", human.ToolName, "yes"), msgs[2])
	assert.Equal(t, model.NewToolMessage("c2", "echo", "echo: x"), msgs[3])
	assert.Equal(t, "all done", msgs[4].Content)
}

func TestExecutor_ContinueOnPendingInterrupt(t *testing.T) {
	llm := newScriptedModel(say("", humanCall("c1", "q")))
	g, err := buildAgentGraph(llm, toolSet(human.NewTool()))
	require.NoError(t, err)
	exec, _ := newTestExecutor(t, g)
	ctx := context.Background()

	_, err = exec.Invoke(ctx, "s", userInput("q"))
	require.NoError(t, err)

	result, err := exec.InvokeContinue(ctx, "s")
	require.NoError(t, err)
	assert.True(t, result.Interrupted())
	assert.Equal(t, 0, result.Steps)
	assert.Equal(t, 1, llm.calls())
}

func TestExecutor_ContinueUnknownSession(t *testing.T) {
	g, err := buildAgentGraph(newScriptedModel(), nil)
	require.NoError(t, err)
	exec, _ := newTestExecutor(t, g)
	_, err = exec.Continue(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
	_, err = exec.GetState(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestExecutor_FreshInputDiscardsInterrupt(t *testing.T) {
	llm := newScriptedModel(say("", humanCall("c1", "q")), say("fine"))
	g, err := buildAgentGraph(llm, toolSet(human.NewTool()))
	require.NoError(t, err)
	exec, saver := newTestExecutor(t, g)
	ctx := context.Background()

	_, err = exec.Invoke(ctx, "s", userInput("q"))
	require.NoError(t, err)

	result, err := exec.Invoke(ctx, "s", userInput("never mind"))
	require.NoError(t, err)
	assert.False(t, result.Interrupted())
	msgs := result.State.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, model.NewUserMessage("never mind"), msgs[2])

	cp, err := saver.Latest(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, cp.Interrupt)
	assert.Equal(t, 1, cp.Step)
}

func TestExecutor_CustomNodeSuspension(t *testing.T) {
	approve := func(ctx context.Context, _ State) (Result, error) {
		if v, ok := ResumeValue(ctx); ok {
			return Complete(State{"approved": v}), nil
		}
		return Suspend("approve the plan?"), nil
	}
	g := NewStateGraph(MessagesStateSchema()).
		AddNode("approve", approve).
		SetEntryPoint("approve").
		MustCompile()
	exec, _ := newTestExecutor(t, g)
	ctx := context.Background()

	result, err := exec.Invoke(ctx, "s", userInput("plan"))
	require.NoError(t, err)
	require.True(t, result.Interrupted())
	assert.Equal(t, "approve the plan?", result.Interrupt.Payload)

	result, err = exec.InvokeResume(ctx, "s", NewResumeCommand(true))
	require.NoError(t, err)
	assert.Equal(t, true, result.State["approved"])
}

func TestExecutor_UndeclaredRouteKeepsNodeUpdate(t *testing.T) {
	invoked := 0
	speak := func(context.Context, State) (Result, error) {
		invoked++
		return Complete(State{StateKeyMessages: []model.Message{model.NewAssistantMessage("from a")}}), nil
	}
	build := func(key string) *Graph {
		return NewStateGraph(MessagesStateSchema()).
			AddNode("a", speak).
			AddConditionalEdges("a", func(context.Context, State) (string, error) { return key, nil },
				map[string]string{"done": End}).
			SetEntryPoint("a").
			MustCompile()
	}
	exec, saver := newTestExecutor(t, build("surprise"))
	ctx := context.Background()

	_, err := exec.Invoke(ctx, "s", userInput("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))

	cp, err := saver.Latest(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.SourceRoute, cp.Source)
	assert.Equal(t, 0, cp.Step)
	assert.Equal(t, "a", cp.NextNode)
	snap, err := exec.GetState(ctx, "s")
	require.NoError(t, err)
	require.Len(t, snap.State.Messages(), 2)
	assert.Equal(t, "from a", snap.State.Messages()[1].Content)

	// A second failing attempt routes again without storing another checkpoint.
	_, err = exec.InvokeContinue(ctx, "s")
	require.ErrorIs(t, err, ErrConfiguration)
	history, err := saver.List(ctx, "s", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	fixed, err := NewExecutor(build("done"), WithCheckpointSaver(saver))
	require.NoError(t, err)
	result, err := fixed.InvokeContinue(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventNodeComplete, EventDone}, eventTypes(result.Events))
	assert.Equal(t, 1, invoked)
	assert.Len(t, result.State.Messages(), 2)

	cp, err = saver.Latest(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.SourceLoop, cp.Source)
	assert.Equal(t, 0, cp.Step)
	assert.Equal(t, End, cp.NextNode)
}

func TestExecutor_SearchFailureFailsRunAndContinueRetries(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"Go is a language.","results":[{"title":"Go","url":"https://go.dev","content":"go"}]}`))
	}))
	defer srv.Close()

	searchTool := search.NewTool(search.WithTavilyAPIKey("k"), search.WithTavilyBaseURL(srv.URL))
	llm := newScriptedModel(
		say("", model.NewToolCall("call_1", search.ToolName, []byte(`{"query":"go"}`))),
		say("final"),
	)
	g, err := buildAgentGraph(llm, toolSet(searchTool))
	require.NoError(t, err)
	exec, saver := newTestExecutor(t, g)
	ctx := context.Background()

	_, err = exec.Invoke(ctx, "s", userInput("what is go?"))
	require.Error(t, err)
	var nodeErr *NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "tools", nodeErr.NodeID)
	assert.Contains(t, err.Error(), "status 502")

	cp, err := saver.Latest(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "tools", cp.NextNode)
	assert.Equal(t, 0, cp.Step)

	healthy.Store(true)
	result, err := exec.InvokeContinue(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "final", result.State[StateKeyLastResponse])
	msgs := result.State.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, model.RoleTool, msgs[2].Role)
	assert.Contains(t, msgs[2].Content, "Go is a language.")
}

func TestExecutor_MaxSteps(t *testing.T) {
	g := NewStateGraph(MessagesStateSchema()).
		AddNode("loop", noop).
		AddEdge("loop", "loop").
		SetEntryPoint("loop").
		MustCompile()
	exec, _ := newTestExecutor(t, g, WithMaxSteps(3))

	result, err := exec.Invoke(context.Background(), "s", userInput("x"))
	assert.ErrorIs(t, err, ErrMaxStepsExceeded)
	assert.Equal(t, 3, result.Steps)
}

func TestExecutor_SessionBusy(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	g := NewStateGraph(MessagesStateSchema()).
		AddNode("wait", func(ctx context.Context, s State) (Result, error) {
			if s["block"] == true {
				entered <- struct{}{}
				<-release
			}
			return Complete(nil), nil
		}).
		SetEntryPoint("wait").
		MustCompile()
	exec, _ := newTestExecutor(t, g)
	ctx := context.Background()

	input := userInput("x")
	input["block"] = true
	events, err := exec.Execute(ctx, "busy", input)
	require.NoError(t, err)
	<-entered

	_, err = exec.Execute(ctx, "busy", userInput("again"))
	assert.ErrorIs(t, err, ErrSessionBusy)
	_, err = exec.Continue(ctx, "busy")
	assert.ErrorIs(t, err, ErrSessionBusy)

	other, err := exec.Invoke(ctx, "other", userInput("y"))
	require.NoError(t, err)
	assert.Equal(t, 1, other.Steps)

	close(release)
	result, err := Collect(events)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Steps)

	_, err = exec.Invoke(ctx, "busy", State{"block": false})
	require.NoError(t, err)
}

func TestExecutor_InvalidInput(t *testing.T) {
	g, err := buildAgentGraph(newScriptedModel(), nil)
	require.NoError(t, err)
	exec, saver := newTestExecutor(t, g)
	ctx := context.Background()

	_, err = exec.Execute(ctx, "", userInput("x"))
	assert.ErrorIs(t, err, ErrSessionIDRequired)

	_, err = exec.Execute(ctx, "s", State{StateKeyMessages: "not messages"})
	require.Error(t, err)
	cp, err := saver.Latest(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestExecutor_GetStateAndHistory(t *testing.T) {
	llm := newScriptedModel(say("", humanCall("c1", "q")))
	g, err := buildAgentGraph(llm, toolSet(human.NewTool()))
	require.NoError(t, err)
	exec, _ := newTestExecutor(t, g)
	ctx := context.Background()

	_, err = exec.Invoke(ctx, "s", userInput("q"))
	require.NoError(t, err)

	snap, err := exec.GetState(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "tools", snap.Next)
	require.NotNil(t, snap.Interrupt)
	assert.Equal(t, map[string]any{human.QueryKey: "q"}, snap.Interrupt.Payload)
	assert.Len(t, snap.State.Messages(), 2)
	assert.Equal(t, 0, snap.Step)

	history, err := exec.History(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, checkpoint.SourceInterrupt, history[0].Source)
	assert.Equal(t, checkpoint.SourceLoop, history[1].Source)
	assert.Equal(t, checkpoint.SourceInput, history[2].Source)
	assert.Nil(t, history[1].Interrupt)

	require.NoError(t, exec.DeleteSession(ctx, "s"))
	_, err = exec.GetState(ctx, "s")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestExecutor_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder, err := metric.NewRecorder(reg)
	require.NoError(t, err)
	ctx := context.Background()

	llm := newScriptedModel(say("pong"), say("", humanCall("c1", "q")))
	g, err := buildAgentGraph(llm, toolSet(human.NewTool()))
	require.NoError(t, err)
	exec, _ := newTestExecutor(t, g, WithMetrics(recorder))

	_, err = exec.Invoke(ctx, "a", userInput("ping"))
	require.NoError(t, err)
	_, err = exec.Invoke(ctx, "b", userInput("help"))
	require.NoError(t, err)

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP hitl_graph_runs_total Total number of graph runs by outcome
# TYPE hitl_graph_runs_total counter
hitl_graph_runs_total{outcome="completed"} 1
hitl_graph_runs_total{outcome="interrupted"} 1
# HELP hitl_graph_interrupts_total Total number of node suspensions
# TYPE hitl_graph_interrupts_total counter
hitl_graph_interrupts_total{node="tools"} 1
# HELP hitl_graph_steps_total Total number of completed node steps
# TYPE hitl_graph_steps_total counter
hitl_graph_steps_total{node="agent"} 2
`), "hitl_graph_runs_total", "hitl_graph_interrupts_total", "hitl_graph_steps_total"))
	series, err := testutil.GatherAndCount(reg, "hitl_graph_node_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestExecutor_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	old := trace.Tracer
	trace.Tracer = provider.Tracer("test")
	t.Cleanup(func() { trace.Tracer = old })

	g, err := buildAgentGraph(newScriptedModel(say("pong")), nil)
	require.NoError(t, err)
	exec, _ := newTestExecutor(t, g)
	_, err = exec.Invoke(context.Background(), "traced", userInput("ping"))
	require.NoError(t, err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
		if span.Name() == "execute_graph" {
			assert.Contains(t, span.Attributes(), trace.KeySessionID.String("traced"))
			assert.Contains(t, span.Attributes(), trace.KeyOutcome.String(metric.OutcomeCompleted))
		}
	}
	assert.Contains(t, names, "execute_graph")
	assert.Contains(t, names, "execute_node agent")
	assert.Contains(t, names, "agent_node_execution")
}

func TestCollect_StopsAtClose(t *testing.T) {
	ch := make(chan *Event, 2)
	ch <- &Event{Type: EventNodeComplete, State: State{"a": 1}}
	ch <- &Event{Type: EventError, Err: errors.New("x")}
	close(ch)
	result, err := Collect(ch)
	assert.EqualError(t, err, "x")
	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, State{"a": 1}, result.State)
}
