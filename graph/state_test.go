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
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trpc.group/trpc-go/trpc-hitl-go/model"
)

func TestMessageReducer_AppendsIntoFreshSlice(t *testing.T) {
	u := model.NewUserMessage("hi")
	a := model.NewAssistantMessage("hello")
	existing := make([]model.Message, 1, 8)
	existing[0] = u

	merged := MessageReducer(existing, []model.Message{a}).([]model.Message)
	require.Len(t, merged, 2)
	assert.Equal(t, []model.Message{u, a}, merged)

	// A later append must not show up in the earlier result.
	again := MessageReducer(existing, []model.Message{model.NewAssistantMessage("other")}).([]model.Message)
	assert.Equal(t, "hello", merged[1].Content)
	assert.Equal(t, "other", again[1].Content)
}

func TestMessageReducer_NilExistingAndFallback(t *testing.T) {
	a := model.NewAssistantMessage("hello")
	assert.Equal(t, []model.Message{a}, MessageReducer(nil, []model.Message{a}))
	assert.Equal(t, "x", MessageReducer([]model.Message{a}, "x"))
}

func TestApplyUpdate_MessagesAppendOthersReplace(t *testing.T) {
	schema := MessagesStateSchema()
	u := model.NewUserMessage("q")
	a := model.NewAssistantMessage("a")

	current := State{StateKeyMessages: []model.Message{u}, StateKeyLastResponse: "old", "custom": 1}
	next := schema.ApplyUpdate(current, State{
		StateKeyMessages:     []model.Message{a},
		StateKeyLastResponse: "new",
		"custom":             2,
	})

	assert.Equal(t, []model.Message{u, a}, next.Messages())
	assert.Equal(t, "new", next[StateKeyLastResponse])
	assert.Equal(t, 2, next["custom"])
	// The input state is not modified.
	assert.Equal(t, []model.Message{u}, current.Messages())
	assert.Equal(t, "old", current[StateKeyLastResponse])
}

func TestApplyUpdate_SequentialEqualsConcatenated(t *testing.T) {
	schema := MessagesStateSchema()
	m1 := model.NewUserMessage("1")
	m2 := model.NewAssistantMessage("2")
	m3 := model.NewToolMessage("c", "t", "3")

	seq := schema.ApplyUpdate(
		schema.ApplyUpdate(State{}, State{StateKeyMessages: []model.Message{m1}}),
		State{StateKeyMessages: []model.Message{m2, m3}},
	)
	once := schema.ApplyUpdate(State{}, State{StateKeyMessages: []model.Message{m1, m2, m3}})
	assert.Equal(t, once, seq)
}

func TestApplyUpdate_MetadataMerges(t *testing.T) {
	schema := MessagesStateSchema()
	s := schema.ApplyUpdate(State{}, State{StateKeyMetadata: map[string]any{"a": 1}})
	s = schema.ApplyUpdate(s, State{StateKeyMetadata: map[string]any{"b": 2}})
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, s[StateKeyMetadata])
}

func TestStateSchema_Validate(t *testing.T) {
	schema := MessagesStateSchema()
	require.NoError(t, schema.Validate(State{StateKeyMessages: []model.Message{}}))

	err := schema.Validate(State{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required field messages is missing")

	err = schema.Validate(State{StateKeyMessages: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong type")
}

func TestStateSchema_EncodeDecode(t *testing.T) {
	schema := MessagesStateSchema()
	state := State{
		StateKeyMessages: []model.Message{
			model.NewUserMessage("find it"),
			model.NewAssistantMessage("", model.NewToolCall("call-1", "web_search", []byte(`{"query":"x"}`))),
			model.NewToolMessage("call-1", "web_search", "result"),
		},
		StateKeyLastResponse: "done",
		StateKeyMetadata:     map[string]any{"k": "v"},
		"extra":              []any{"a", float64(1)},
	}

	b1, err := schema.Encode(state)
	require.NoError(t, err)
	decoded, err := schema.Decode(b1)
	require.NoError(t, err)
	assert.Equal(t, state, decoded)
	assert.IsType(t, []model.Message{}, decoded[StateKeyMessages])

	b2, err := schema.Encode(decoded)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestStateSchema_EncodeIsKeyOrderIndependent(t *testing.T) {
	schema := NewStateSchema()
	a := State{}
	b := State{}
	keys := []string{"zeta", "alpha", "mid", "beta"}
	for i, k := range keys {
		a[k] = i
		b[keys[len(keys)-1-i]] = len(keys) - 1 - i
	}
	ea, err := schema.Encode(a)
	require.NoError(t, err)
	eb, err := schema.Encode(b)
	require.NoError(t, err)
	assert.Equal(t, ea, eb)
	assert.Equal(t, `{"alpha":1,"beta":3,"mid":2,"zeta":0}`, string(ea))
}

func TestStateSchema_DecodeErrors(t *testing.T) {
	schema := MessagesStateSchema()
	_, err := schema.Decode([]byte("not json"))
	require.Error(t, err)

	_, err = schema.Decode([]byte(`{"messages":"text"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "messages")
}

func TestAddField_DefaultsReducer(t *testing.T) {
	schema := NewStateSchema().AddField("n", StateField{Type: reflect.TypeOf(0)})
	s := schema.ApplyUpdate(State{"n": 1}, State{"n": 2})
	assert.Equal(t, 2, s["n"])
}
