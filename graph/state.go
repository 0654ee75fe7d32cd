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
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"trpc.group/trpc-go/trpc-hitl-go/model"
)

const (
	// StateKeyMessages is the key of the messages.
	// It is append-only and updated by the agent and tools nodes.
	StateKeyMessages = "messages"
	// StateKeyLastResponse is the key of the last final assistant answer.
	StateKeyLastResponse = "last_response"
	// StateKeyMetadata is the key of the metadata.
	StateKeyMetadata = "metadata"
)

// State represents the state that flows through the graph.
type State map[string]any

// Clone creates a copy of the state. Values are shared.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// Messages returns the message log held by the state.
func (s State) Messages() []model.Message {
	msgs, _ := s[StateKeyMessages].([]model.Message)
	return msgs
}

// StateReducer is a function that determines how state updates are merged.
// It takes existing and new values and returns the merged result.
type StateReducer func(existing, update any) any

// StateField defines a field in the state schema with its type and reducer.
type StateField struct {
	Type     reflect.Type
	Reducer  StateReducer
	Default  func() any
	Required bool
}

// StateSchema defines the structure and behavior of graph state.
type StateSchema struct {
	mu     sync.RWMutex
	Fields map[string]StateField
}

// NewStateSchema creates a new state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{
		Fields: make(map[string]StateField),
	}
}

// AddField adds a field to the state schema.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	s.mu.Lock()
	defer s.mu.Unlock()

	if field.Reducer == nil {
		field.Reducer = DefaultReducer
	}

	s.Fields[name] = field
	return s
}

// ApplyUpdate applies a state update using the defined reducers.
// The current state is left untouched.
func (s *StateSchema) ApplyUpdate(currentState State, update State) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := currentState.Clone()
	for key, updateValue := range update {
		field, exists := s.Fields[key]
		if !exists {
			// If no field definition, use default behavior (override).
			result[key] = updateValue
			continue
		}
		currentValue, hasCurrentValue := result[key]
		if !hasCurrentValue && field.Default != nil {
			currentValue = field.Default()
		}
		result[key] = field.Reducer(currentValue, updateValue)
	}
	return result
}

// Validate validates a state against the schema.
func (s *StateSchema) Validate(state State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		field := s.Fields[name]
		value, exists := state[name]

		if field.Required && !exists {
			return fmt.Errorf("required field %s is missing", name)
		}

		if exists && value != nil && field.Type != nil {
			valueType := reflect.TypeOf(value)
			if !valueType.AssignableTo(field.Type) {
				return fmt.Errorf("field %s has wrong type: expected %v, got %v",
					name, field.Type, valueType)
			}
		}
	}
	return nil
}

// Encode returns the canonical JSON form of state. Map keys are sorted, so
// equal states encode to equal bytes.
func (s *StateSchema) Encode(state State) ([]byte, error) {
	if state == nil {
		state = State{}
	}
	b, err := json.Marshal(map[string]any(state))
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return b, nil
}

// Decode parses the output of Encode. Declared fields are decoded into their
// declared type, other fields into generic JSON values.
func (s *StateSchema) Decode(b []byte) (State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := make(State, len(raw))
	for key, value := range raw {
		field, exists := s.Fields[key]
		if !exists || field.Type == nil || string(value) == "null" {
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return nil, fmt.Errorf("failed to decode state field %s: %w", key, err)
			}
			state[key] = v
			continue
		}
		ptr := reflect.New(field.Type)
		if err := json.Unmarshal(value, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("failed to decode state field %s: %w", key, err)
		}
		state[key] = ptr.Elem().Interface()
	}
	return state, nil
}

// Common reducer functions.

// DefaultReducer overwrites the existing value with the update.
func DefaultReducer(existing, update any) any {
	return update
}

// MergeReducer merges update map into existing map.
func MergeReducer(existing, update any) any {
	if existing == nil {
		existing = make(map[string]any)
	}

	existingMap, ok1 := existing.(map[string]any)
	updateMap, ok2 := update.(map[string]any)

	if !ok1 || !ok2 {
		// Fallback to default behavior if not maps
		return update
	}

	result := make(map[string]any, len(existingMap)+len(updateMap))
	for k, v := range existingMap {
		result[k] = v
	}
	for k, v := range updateMap {
		result[k] = v
	}
	return result
}

// MessageReducer appends the update to the existing messages. The result is
// always a new slice, so earlier snapshots never see later appends.
func MessageReducer(existing, update any) any {
	existingMsgs, ok1 := existing.([]model.Message)
	if existing != nil && !ok1 {
		return update
	}
	updateMsgs, ok2 := update.([]model.Message)
	if !ok2 {
		return update
	}
	result := make([]model.Message, 0, len(existingMsgs)+len(updateMsgs))
	result = append(result, existingMsgs...)
	return append(result, updateMsgs...)
}

// MessagesStateSchema creates a state schema for message-based workflows.
func MessagesStateSchema() *StateSchema {
	schema := NewStateSchema()
	schema.AddField(StateKeyMessages, StateField{
		Type:     reflect.TypeOf([]model.Message{}),
		Reducer:  MessageReducer,
		Default:  func() any { return []model.Message{} },
		Required: true,
	})
	schema.AddField(StateKeyLastResponse, StateField{
		Type:    reflect.TypeOf(""),
		Reducer: DefaultReducer,
	})
	schema.AddField(StateKeyMetadata, StateField{
		Type:    reflect.TypeOf(map[string]any{}),
		Reducer: MergeReducer,
		Default: func() any { return make(map[string]any) },
	})
	return schema
}
