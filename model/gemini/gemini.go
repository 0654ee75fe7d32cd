//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package gemini provides a model implementation backed by the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"

	"trpc.group/trpc-go/trpc-hitl-go/log"
	"trpc.group/trpc-go/trpc-hitl-go/model"
	"trpc.group/trpc-go/trpc-hitl-go/tool"
)

var _ model.Model = (*Model)(nil)

const (
	// DefaultModel is the default Gemini chat model.
	DefaultModel = "gemini-2.0-flash"
	// GoogleAPIKeyEnv is the environment variable name for the Google API key.
	GoogleAPIKeyEnv = "GOOGLE_API_KEY"

	// outputKey wraps a tool result into the object a function response needs.
	outputKey = "output"
)

// Model implements model.Model over genai Models.GenerateContent.
type Model struct {
	client        *genai.Client
	name          string
	apiKey        string
	clientOptions *genai.ClientConfig
}

// Option configures a Gemini model.
type Option func(*Model)

// WithAPIKey sets the API key. It defaults to GOOGLE_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(m *Model) {
		m.apiKey = apiKey
	}
}

// WithClientOptions sets the genai client configuration.
func WithClientOptions(clientOptions *genai.ClientConfig) Option {
	return func(m *Model) {
		c := *clientOptions
		m.clientOptions = &c
	}
}

// New creates a Gemini model named name, or DefaultModel when empty.
func New(ctx context.Context, name string, opts ...Option) (*Model, error) {
	if name == "" {
		name = DefaultModel
	}
	m := &Model{
		name:          strings.TrimPrefix(name, "models/"),
		apiKey:        os.Getenv(GoogleAPIKeyEnv),
		clientOptions: &genai.ClientConfig{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clientOptions.APIKey == "" {
		m.clientOptions.APIKey = m.apiKey
	}
	if m.clientOptions.APIKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is not provided")
	}
	if m.clientOptions.Backend == genai.BackendUnspecified {
		m.clientOptions.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	m.client = client
	return m, nil
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(ctx context.Context, request *model.Request) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}
	contents, system, err := convertMessages(request.Messages)
	if err != nil {
		return nil, err
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Tools:             convertTools(request.Tools),
		StopSequences:     request.Stop,
	}
	if request.Temperature != nil {
		t := float32(*request.Temperature)
		config.Temperature = &t
	}
	if request.TopP != nil {
		p := float32(*request.TopP)
		config.TopP = &p
	}
	if request.MaxTokens != nil {
		config.MaxOutputTokens = int32(*request.MaxTokens)
	}

	responseChan := make(chan *model.Response, 1)
	go func() {
		defer close(responseChan)
		rsp := m.complete(ctx, contents, config)
		select {
		case responseChan <- rsp:
		case <-ctx.Done():
		}
	}()
	return responseChan, nil
}

func (m *Model) complete(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) *model.Response {
	result, err := m.client.Models.GenerateContent(ctx, m.name, contents, config)
	if err != nil {
		return &model.Response{
			Error: &model.ResponseError{
				Message: err.Error(),
				Type:    model.ErrorTypeAPIError,
			},
			Timestamp: time.Now(),
			Done:      true,
		}
	}

	response := &model.Response{
		ID:        result.ResponseID,
		Object:    model.ObjectTypeChatCompletion,
		Model:     m.name,
		Timestamp: time.Now(),
		Done:      true,
	}
	for i, cand := range result.Candidates {
		msg := model.NewAssistantMessage("")
		if cand.Content != nil {
			var text strings.Builder
			for j, part := range cand.Content.Parts {
				if part == nil {
					continue
				}
				text.WriteString(part.Text)
				if part.FunctionCall == nil {
					continue
				}
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					args = []byte("{}")
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("call_%d_%d", i, j)
				}
				msg.ToolCalls = append(msg.ToolCalls, model.NewToolCall(id, part.FunctionCall.Name, args))
			}
			msg.Content = text.String()
		}
		choice := model.Choice{Index: i, Message: msg}
		if cand.FinishReason != "" {
			reason := strings.ToLower(string(cand.FinishReason))
			choice.FinishReason = &reason
		}
		response.Choices = append(response.Choices, choice)
	}
	if u := result.UsageMetadata; u != nil {
		response.Usage = &model.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return response
}

// convertMessages splits system messages into the system instruction and maps
// the rest to user/model contents.
func convertMessages(messages []model.Message) ([]*genai.Content, *genai.Content, error) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := map[string]any{}
				if len(call.Function.Arguments) > 0 {
					if err := json.Unmarshal(call.Function.Arguments, &args); err != nil {
						return nil, nil, fmt.Errorf("tool call %s arguments: %w", call.ID, err)
					}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Function.Name,
					Args: args,
				}})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case model.RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolID,
					Name:     msg.ToolName,
					Response: map[string]any{outputKey: msg.Content},
				}}},
			})
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	var instruction *genai.Content
	if len(system) > 0 {
		instruction = genai.NewContentFromText(strings.Join(system, "\n"), genai.RoleUser)
	}
	return contents, instruction, nil
}

func convertTools(tools map[string]tool.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	decls := make([]*genai.FunctionDeclaration, 0, len(names))
	for _, name := range names {
		d := tools[name].Declaration()
		if d == nil {
			log.Warnf("tool %s has no declaration", name)
			continue
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  convertSchema(d.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func convertSchema(s *tool.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
		Items:       convertSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = convertSchema(v)
		}
	}
	return out
}
