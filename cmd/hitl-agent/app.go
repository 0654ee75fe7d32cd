//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"trpc.group/trpc-go/trpc-hitl-go/graph"
	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint/inmemory"
	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint/redis"
	"trpc.group/trpc-go/trpc-hitl-go/graph/checkpoint/sqlite"
	"trpc.group/trpc-go/trpc-hitl-go/internal/config"
	"trpc.group/trpc-go/trpc-hitl-go/model"
	"trpc.group/trpc-go/trpc-hitl-go/model/gemini"
	"trpc.group/trpc-go/trpc-hitl-go/model/openai"
	"trpc.group/trpc-go/trpc-hitl-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-hitl-go/tool"
	"trpc.group/trpc-go/trpc-hitl-go/tool/human"
	"trpc.group/trpc-go/trpc-hitl-go/tool/search"
)

const (
	agentNode = "agent"
	toolsNode = "tools"

	agentInstruction = "You are a helpful assistant. Use the search tool for " +
		"facts you do not know and ask a human for help when a person's " +
		"judgement is needed."
)

// app holds everything a command needs to drive a session.
type app struct {
	executor *graph.Executor
	registry *prometheus.Registry
	closers  []func() error
}

// newApp wires the model, the tools and the checkpoint store from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	llm, err := newModel(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	return newAppWithModel(cfg, llm, newTools(cfg.Search))
}

func newAppWithModel(cfg *config.Config, llm model.Model, tools map[string]tool.Tool) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metric.NewRecorder(a.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	saver, closeSaver, err := newSaver(cfg.Store)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeSaver)

	g, err := buildGraph(llm, tools)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.executor, err = graph.NewExecutor(g,
		graph.WithCheckpointSaver(saver),
		graph.WithMetrics(recorder),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the checkpoint store.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildGraph wires agent -> (tools -> agent)* -> End.
func buildGraph(llm model.Model, tools map[string]tool.Tool) (*graph.Graph, error) {
	return graph.NewStateGraph(graph.MessagesStateSchema()).
		AddAgentNode(agentNode, llm, agentInstruction, tools,
			graph.WithDescription("Calls the chat model with the conversation")).
		AddToolsNode(toolsNode, tools,
			graph.WithDescription("Runs the tool calls of the last assistant message")).
		AddToolsConditionalEdges(agentNode, toolsNode, graph.End).
		AddEdge(toolsNode, agentNode).
		SetEntryPoint(agentNode).
		Compile()
}

func newModel(ctx context.Context, cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.Name, opts...), nil
	case config.ProviderGemini:
		m, err := gemini.New(ctx, cfg.Name, gemini.WithAPIKey(cfg.APIKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini model: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func newTools(cfg config.SearchConfig) map[string]tool.Tool {
	opts := []search.Option{search.WithMaxResults(cfg.MaxResults)}
	if cfg.TavilyAPIKey != "" {
		opts = append(opts, search.WithTavilyAPIKey(cfg.TavilyAPIKey))
	}
	tools := map[string]tool.Tool{}
	for _, t := range []tool.Tool{search.NewTool(opts...), human.NewTool()} {
		tools[t.Declaration().Name] = t
	}
	return tools
}

// newSaver opens the configured checkpoint store. The returned func closes it.
func newSaver(cfg config.StoreConfig) (graph.CheckpointSaver, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		s := inmemory.NewSaver().WithMaxCheckpointsPerSession(cfg.MaxHistory)
		return s, s.Close, nil
	case config.BackendSQLite:
		db, err := sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		s, err := sqlite.NewSaver(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		s.WithMaxCheckpointsPerSession(cfg.MaxHistory)
		return s, s.Close, nil
	case config.BackendRedis:
		s := redis.New(cfg.RedisAddr, "", 0,
			redis.WithPrefix(cfg.RedisPrefix),
			redis.WithMaxCheckpointsPerSession(cfg.MaxHistory),
		)
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
