//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

// Package search provides the web search tool offered to the agent. It
// queries Tavily when an API key is configured and DuckDuckGo's Instant
// Answer API otherwise.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-hitl-go/log"
	"trpc.group/trpc-go/trpc-hitl-go/tool"
	"trpc.group/trpc-go/trpc-hitl-go/tool/function"
)

const (
	// ToolName is the name the model uses to call the search tool.
	ToolName = "web_search"
	// DefaultMaxResults is the number of results returned per query.
	DefaultMaxResults = 2

	defaultUserAgent = "trpc-hitl-go-search/1.0"
	defaultTimeout   = 30 * time.Second
)

// Result is a single search hit.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Response is what the search tool returns to the model.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Summary string   `json:"summary"`
}

// Backend runs one query against a search provider.
type Backend interface {
	Search(ctx context.Context, query string, maxResults int) (*Response, error)
}

// Option is a functional option for configuring the search tool.
type Option func(*config)

type config struct {
	maxResults   int
	tavilyAPIKey string
	tavilyURL    string
	ddgURL       string
	userAgent    string
	httpClient   *http.Client
	backend      Backend
}

// WithMaxResults sets how many results are returned per query.
func WithMaxResults(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithTavilyAPIKey selects the Tavily backend.
func WithTavilyAPIKey(key string) Option {
	return func(c *config) {
		c.tavilyAPIKey = key
	}
}

// WithTavilyBaseURL overrides the Tavily endpoint.
func WithTavilyBaseURL(u string) Option {
	return func(c *config) {
		c.tavilyURL = u
	}
}

// WithDuckDuckGoBaseURL overrides the DuckDuckGo endpoint.
func WithDuckDuckGoBaseURL(u string) Option {
	return func(c *config) {
		c.ddgURL = u
	}
}

// WithUserAgent sets the user agent for HTTP requests.
func WithUserAgent(userAgent string) Option {
	return func(c *config) {
		c.userAgent = userAgent
	}
}

// WithHTTPClient sets the HTTP client to use.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *config) {
		c.httpClient = httpClient
	}
}

// WithBackend replaces the provider entirely.
func WithBackend(b Backend) Option {
	return func(c *config) {
		c.backend = b
	}
}

type searchRequest struct {
	Query string `json:"query" jsonschema:"description=The search query to execute"`
}

type searchTool struct {
	backend    Backend
	maxResults int
}

// NewTool creates the web search tool.
func NewTool(opts ...Option) tool.CallableTool {
	cfg := &config{
		maxResults: DefaultMaxResults,
		tavilyURL:  defaultTavilyURL,
		ddgURL:     defaultDuckDuckGoURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	backend := cfg.backend
	switch {
	case backend != nil:
	case cfg.tavilyAPIKey != "":
		backend = newTavily(cfg.tavilyURL, cfg.tavilyAPIKey, cfg.userAgent, cfg.httpClient)
	default:
		backend = newDuckDuckGo(cfg.ddgURL, cfg.userAgent, cfg.httpClient)
	}
	t := &searchTool{backend: backend, maxResults: cfg.maxResults}
	return function.NewFunctionTool(
		t.search,
		function.WithName(ToolName),
		function.WithDescription("Search the web for up-to-date facts. "+
			"Returns a short list of results with titles, links and snippets."),
	)
}

// search returns provider failures as errors so the run fails and the node
// can be retried. An empty query is answered inside the response.
func (t *searchTool) search(ctx context.Context, req searchRequest) (Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Response{
			Query:   req.Query,
			Results: []Result{},
			Summary: "Error: Empty search query provided",
		}, nil
	}
	rsp, err := t.backend.Search(ctx, req.Query, t.maxResults)
	if err != nil {
		log.Warnf("search %q failed: %v", req.Query, err)
		return Response{}, fmt.Errorf("search %q: %w", req.Query, err)
	}
	if len(rsp.Results) > t.maxResults {
		rsp.Results = rsp.Results[:t.maxResults]
	}
	if rsp.Results == nil {
		rsp.Results = []Result{}
	}
	return *rsp, nil
}
