//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultTavilyURL = "https://api.tavily.com/search"

type tavily struct {
	httpClient *http.Client
	url        string
	apiKey     string
	userAgent  string
}

func newTavily(url, apiKey, userAgent string, httpClient *http.Client) *tavily {
	return &tavily{url: url, apiKey: apiKey, userAgent: userAgent, httpClient: httpClient}
}

type tavilyRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search implements Backend.
func (t *tavily) Search(ctx context.Context, query string, maxResults int) (*Response, error) {
	body, err := json.Marshal(tavilyRequest{Query: query, MaxResults: maxResults, IncludeAnswer: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var raw tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := &Response{Query: query, Summary: raw.Answer}
	for _, r := range raw.Results {
		out.Results = append(out.Results, Result{Title: r.Title, URL: r.URL, Description: r.Content})
	}
	if out.Summary == "" {
		out.Summary = fmt.Sprintf("Found %d results for query '%s'", len(out.Results), query)
	}
	return out, nil
}
