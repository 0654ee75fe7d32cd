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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// defaultDuckDuckGoURL is the default base URL for DuckDuckGo Instant Answer API.
	defaultDuckDuckGoURL = "https://api.duckduckgo.com"
	// maxTitleLength is the maximum length for extracted titles.
	maxTitleLength = 50
)

type duckDuckGo struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

func newDuckDuckGo(baseURL, userAgent string, httpClient *http.Client) *duckDuckGo {
	return &duckDuckGo{baseURL: baseURL, userAgent: userAgent, httpClient: httpClient}
}

// flexibleString unmarshals both strings and numbers.
type flexibleString string

func (fs *flexibleString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*fs = flexibleString(s)
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*fs = flexibleString(fmt.Sprintf("%v", v))
	return nil
}

type ddgResponse struct {
	Definition       string         `json:"Definition"`
	DefinitionSource string         `json:"DefinitionSource"`
	Heading          string         `json:"Heading"`
	ImageWidth       flexibleString `json:"ImageWidth"`
	ImageHeight      flexibleString `json:"ImageHeight"`
	AbstractText     string         `json:"AbstractText"`
	AbstractSource   string         `json:"AbstractSource"`
	AbstractURL      string         `json:"AbstractURL"`
	Answer           string         `json:"Answer"`
	RelatedTopics    []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search implements Backend.
func (d *duckDuckGo) Search(ctx context.Context, query string, maxResults int) (*Response, error) {
	reqURL := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		d.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	var raw ddgResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var summaryParts []string
	if raw.Answer != "" {
		summaryParts = append(summaryParts, "Answer: "+raw.Answer)
	}
	if raw.AbstractText != "" {
		summaryParts = append(summaryParts, "Abstract: "+raw.AbstractText)
		if raw.AbstractSource != "" {
			summaryParts = append(summaryParts, "Source: "+raw.AbstractSource)
		}
	}
	if raw.Definition != "" {
		summaryParts = append(summaryParts, "Definition: "+raw.Definition)
	}

	var results []Result
	for _, topic := range raw.RelatedTopics {
		if len(results) >= maxResults {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		results = append(results, Result{
			Title:       extractTitle(topic.Text),
			URL:         topic.FirstURL,
			Description: topic.Text,
		})
	}
	if len(results) == 0 && len(summaryParts) > 0 {
		results = append(results, Result{
			Title:       "DuckDuckGo search: " + query,
			URL:         "https://duckduckgo.com/?q=" + url.QueryEscape(query),
			Description: strings.Join(summaryParts, " | "),
		})
	}

	summary := fmt.Sprintf("Found %d results for query '%s'", len(results), query)
	if len(summaryParts) > 0 {
		summary = strings.Join(summaryParts, " | ")
	}
	return &Response{Query: query, Results: results, Summary: summary}, nil
}

// extractTitle takes the text before " - " and caps its length.
func extractTitle(text string) string {
	title := strings.TrimSpace(text)
	if before, _, ok := strings.Cut(text, " - "); ok && before != "" {
		title = strings.TrimSpace(before)
	}
	if len(title) > maxTitleLength {
		return title[:maxTitleLength-3] + "..."
	}
	return title
}
