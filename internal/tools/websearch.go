package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oleksandr-gridin/deinetuer-ai/internal/wire"
)

// WebSearch answers factual questions via the DuckDuckGo instant-answer API.
type WebSearch struct {
	HTTPClient *http.Client
	Endpoint   string
}

func NewWebSearch() *WebSearch {
	return &WebSearch{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Endpoint:   "https://api.duckduckgo.com/",
	}
}

type webSearchArgs struct {
	Query string `json:"query"`
}

type instantAnswer struct {
	AbstractText  string `json:"AbstractText"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

// Handle implements the tool handler contract.
func (w *WebSearch) Handle(ctx context.Context, args json.RawMessage) (any, error) {
	var in webSearchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid search arguments: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("search query is empty")
	}

	q := url.Values{}
	q.Set("q", in.Query)
	q.Set("format", "json")
	q.Set("no_html", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search error: status=%d body=%s", resp.StatusCode, string(b))
	}

	var ia instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&ia); err != nil {
		return nil, err
	}
	answer := ia.Answer
	if answer == "" {
		answer = ia.AbstractText
	}
	if answer == "" && len(ia.RelatedTopics) > 0 {
		answer = ia.RelatedTopics[0].Text
	}
	if answer == "" {
		answer = "no results found"
	}
	return map[string]string{"result": answer}, nil
}

// Definition returns the tool schema advertised to the backend.
func (w *WebSearch) Definition() wire.ToolDef {
	return wire.ToolDef{
		Type:        "function",
		Name:        "web_search",
		Description: "Search the web for a short factual answer.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"The search query"}},"required":["query"]}`),
	}
}
