package postcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Summarizer produces a short written summary of a finished call using the
// chat completions API.
type Summarizer struct {
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
	Model      string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewSummarizer(apiKey, model string) *Summarizer {
	return &Summarizer{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Endpoint:   "https://api.openai.com/v1/chat/completions",
		APIKey:     apiKey,
		Model:      model,
	}
}

// Summarize returns a few sentences describing what happened on the call.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if s.APIKey == "" {
		return "", fmt.Errorf("summarizer api key missing")
	}

	messages := []chatMessage{
		{Role: "system", Content: "You summarize phone call transcripts. Reply with two or three plain sentences covering who called, what they wanted and how it was resolved."},
		{Role: "user", Content: transcript},
	}

	reqBody, _ := json.Marshal(chatCompletionsRequest{Model: s.Model, Messages: messages})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("summarize error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("summarize: empty choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
