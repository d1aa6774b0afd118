package postcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const webhookAttempts = 3

// Notifier delivers the finished transcript of each call, optionally with a
// generated summary, to a configured webhook. It implements
// transcript.Processor and runs entirely off the session goroutine.
type Notifier struct {
	HTTPClient *http.Client
	WebhookURL string
	Summarizer *Summarizer

	// Backoff between delivery attempts. Overridable in tests.
	Backoff time.Duration
}

func NewNotifier(webhookURL string, sum *Summarizer) *Notifier {
	return &Notifier{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		WebhookURL: webhookURL,
		Summarizer: sum,
		Backoff:    2 * time.Second,
	}
}

type callReport struct {
	CallID     string `json:"call_id"`
	Transcript string `json:"transcript"`
	Summary    string `json:"summary,omitempty"`
	EndedAt    string `json:"ended_at"`
}

// Process summarizes and delivers one call transcript. Failures are logged,
// never propagated: the call is already over and nothing upstream can retry.
func (n *Notifier) Process(callID, transcript string) {
	if n.WebhookURL == "" {
		log.Printf("[%s] no transcript webhook configured, dropping report", callID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	report := callReport{
		CallID:     callID,
		Transcript: transcript,
		EndedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if n.Summarizer != nil && transcript != "" {
		summary, err := n.Summarizer.Summarize(ctx, transcript)
		if err != nil {
			log.Printf("[%s] summary generation failed: %v", callID, err)
		} else {
			report.Summary = summary
		}
	}

	body, _ := json.Marshal(report)
	var lastErr error
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		if lastErr = n.post(ctx, body); lastErr == nil {
			log.Printf("[%s] transcript delivered to webhook", callID)
			return
		}
		log.Printf("[%s] webhook attempt %d/%d failed: %v", callID, attempt, webhookAttempts, lastErr)
		if attempt < webhookAttempts {
			select {
			case <-time.After(n.Backoff):
			case <-ctx.Done():
				log.Printf("[%s] webhook delivery abandoned: %v", callID, ctx.Err())
				return
			}
		}
	}
	log.Printf("[%s] transcript delivery gave up after %d attempts", callID, webhookAttempts)
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
