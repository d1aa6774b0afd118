package postcall

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNotifier_DeliversReport(t *testing.T) {
	var got callReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad report payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, nil)
	n.Process("call-7", "User: hi\nAgent: hello")

	if got.CallID != "call-7" {
		t.Fatalf("call_id = %q", got.CallID)
	}
	if got.Transcript != "User: hi\nAgent: hello" {
		t.Fatalf("transcript = %q", got.Transcript)
	}
	if got.EndedAt == "" {
		t.Fatalf("ended_at missing")
	}
}

func TestNotifier_RetriesThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, nil)
	n.Backoff = time.Millisecond
	n.Process("call-1", "User: hi")

	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("webhook hit %d times, want 3", got)
	}
}

func TestNotifier_GivesUpAfterMaxAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, nil)
	n.Backoff = time.Millisecond
	n.Process("call-1", "User: hi")

	if got := atomic.LoadInt32(&hits); got != webhookAttempts {
		t.Fatalf("webhook hit %d times, want %d", got, webhookAttempts)
	}
}

func TestNotifier_NoWebhookConfigured(t *testing.T) {
	n := NewNotifier("", nil)
	// Must not panic or block.
	n.Process("call-1", "User: hi")
}

func TestNotifier_IncludesSummaryWhenAvailable(t *testing.T) {
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Caller asked about opening hours."}}]}`))
	}))
	defer llm.Close()

	var got callReport
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	sum := NewSummarizer("key", "model")
	sum.Endpoint = llm.URL
	n := NewNotifier(hook.URL, sum)
	n.Process("call-2", "User: when are you open?")

	if got.Summary != "Caller asked about opening hours." {
		t.Fatalf("summary = %q", got.Summary)
	}
}

func TestNotifier_SummaryFailureStillDelivers(t *testing.T) {
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer llm.Close()

	var delivered int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&delivered, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	sum := NewSummarizer("key", "model")
	sum.Endpoint = llm.URL
	n := NewNotifier(hook.URL, sum)
	n.Process("call-3", "User: hi")

	if atomic.LoadInt32(&delivered) != 1 {
		t.Fatalf("report not delivered despite summary failure")
	}
}
