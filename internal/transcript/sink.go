package transcript

import (
	"log"
	"strings"
	"sync"
)

// Processor receives the full accumulated transcript once the call ends.
// Implementations own summarization and downstream delivery.
type Processor interface {
	Process(callID, transcript string)
}

// Sink accumulates per-turn text for one call and hands the result to the
// processor exactly once at session end.
type Sink struct {
	proc Processor

	mu        sync.Mutex
	lines     []string
	delivered bool
}

// NewSink creates a sink delivering to proc. A nil proc logs the transcript
// instead of delivering it.
func NewSink(proc Processor) *Sink {
	return &Sink{proc: proc}
}

// AddCaller appends one completed caller utterance.
func (s *Sink) AddCaller(text string) {
	s.add("User: " + strings.TrimSpace(text))
}

// AddAgent appends one completed assistant utterance.
func (s *Sink) AddAgent(text string) {
	s.add("Agent: " + strings.TrimSpace(text))
}

func (s *Sink) add(line string) {
	if strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "User:"), "Agent:")) == "" {
		return
	}
	s.mu.Lock()
	if !s.delivered {
		s.lines = append(s.lines, line)
	}
	s.mu.Unlock()
}

// Text returns the transcript accumulated so far.
func (s *Sink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}

// Deliver hands the transcript to the processor. Repeat calls are no-ops, so
// teardown paths may call it freely.
func (s *Sink) Deliver(callID string) {
	s.mu.Lock()
	if s.delivered {
		s.mu.Unlock()
		return
	}
	s.delivered = true
	text := strings.Join(s.lines, "\n")
	s.mu.Unlock()

	if text == "" {
		return
	}
	if s.proc == nil {
		log.Printf("[%s] transcript:\n%s", callID, text)
		return
	}
	s.proc.Process(callID, text)
}
