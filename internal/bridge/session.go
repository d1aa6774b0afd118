package bridge

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oleksandr-gridin/deinetuer-ai/internal/tools"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/transcript"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/wire"
)

// Phase is the session's turn-taking state.
type Phase int

const (
	// PhaseIdle waits for the telephony stream-start event.
	PhaseIdle Phase = iota
	// PhaseListening forwards caller audio to the backend.
	PhaseListening
	// PhaseResponding plays backend audio to the caller.
	PhaseResponding
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseResponding:
		return "responding"
	}
	return "unknown"
}

// Timer defaults; variables so tests can shrink them.
var (
	// startTimeout terminates connections that never send a start event.
	startTimeout = 10 * time.Second
	// responseTimeout bounds how long a committed turn may go unanswered.
	responseTimeout = 12 * time.Second

	heartbeatInterval = 25 * time.Second
)

// telephonyConn is the writable side of the telephony leg.
type telephonyConn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// BackendLink is the per-call connection manager to the speech backend.
type BackendLink interface {
	EnsureConnected()
	Send(msg []byte) error
	DropPending()
	Close()
	Events() <-chan wire.BackendEvent
	Closed() <-chan error
}

// Session bridges one telephony connection and one backend connection for a
// single call. All state transitions run on the session's own event loop, so
// concurrent deliveries from either leg are processed one at a time in
// arrival order.
type Session struct {
	id      string
	tele    telephonyConn
	backend BackendLink
	sink    *transcript.Sink
	disp    *tools.Dispatcher
	reg     *Registry

	inbox chan wire.TelephonyEvent
	quit  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	phase           Phase
	streamID        string
	lastItemID      string
	truncatedItemID string
	turnStartOffset int64
	latestOffset    int64

	obsMu     sync.Mutex
	observers map[*Observer]struct{}

	teardownOnce sync.Once
}

// NewSession wires a session for one call. The registry may be nil in tests.
func NewSession(id string, tele telephonyConn, be BackendLink, sink *transcript.Sink, disp *tools.Dispatcher, reg *Registry) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		tele:      tele,
		backend:   be,
		sink:      sink,
		disp:      disp,
		reg:       reg,
		inbox:     make(chan wire.TelephonyEvent, 128),
		quit:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		observers: make(map[*Observer]struct{}),
	}
}

// ID returns the stable call identifier.
func (s *Session) ID() string { return s.id }

// Phase returns the current turn-taking state.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// StreamID returns the telephony routing token, once known.
func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// Deliver hands one decoded telephony event to the session loop, preserving
// arrival order. It returns false once the session is shutting down.
func (s *Session) Deliver(ev wire.TelephonyEvent) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.inbox <- ev:
		return true
	case <-s.quit:
		return false
	}
}

// CloseInbox signals that the telephony leg produced its last event.
func (s *Session) CloseInbox() {
	close(s.inbox)
}

// Run processes events until either leg terminates, then tears down.
// It is the only goroutine that mutates session state.
func (s *Session) Run() {
	defer s.Teardown()

	watchdog := time.NewTimer(startTimeout)
	defer watchdog.Stop()
	watchdogC := watchdog.C

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	var respTimer *time.Timer
	var respC <-chan time.Time
	defer func() {
		if respTimer != nil {
			respTimer.Stop()
		}
	}()
	armResponse := func() {
		if respTimer == nil {
			respTimer = time.NewTimer(responseTimeout)
		} else {
			if !respTimer.Stop() {
				select {
				case <-respTimer.C:
				default:
				}
			}
			respTimer.Reset(responseTimeout)
		}
		respC = respTimer.C
	}
	disarmResponse := func() {
		if respTimer != nil {
			respTimer.Stop()
		}
		respC = nil
	}

	for {
		select {
		case ev, ok := <-s.inbox:
			if !ok {
				log.Printf("[%s] telephony leg closed", s.id)
				return
			}
			s.handleTelephony(ev, armResponse)
			if watchdogC != nil && s.Phase() != PhaseIdle {
				watchdog.Stop()
				watchdogC = nil
			}

		case ev := <-s.backend.Events():
			s.handleBackend(ev, disarmResponse)

		case err := <-s.backend.Closed():
			log.Printf("[%s] backend leg closed: %v", s.id, err)
			return

		case <-watchdogC:
			if s.Phase() == PhaseIdle {
				log.Printf("[%s] no start event within %s, terminating", s.id, startTimeout)
				return
			}
			watchdogC = nil

		case <-heartbeat.C:
			if err := s.tele.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Printf("[%s] heartbeat failed: %v", s.id, err)
				return
			}

		case <-respC:
			log.Printf("[%s] response timed out after %s, recycling backend connection", s.id, responseTimeout)
			respC = nil
			s.backend.Close()
			s.mu.Lock()
			s.phase = PhaseListening
			s.lastItemID = ""
			s.mu.Unlock()
			s.backend.EnsureConnected()
			s.broadcast("response_timeout", "")

		case <-s.quit:
			return
		}
	}
}

func (s *Session) handleTelephony(ev wire.TelephonyEvent, armResponse func()) {
	switch e := ev.(type) {
	case wire.StreamStart:
		s.mu.Lock()
		if s.phase != PhaseIdle {
			s.mu.Unlock()
			log.Printf("[%s] duplicate start event ignored", s.id)
			return
		}
		s.streamID = e.StreamSID
		s.latestOffset = 0
		s.turnStartOffset = 0
		s.phase = PhaseListening
		s.mu.Unlock()
		s.backend.EnsureConnected()
		log.Printf("[%s] stream started: %s", s.id, e.StreamSID)
		s.broadcast("stream_start", e.StreamSID)

	case wire.MediaFrame:
		s.mu.Lock()
		if s.streamID == "" && e.StreamSID != "" {
			// Degraded start: adopt the routing token from the first
			// media frame instead of the missing start event.
			s.streamID = e.StreamSID
			log.Printf("[%s] warning: no start event, adopting stream id %s from media frame", s.id, e.StreamSID)
		}
		implicitStart := s.phase == PhaseIdle
		if implicitStart {
			s.phase = PhaseListening
		}
		s.latestOffset = e.Timestamp
		s.mu.Unlock()
		if implicitStart {
			s.backend.EnsureConnected()
		}
		if err := s.backend.Send(wire.AudioAppend(e.Payload)); err != nil {
			log.Printf("[%s] forwarding caller audio failed: %v", s.id, err)
		}

	case wire.StreamStop:
		s.mu.Lock()
		listening := s.phase == PhaseListening
		if listening {
			s.phase = PhaseResponding
		}
		s.mu.Unlock()
		if !listening {
			return
		}
		if err := s.backend.Send(wire.AudioCommit()); err != nil {
			log.Printf("[%s] commit failed: %v", s.id, err)
		}
		if err := s.backend.Send(wire.ResponseCreate()); err != nil {
			log.Printf("[%s] response request failed: %v", s.id, err)
		}
		armResponse()
		s.broadcast("turn_committed", "")

	case wire.UnknownTelephony:
		log.Printf("[%s] ignoring telephony event %q", s.id, e.Event)
	}
}

func (s *Session) handleBackend(ev wire.BackendEvent, disarmResponse func()) {
	switch e := ev.(type) {
	case wire.SessionReady:
		log.Printf("[%s] backend session ready (%s)", s.id, e.Type)

	case wire.CallerTranscript:
		s.sink.AddCaller(e.Transcript)
		s.broadcast("caller_said", e.Transcript)

	case wire.AudioDelta:
		s.mu.Lock()
		if e.ItemID != "" && e.ItemID == s.truncatedItemID {
			// Late audio for an interrupted utterance; the caller must
			// never hear it.
			s.mu.Unlock()
			return
		}
		if s.phase == PhaseListening {
			// The backend's own turn detector opened a response without
			// an explicit commit from us; the caller's turn is over.
			s.phase = PhaseResponding
		}
		if s.phase != PhaseResponding {
			s.mu.Unlock()
			return
		}
		if s.lastItemID == "" {
			s.turnStartOffset = s.latestOffset
		}
		s.lastItemID = e.ItemID
		streamID := s.streamID
		s.mu.Unlock()
		if err := s.tele.WriteMessage(websocket.TextMessage, wire.OutboundMedia(streamID, e.Delta)); err != nil {
			log.Printf("[%s] forwarding assistant audio failed: %v", s.id, err)
			return
		}
		_ = s.tele.WriteMessage(websocket.TextMessage, wire.OutboundMark(streamID, "assistant-chunk"))

	case wire.SpeechStarted:
		s.mu.Lock()
		responding := s.phase == PhaseResponding
		s.mu.Unlock()
		if responding {
			s.interrupt()
			disarmResponse()
		}

	case wire.ResponseDone:
		if e.Transcript != "" {
			s.sink.AddAgent(e.Transcript)
		}
		s.mu.Lock()
		s.lastItemID = ""
		s.truncatedItemID = ""
		s.phase = PhaseListening
		s.mu.Unlock()
		disarmResponse()
		s.broadcast("agent_said", e.Transcript)

	case wire.FunctionCall:
		log.Printf("[%s] tool call requested: %s", s.id, e.Name)
		if s.disp != nil {
			go s.disp.Dispatch(s.ctx, e, s.backend.Send)
		}

	case wire.BackendError:
		log.Printf("[%s] backend error: %s", s.id, e.Message)

	case wire.UnknownBackend:
		// Extensible by event-type string; unhandled kinds are dropped.
	}
}

// interrupt handles caller barge-in: truncate the in-flight utterance bounded
// by how much the caller actually heard, flush unsent buffered audio, and
// tell telephony to discard queued playback.
func (s *Session) interrupt() {
	s.mu.Lock()
	elapsed := s.latestOffset - s.turnStartOffset
	if elapsed < 0 {
		elapsed = 0
	}
	itemID := s.lastItemID
	if itemID != "" {
		s.truncatedItemID = itemID
	}
	s.lastItemID = ""
	s.phase = PhaseListening
	streamID := s.streamID
	s.mu.Unlock()

	if itemID != "" {
		if err := s.backend.Send(wire.TruncateItem(itemID, elapsed)); err != nil {
			log.Printf("[%s] truncate failed: %v", s.id, err)
		}
	}
	s.backend.DropPending()
	if err := s.tele.WriteMessage(websocket.TextMessage, wire.OutboundClear(streamID)); err != nil {
		log.Printf("[%s] clear failed: %v", s.id, err)
	}
	log.Printf("[%s] caller interrupted assistant at +%dms", s.id, elapsed)
	s.broadcast("interrupted", itemID)
}

// Attach subscribes a diagnostic observer.
func (s *Session) Attach(o *Observer) {
	s.obsMu.Lock()
	s.observers[o] = struct{}{}
	s.obsMu.Unlock()
}

// Detach removes an observer. It never closes the session.
func (s *Session) Detach(o *Observer) {
	s.obsMu.Lock()
	delete(s.observers, o)
	s.obsMu.Unlock()
}

func (s *Session) broadcast(event, detail string) {
	s.obsMu.Lock()
	if len(s.observers) == 0 {
		s.obsMu.Unlock()
		return
	}
	obs := make([]*Observer, 0, len(s.observers))
	for o := range s.observers {
		obs = append(obs, o)
	}
	s.obsMu.Unlock()

	n := Note{CallID: s.id, Event: event, Detail: detail, At: time.Now().Format(time.RFC3339Nano)}
	for _, o := range obs {
		if err := o.Notify(n); err != nil {
			s.Detach(o)
		}
	}
}

// Teardown releases both legs, cancels timers and tool calls, detaches all
// observers, removes the session from the registry, and delivers the final
// transcript. Safe to call more than once.
func (s *Session) Teardown() {
	s.teardownOnce.Do(func() {
		close(s.quit)
		s.cancel()
		s.backend.Close()
		_ = s.tele.Close()

		s.obsMu.Lock()
		s.observers = make(map[*Observer]struct{})
		s.obsMu.Unlock()

		if s.reg != nil {
			s.reg.Remove(s.id)
		}
		s.sink.Deliver(s.id)
		log.Printf("[%s] session closed", s.id)
	})
}
