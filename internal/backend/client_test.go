package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oleksandr-gridin/deinetuer-ai/internal/wire"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeRealtime records the messages a client sends and can push events back.
type fakeRealtime struct {
	srv *httptest.Server

	mu       sync.Mutex
	received []map[string]any
	conns    []*websocket.Conn
	headers  http.Header
}

func newFakeRealtime(t *testing.T) *fakeRealtime {
	t.Helper()
	f := &fakeRealtime{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.headers = r.Header.Clone()
		f.mu.Unlock()
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			if err := json.Unmarshal(raw, &m); err != nil {
				continue
			}
			f.mu.Lock()
			f.received = append(f.received, m)
			f.mu.Unlock()
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRealtime) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeRealtime) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.received))
	for _, m := range f.received {
		if typ, ok := m["type"].(string); ok {
			out = append(out, typ)
		}
	}
	return out
}

func (f *fakeRealtime) push(t *testing.T, payload string) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		t.Fatalf("no server-side connection to push on")
	}
	conn := f.conns[len(f.conns)-1]
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig() wire.SessionConfig {
	return wire.SessionConfig{Voice: "alloy", Modalities: []string{"text", "audio"}}
}

func TestClient_BufferedFramesDrainInOrderAfterHandshake(t *testing.T) {
	f := newFakeRealtime(t)
	c := NewClient(f.url(), "test-key", testConfig)

	// Queue audio before any connection exists.
	for _, payload := range []string{"a", "b", "c"} {
		if err := c.Send(wire.AudioAppend(payload)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if got := c.PendingLen(); got != 3 {
		t.Fatalf("pending = %d, want 3", got)
	}

	c.EnsureConnected()
	waitFor(t, "drain", func() bool { return len(f.types()) == 4 })

	types := f.types()
	if types[0] != "session.update" {
		t.Fatalf("first message = %s, want session.update", types[0])
	}
	f.mu.Lock()
	audios := make([]string, 0, 3)
	for _, m := range f.received[1:] {
		audios = append(audios, m["audio"].(string))
	}
	f.mu.Unlock()
	if audios[0] != "a" || audios[1] != "b" || audios[2] != "c" {
		t.Fatalf("drained out of order: %v", audios)
	}
	if got := c.PendingLen(); got != 0 {
		t.Fatalf("pending after drain = %d", got)
	}

	// Later sends go straight through.
	if err := c.Send(wire.AudioCommit()); err != nil {
		t.Fatalf("send after open: %v", err)
	}
	waitFor(t, "direct send", func() bool {
		types := f.types()
		return len(types) == 5 && types[4] == "input_audio_buffer.commit"
	})
}

func TestClient_EnsureConnectedIdempotent(t *testing.T) {
	f := newFakeRealtime(t)
	c := NewClient(f.url(), "test-key", testConfig)

	c.EnsureConnected()
	c.EnsureConnected()
	c.EnsureConnected()
	waitFor(t, "open", c.Open)

	f.mu.Lock()
	conns := len(f.conns)
	auth := f.headers.Get("Authorization")
	f.mu.Unlock()
	if conns != 1 {
		t.Fatalf("dialed %d times, want 1", conns)
	}
	if auth != "Bearer test-key" {
		t.Fatalf("auth header = %q", auth)
	}
}

func TestClient_DialFailureIsNonFatal(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/realtime", "k", testConfig)
	c.EnsureConnected()

	// Audio keeps buffering while the dial fails.
	_ = c.Send(wire.AudioAppend("x"))
	waitFor(t, "dial failure reset", func() bool { return !c.Open() && c.PendingLen() == 1 })

	select {
	case err := <-c.Closed():
		t.Fatalf("dial failure fired closed: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_EventsDecodedInOrder(t *testing.T) {
	f := newFakeRealtime(t)
	c := NewClient(f.url(), "k", testConfig)
	c.EnsureConnected()
	waitFor(t, "open", c.Open)

	f.push(t, `{"type":"session.created"}`)
	f.push(t, `{"type":"response.audio.delta","item_id":"i1","delta":"d1"}`)
	f.push(t, `{"type":"response.done"}`)

	want := []wire.BackendEvent{
		wire.SessionReady{Type: "session.created"},
		wire.AudioDelta{ItemID: "i1", Delta: "d1"},
		wire.ResponseDone{},
	}
	for i, w := range want {
		select {
		case got := <-c.Events():
			if got != w {
				t.Fatalf("event %d = %#v, want %#v", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestClient_RemoteCloseFiresClosed(t *testing.T) {
	f := newFakeRealtime(t)
	c := NewClient(f.url(), "k", testConfig)
	c.EnsureConnected()
	waitFor(t, "open", c.Open)

	f.mu.Lock()
	_ = f.conns[0].Close()
	f.mu.Unlock()

	select {
	case err := <-c.Closed():
		if err == nil {
			t.Fatalf("closed fired with nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("remote close did not fire closed")
	}
}

func TestClient_LocalCloseIsSilent(t *testing.T) {
	f := newFakeRealtime(t)
	c := NewClient(f.url(), "k", testConfig)
	c.EnsureConnected()
	waitFor(t, "open", c.Open)

	c.Close()
	c.Close()

	select {
	case err := <-c.Closed():
		t.Fatalf("local close fired closed: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if c.Open() {
		t.Fatalf("still open after close")
	}
}

func TestClient_DropPendingDiscardsBufferedAudio(t *testing.T) {
	c := NewClient("ws://unused", "k", testConfig)
	_ = c.Send(wire.AudioAppend("a"))
	_ = c.Send(wire.AudioAppend("b"))
	c.DropPending()
	if got := c.PendingLen(); got != 0 {
		t.Fatalf("pending = %d after drop", got)
	}
}
