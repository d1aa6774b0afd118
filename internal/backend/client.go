package backend

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oleksandr-gridin/deinetuer-ai/internal/wire"
)

type connState int

const (
	stateIdle connState = iota
	statePending
	stateOpen
)

// Client owns the lazily-created connection to the speech backend for one
// call. Connect happens on demand; messages sent before the connection is
// open are buffered and drained once, in order, at open.
type Client struct {
	URL    string
	APIKey string
	// Config supplies the session-configuration handshake sent at open.
	// It is read at connect time so settings updates apply to the next
	// connection.
	Config func() wire.SessionConfig

	mu      sync.Mutex
	state   connState
	gen     int
	conn    *websocket.Conn
	pending audioQueue

	events chan wire.BackendEvent
	closed chan error
}

// NewClient creates a backend client for a single call. configFn must not be nil.
func NewClient(url, apiKey string, configFn func() wire.SessionConfig) *Client {
	return &Client{
		URL:    url,
		APIKey: apiKey,
		Config: configFn,
		events: make(chan wire.BackendEvent, 64),
		closed: make(chan error, 1),
	}
}

// Events delivers decoded backend events in arrival order.
func (c *Client) Events() <-chan wire.BackendEvent { return c.events }

// Closed fires once when an established connection terminates unexpectedly.
// A failed dial does not fire it; the session keeps buffering and may call
// EnsureConnected again.
func (c *Client) Closed() <-chan error { return c.closed }

// EnsureConnected lazily opens the backend connection. It is idempotent:
// calling it while a connection is pending or open is a no-op. The dial runs
// in the background so callers can keep queueing audio immediately.
func (c *Client) EnsureConnected() {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return
	}
	c.state = statePending
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.connect(gen)
}

func (c *Client) connect(gen int) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := dialer.Dial(c.URL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("backend dial failed with status %d: %v", resp.StatusCode, err)
		} else {
			log.Printf("backend dial failed: %v", err)
		}
		c.mu.Lock()
		if c.gen == gen {
			c.state = stateIdle
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		// Closed while the dial was in flight.
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	if err := conn.WriteMessage(websocket.TextMessage, wire.SessionUpdate(c.Config())); err != nil {
		log.Printf("backend handshake failed: %v", err)
		c.conn = nil
		c.state = stateIdle
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	queued := c.pending.drain()
	for _, msg := range queued {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("backend buffered send failed: %v", err)
			c.conn = nil
			c.state = stateIdle
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
	}
	c.state = stateOpen
	c.mu.Unlock()

	if len(queued) > 0 {
		log.Printf("backend connected, drained %d buffered frames", len(queued))
	}
	go c.readPump(conn, gen)
}

func (c *Client) readPump(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			expected := c.gen != gen
			if !expected {
				c.conn = nil
				c.state = stateIdle
			}
			c.mu.Unlock()
			if !expected {
				select {
				case c.closed <- err:
				default:
				}
			}
			return
		}
		ev, derr := wire.DecodeBackend(raw)
		if derr != nil {
			log.Printf("dropping malformed backend event: %v", derr)
			continue
		}
		c.events <- ev
	}
}

// Send writes the message immediately if the connection is open; otherwise
// it appends to the pending buffer for the drain at open.
func (c *Client) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateOpen && c.conn != nil {
		return c.conn.WriteMessage(websocket.TextMessage, msg)
	}
	c.pending.push(msg)
	return nil
}

// Open reports whether the connection is currently established.
func (c *Client) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

// PendingLen reports how many messages are buffered awaiting connection open.
func (c *Client) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.len()
}

// DropPending discards any buffered not-yet-sent messages. Used on caller
// interruption so stale audio never reaches the backend.
func (c *Client) DropPending() {
	c.mu.Lock()
	n := c.pending.len()
	c.pending.drain()
	c.mu.Unlock()
	if n > 0 {
		log.Printf("dropped %d buffered backend frames on interruption", n)
	}
}

// Close tears down the current connection, if any. It is idempotent and does
// not fire the Closed channel; a new EnsureConnected may follow.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = stateIdle
	c.gen++
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
