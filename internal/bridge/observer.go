package bridge

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Observer is a passive diagnostic subscriber receiving session event
// notes over its own WebSocket. Observers never own the sessions they watch:
// detaching one never closes a call, and a torn-down session simply stops
// notifying.
type Observer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewObserver(conn *websocket.Conn) *Observer {
	return &Observer{conn: conn}
}

// Note is one diagnostic event broadcast to observers.
type Note struct {
	CallID string `json:"call_id"`
	Event  string `json:"event"`
	Detail string `json:"detail,omitempty"`
	At     string `json:"at"`
}

// Notify writes one note. Safe for concurrent use across sessions.
func (o *Observer) Notify(n Note) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return o.conn.WriteJSON(n)
}

// Close closes the underlying connection.
func (o *Observer) Close() error {
	return o.conn.Close()
}
