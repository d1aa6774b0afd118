package bridge

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/oleksandr-gridin/deinetuer-ai/internal/tools"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/transcript"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/wire"
)

const (
	readDeadline = 60 * time.Second
	maxFrameSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler accepts telephony media streams and spawns one Session per call.
type Handler struct {
	Registry   *Registry
	Backends   func(callID string) BackendLink
	Processor  transcript.Processor
	Dispatcher *tools.Dispatcher

	// OnCallStart runs once per accepted call, off the session loop.
	// Used to kick off call recording.
	OnCallStart func(callID string)
}

// HandleStream upgrades the telephony connection and runs the session until
// either leg terminates.
func (h *Handler) HandleStream(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}

	callID := c.Request().Header.Get("X-Twilio-Call-Sid")
	if callID == "" {
		callID = fmt.Sprintf("call-%d", time.Now().UnixNano())
	}
	log.Printf("[%s] telephony connected from %s", callID, c.RealIP())

	sink := transcript.NewSink(h.Processor)
	sess := NewSession(callID, conn, h.Backends(callID), sink, h.Dispatcher, h.Registry)
	h.Registry.Register(sess)

	if h.OnCallStart != nil {
		go h.OnCallStart(callID)
	}

	go sess.Run()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[%s] telephony read error: %v", callID, err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		ev, err := wire.DecodeTelephony(raw)
		if err != nil {
			log.Printf("[%s] undecodable telephony frame: %v", callID, err)
			continue
		}
		if !sess.Deliver(ev) {
			break
		}
	}

	sess.CloseInbox()
	sess.Teardown()
	return nil
}

// HandleLogs streams session event notes to a diagnostic websocket client.
// ?call=<id> follows one call, ?call=all follows every current and future one.
func (h *Handler) HandleLogs(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	obs := NewObserver(conn)
	defer obs.Close()

	target := c.QueryParam("call")
	switch target {
	case "", "all":
		h.Registry.SubscribeAll(obs)
		defer h.Registry.UnsubscribeAll(obs)
	default:
		if !h.Registry.Subscribe(target, obs) {
			_ = obs.Notify(Note{CallID: target, Event: "error", Detail: "no such call"})
			return nil
		}
		defer h.Registry.Unsubscribe(target, obs)
	}

	// Hold the connection until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
