package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/imagegenio/orchestrator/internal/eventbus"
	"github.com/imagegenio/orchestrator/internal/infrastructure/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWebSocket handles GET /ws?request_id=..., the WebSocket counterpart
// to HandleEvents. One connection streams one request's lifecycle events;
// the bus's synchronous initial_state delivery applies here too.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	requestID := c.Query("request_id")
	if requestID == "" {
		respondError(c, ErrBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.ErrorContext(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.Bus.Subscribe(requestID)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	done := make(chan struct{})
	go drainIncoming(conn, done)

	seq := 0
	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(wsEnvelope(seq, event)); err != nil {
				return
			}
			seq++
			if event.Type.IsTerminal() {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// drainIncoming discards any client-sent frames; this is a
// publish-only stream, but a read loop is required so the connection
// notices client disconnects and control frames are handled.
func drainIncoming(conn *websocket.Conn, done chan<- struct{}) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			close(done)
			return
		}
	}
}

func wsEnvelope(seq int, event eventbus.Event) map[string]interface{} {
	return map[string]interface{}{
		"id":        seq,
		"type":      strings.ToLower(string(event.Type)),
		"data":      event.Data,
		"timestamp": event.Timestamp,
	}
}
