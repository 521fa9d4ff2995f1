package relay

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vetlink/vetcall/internal/signal"
)

// sendQueueSize bounds the per-connection outbound queue. A slow reader that
// fills it loses messages rather than blocking the relay.
const sendQueueSize = 64

// Client is one live WebSocket connection on the relay server. Writes go
// through a buffered queue drained by WritePump; reads happen on ReadPump,
// which feeds the dispatcher.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	closeOnce sync.Once
}

// NewClient wraps an upgraded WebSocket connection.
func NewClient(conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		log:  log,
	}
}

// Send enqueues a message for delivery. Messages are dropped, with a log
// line, when the client's queue is full or already closed.
func (c *Client) Send(msg signal.Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal outbound message")
		return
	}
	defer func() {
		// Send on a closed channel if the pump shut down concurrently.
		if recover() != nil {
			c.log.Debug().Str("type", string(msg.Type)).Msg("dropped message for closed client")
		}
	}()
	select {
	case c.send <- raw:
	default:
		c.log.Warn().Str("type", string(msg.Type)).Msg("send queue full, dropping message")
	}
}

// WritePump drains the send queue onto the socket until the queue closes or
// a write fails.
func (c *Client) WritePump() {
	defer c.conn.Close()
	for raw := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			c.log.Debug().Err(err).Msg("write error")
			return
		}
	}
}

// ReadPump reads messages until the connection drops, dispatching each to h.
// On exit it runs the disconnect cleanup exactly once.
func (c *Client) ReadPump(h *Handler) {
	defer func() {
		h.Disconnect(c)
		c.CloseSend()
		c.conn.Close()
	}()

	for {
		var msg signal.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}
		if err := msg.Validate(); err != nil {
			c.log.Warn().Err(err).Msg("invalid message, ignoring")
			continue
		}
		h.Handle(c, msg)
	}
}

// CloseSend closes the outbound queue, stopping WritePump. Idempotent.
func (c *Client) CloseSend() {
	c.closeOnce.Do(func() { close(c.send) })
}
