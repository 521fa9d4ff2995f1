package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is a client-side signaling connection. Writes are serialized by a
// mutex; reads happen on a single loop owned by the caller. A Conn is scoped
// to one call attempt and must not be shared between calls.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial connects to the relay server's WebSocket endpoint, e.g.
//
//	wss://signal.vetlink.example/ws
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay server: %w", err)
	}
	return &Conn{ws: ws}, nil
}

// Send validates and writes a message, guarded by the write mutex.
func (c *Conn) Send(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

// ReadLoop reads messages until the connection closes or an error occurs,
// invoking fn for each. Messages that fail validation are skipped — the relay
// never originates them, so they indicate a stale or misbehaving peer.
func (c *Conn) ReadLoop(fn func(Message)) error {
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			return fmt.Errorf("signaling read: %w", err)
		}
		if err := msg.Validate(); err != nil {
			continue
		}
		fn(msg)
	}
}

// Close closes the underlying WebSocket.
func (c *Conn) Close() error {
	return c.ws.Close()
}
