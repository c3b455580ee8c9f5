package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsPongWait         = 60 * time.Second
	wsCloseGrace       = time.Second
)

// WebsocketOpener dials the engine's per-session event endpoint. This is the
// transport used for interactive (visual) runs.
type WebsocketOpener struct {
	// BaseURL is the engine's websocket root, e.g. ws://engine:8080.
	BaseURL string
	Log     zerolog.Logger
}

// Open dials {BaseURL}/sessions/{id}/events and starts the read pump.
func (o *WebsocketOpener) Open(ctx context.Context, sessionID string) (Channel, error) {
	url := fmt.Sprintf("%s/sessions/%s/events", o.BaseURL, sessionID)

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial session channel %s: %w", url, err)
	}

	ch := &wsChannel{
		conn:   conn,
		frames: make(chan []byte, 256),
		log:    o.Log.With().Str("session", sessionID).Logger(),
	}
	go ch.readPump()
	return ch, nil
}

type wsChannel struct {
	conn   *websocket.Conn
	frames chan []byte
	log    zerolog.Logger

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
	err       error
}

func (c *wsChannel) Frames() <-chan []byte { return c.frames }

// readPump relays inbound frames until the connection dies. It is the only
// reader of the connection.
func (c *wsChannel) readPump() {
	defer close(c.frames)

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			requested := c.closed
			c.mu.Unlock()
			if !requested && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
				c.log.Warn().Err(err).Msg("session channel read failed")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		c.frames <- data
	}
}

// Close sends a close frame and tears the connection down. Safe to call more
// than once and concurrently with the read pump.
func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		deadline := time.Now().Add(wsCloseGrace)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
	return nil
}

func (c *wsChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
