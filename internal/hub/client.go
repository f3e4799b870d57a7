package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kittynXR/mewbot/internal/config"
	"github.com/kittynXR/mewbot/internal/domain"
	"github.com/kittynXR/mewbot/pkg/log"
)

// Handlers are the read pump's callbacks. OnActivate fires once when the
// client sends the handshake ACK; OnCommand receives every later frame.
type Handlers struct {
	OnActivate func(*Client)
	OnCommand  func(*Client, []byte)
}

// Client is one dashboard connection. It exists only for the connection's
// lifetime and starts in the awaiting-ack state: no state pushes are sent
// and non-ACK frames are ignored until the handshake completes.
type Client struct {
	ID     string
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	quit   chan struct{}
	stop   sync.Once
	active atomic.Bool
	config config.WebSocketConfig
}

// NewClient wraps an accepted connection.
func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:     id,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		quit:   make(chan struct{}),
		config: cfg,
	}
}

// shutdown marks the client dead. Send is never closed; late SendMessage
// calls from a still-running read pump must not panic the process.
func (c *Client) shutdown() {
	c.stop.Do(func() { close(c.quit) })
}

// Active reports whether the handshake completed.
func (c *Client) Active() bool {
	return c.active.Load()
}

// Greet sends the literal readiness marker, immediately after accept.
func (c *Client) Greet() error {
	c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
	return c.Conn.WriteMessage(websocket.TextMessage, []byte(domain.HandshakeReady))
}

// ReadPump consumes inbound frames until the connection drops. An abrupt
// disconnect removes only this client from the broadcast set.
func (c *Client) ReadPump(handlers Handlers) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	l := log.L().With().Str(log.FieldClientID, c.ID).Logger()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		if !c.Active() {
			if string(message) == domain.HandshakeAck {
				c.active.Store(true)
				l.Info().Msg("dashboard client active")
				if handlers.OnActivate != nil {
					handlers.OnActivate(c)
				}
			}
			// Anything else before ACK is ignored.
			continue
		}

		if handlers.OnCommand != nil {
			handlers.OnCommand(c, message)
		}
	}
}

// WritePump drains the send buffer and keeps the connection alive with
// periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.quit:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a message for this client only. A full buffer or a
// dead client drops the message rather than blocking the caller.
func (c *Client) SendMessage(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case <-c.quit:
	case c.Send <- data:
	default:
	}
	return nil
}
