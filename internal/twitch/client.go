// Package twitch is the Twitch chat integration: IRC over WebSocket with
// separate bot and broadcaster send identities.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kittynXR/mewbot/internal/bus"
	"github.com/kittynXR/mewbot/internal/domain"
	"github.com/kittynXR/mewbot/pkg/log"
)

// DefaultServerURL is Twitch's IRC-over-WebSocket endpoint.
const DefaultServerURL = "wss://irc-ws.chat.twitch.tv:443"

// Config holds the chat credentials. BroadcasterToken is optional; without
// it sends as broadcaster report ErrNotConnected.
type Config struct {
	ServerURL        string `mapstructure:"server_url"`
	BotUsername      string `mapstructure:"bot_username"`
	BotToken         string `mapstructure:"bot_token"`
	BroadcasterToken string `mapstructure:"broadcaster_token"`
	Channel          string `mapstructure:"channel"`
}

// Client implements supervisor.Driver for the Twitch chat connection. The
// bot identity drives the supervised lifecycle; the broadcaster identity is
// a second session sharing it, used only for sends.
type Client struct {
	cfg Config
	bus *bus.Bus

	mu          sync.Mutex
	bot         *conn
	broadcaster *conn

	guard func() error
}

// conn is one authenticated IRC session. Writes are serialized; gorilla
// connections allow a single concurrent writer.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// NewClient creates an unconnected Twitch client.
func NewClient(cfg Config, b *bus.Bus) *Client {
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	return &Client{cfg: cfg, bus: b, guard: func() error { return domain.ErrNotConnected }}
}

// Bind wires the supervisor's connected-state guard into the client's send
// paths. Called once during startup wiring.
func (c *Client) Bind(guard func() error) { c.guard = guard }

// Connect dials and authenticates the bot session and, when a broadcaster
// token is configured, the broadcaster session.
func (c *Client) Connect(ctx context.Context) error {
	bot, err := c.dial(ctx, c.cfg.BotUsername, c.cfg.BotToken)
	if err != nil {
		return err
	}

	var broadcaster *conn
	if c.cfg.BroadcasterToken != "" {
		broadcaster, err = c.dial(ctx, c.cfg.Channel, c.cfg.BroadcasterToken)
		if err != nil {
			bot.close()
			return fmt.Errorf("broadcaster session: %w", err)
		}
	}

	c.mu.Lock()
	c.bot = bot
	c.broadcaster = broadcaster
	c.mu.Unlock()
	return nil
}

// Run pumps the bot session until the connection fails or ctx is cancelled.
// The broadcaster session is drained in the background; it only has to
// answer server PINGs.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	bot, broadcaster := c.bot, c.broadcaster
	c.mu.Unlock()
	if bot == nil {
		return domain.ErrNotConnected
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			bot.close()
			if broadcaster != nil {
				broadcaster.close()
			}
		case <-stop:
		}
	}()

	if broadcaster != nil {
		go c.drain(broadcaster)
	}

	l := log.With(string(domain.IntegrationTwitch))
	for {
		_, payload, err := bot.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		for _, raw := range strings.Split(string(payload), "\r\n") {
			if raw == "" {
				continue
			}
			line, err := ParseLine(raw)
			if err != nil {
				l.Debug().Str("raw", raw).Err(err).Msg("unparseable irc line")
				continue
			}
			if err := c.handle(bot, line); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handle(session *conn, line Line) error {
	switch line.Command {
	case "PING":
		return session.writeLine("PONG :" + line.Trailing())
	case "PRIVMSG":
		c.bus.Publish(domain.MessageReceived{
			Integration: domain.IntegrationTwitch,
			Source:      line.DisplayName(),
			Text:        line.Trailing(),
			At:          time.Now(),
		})
	case "RECONNECT":
		// Twitch asks clients to reconnect; surface it as a connection
		// failure so the supervisor's policy applies.
		return errors.New("server requested reconnect")
	}
	return nil
}

// Close releases both sessions.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bot != nil {
		c.bot.close()
		c.bot = nil
	}
	if c.broadcaster != nil {
		c.broadcaster.close()
		c.broadcaster = nil
	}
	return nil
}

// SendAsBot sends text to channel using the bot identity.
func (c *Client) SendAsBot(ctx context.Context, channel, text string) error {
	if err := c.guard(); err != nil {
		return err
	}
	c.mu.Lock()
	session := c.bot
	c.mu.Unlock()
	if session == nil {
		return domain.ErrNotConnected
	}
	return session.privmsg(ctx, channel, text)
}

// SendAsBroadcaster sends text to channel using the broadcaster identity.
func (c *Client) SendAsBroadcaster(ctx context.Context, channel, text string) error {
	if err := c.guard(); err != nil {
		return err
	}
	c.mu.Lock()
	session := c.broadcaster
	c.mu.Unlock()
	if session == nil {
		return domain.ErrNotConnected
	}
	return session.privmsg(ctx, channel, text)
}

// Channel returns the primary chat channel identifier.
func (c *Client) Channel() string { return c.cfg.Channel }

func (c *Client) dial(ctx context.Context, username, token string) (*conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.ServerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.ServerURL, err)
	}
	session := &conn{ws: ws}

	if deadline, ok := ctx.Deadline(); ok {
		ws.SetReadDeadline(deadline)
	}

	token = "oauth:" + strings.TrimPrefix(token, "oauth:")
	for _, cmd := range []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands",
		"PASS " + token,
		"NICK " + strings.ToLower(username),
	} {
		if err := session.writeLine(cmd); err != nil {
			session.close()
			return nil, err
		}
	}

	// Wait for the welcome numeric; NOTICE before it means rejected auth.
	if err := session.awaitWelcome(); err != nil {
		session.close()
		return nil, err
	}

	if err := session.writeLine("JOIN " + ircChannel(c.cfg.Channel)); err != nil {
		session.close()
		return nil, err
	}

	ws.SetReadDeadline(time.Time{})
	return session, nil
}

// drain keeps a send-only session alive: answer PINGs, discard the rest.
func (c *Client) drain(session *conn) {
	for {
		_, payload, err := session.ws.ReadMessage()
		if err != nil {
			return
		}
		for _, raw := range strings.Split(string(payload), "\r\n") {
			line, err := ParseLine(raw)
			if err == nil && line.Command == "PING" {
				session.writeLine("PONG :" + line.Trailing())
			}
		}
	}
}

func (s *conn) awaitWelcome() error {
	for {
		_, payload, err := s.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("awaiting welcome: %w", err)
		}
		for _, raw := range strings.Split(string(payload), "\r\n") {
			line, err := ParseLine(raw)
			if err != nil {
				continue
			}
			switch line.Command {
			case "001":
				return nil
			case "NOTICE":
				if text := line.Trailing(); strings.Contains(strings.ToLower(text), "authentication failed") {
					return fmt.Errorf("login rejected: %s", text)
				}
			}
		}
	}
}

func (s *conn) privmsg(ctx context.Context, channel, text string) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.ws.SetWriteDeadline(deadline)
	}
	return s.writeLine("PRIVMSG " + ircChannel(channel) + " :" + text)
}

func (s *conn) writeLine(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteMessage(websocket.TextMessage, []byte(line+"\r\n"))
}

func (s *conn) close() {
	s.ws.Close()
}

func ircChannel(name string) string {
	return "#" + strings.ToLower(strings.TrimPrefix(name, "#"))
}
