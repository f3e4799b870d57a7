// Package discord is the guild-bot integration. The supervisor owns the
// reconnect policy, so discordgo's automatic reconnection is disabled.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kittynXR/mewbot/internal/bus"
	"github.com/kittynXR/mewbot/internal/domain"
)

// Config holds the guild bot credentials and the relay channel.
type Config struct {
	Token          string `mapstructure:"token"`
	RelayChannelID string `mapstructure:"relay_channel_id"`
}

// Client implements supervisor.Driver over a discordgo session.
type Client struct {
	cfg Config
	bus *bus.Bus

	mu           sync.Mutex
	session      *discordgo.Session
	disconnected chan struct{}

	guard func() error
}

// NewClient creates an unconnected Discord client.
func NewClient(cfg Config, b *bus.Bus) *Client {
	return &Client{cfg: cfg, bus: b, guard: func() error { return domain.ErrNotConnected }}
}

// Bind wires the supervisor's connected-state guard into the send path.
func (c *Client) Bind(guard func() error) { c.guard = guard }

// Connect opens the gateway session.
func (c *Client) Connect(ctx context.Context) error {
	session, err := discordgo.New("Bot " + c.cfg.Token)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	session.ShouldReconnectOnError = false
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	disconnected := make(chan struct{})
	var once sync.Once

	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		once.Do(func() { close(disconnected) })
	})
	session.AddHandler(c.onMessage)

	opened := make(chan error, 1)
	go func() { opened <- session.Open() }()

	select {
	case err := <-opened:
		if err != nil {
			return fmt.Errorf("open gateway: %w", err)
		}
	case <-ctx.Done():
		session.Close()
		return ctx.Err()
	}

	c.mu.Lock()
	c.session = session
	c.disconnected = disconnected
	c.mu.Unlock()
	return nil
}

// Run blocks until the gateway drops or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	disconnected := c.disconnected
	c.mu.Unlock()
	if disconnected == nil {
		return domain.ErrNotConnected
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-disconnected:
		return errors.New("gateway connection dropped")
	}
}

// Close shuts the gateway session.
func (c *Client) Close() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session != nil {
		return session.Close()
	}
	return nil
}

// SendText posts text to the configured relay channel.
func (c *Client) SendText(ctx context.Context, text string) error {
	if err := c.guard(); err != nil {
		return err
	}
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return domain.ErrNotConnected
	}

	_, err := session.ChannelMessageSend(c.cfg.RelayChannelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send to channel %s: %w", c.cfg.RelayChannelID, err)
	}
	return nil
}

func (c *Client) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	if c.cfg.RelayChannelID != "" && m.ChannelID != c.cfg.RelayChannelID {
		return
	}

	c.bus.Publish(domain.MessageReceived{
		Integration: domain.IntegrationDiscord,
		Source:      m.Author.Username,
		Text:        m.Content,
		At:          time.Now(),
	})
}
