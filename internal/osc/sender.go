// Package osc sends chatbox text to VRChat over OSC (UDP).
package osc

import (
	"context"
	"fmt"
	"net"
	"sync"

	goosc "github.com/hypebeast/go-osc/osc"

	"github.com/kittynXR/mewbot/internal/domain"
)

// chatboxLimit is VRChat's chatbox character cap.
const chatboxLimit = 144

// chatboxAddress is the VRChat OSC endpoint for chatbox input.
const chatboxAddress = "/chatbox/input"

// Config holds the OSC target.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Sender implements supervisor.Driver over a connectionless UDP socket.
// Connect only validates the target; Run parks until shutdown since UDP has
// no liveness signal.
type Sender struct {
	cfg Config

	mu     sync.Mutex
	client *goosc.Client

	guard func() error
}

// NewSender creates an unconnected OSC sender.
func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg, guard: func() error { return domain.ErrNotConnected }}
}

// Bind wires the supervisor's connected-state guard into the send path.
func (s *Sender) Bind(guard func() error) { s.guard = guard }

// Connect validates the target address and prepares the UDP client.
func (s *Sender) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if _, err := net.ResolveUDPAddr("udp", addr); err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}

	s.mu.Lock()
	s.client = goosc.NewClient(s.cfg.Host, s.cfg.Port)
	s.mu.Unlock()
	return nil
}

// Run parks until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close drops the client.
func (s *Sender) Close() error {
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
	return nil
}

// SendChatbox pushes text into the VRChat chatbox, truncated to the chatbox
// cap, sent immediately and without the notification sound.
func (s *Sender) SendChatbox(ctx context.Context, text string) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return domain.ErrNotConnected
	}

	msg := goosc.NewMessage(chatboxAddress)
	msg.Append(truncate(text, chatboxLimit))
	msg.Append(true)  // send immediately, skip the keyboard
	msg.Append(false) // no notification sound
	if err := client.Send(msg); err != nil {
		return fmt.Errorf("send chatbox: %w", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
