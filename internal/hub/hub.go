// Package hub maintains the set of connected dashboard clients and fans
// state pushes out to the ones that completed the READY/ACK handshake.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kittynXR/mewbot/internal/config"
	"github.com/kittynXR/mewbot/pkg/log"
)

// Hub owns the client registry. Clients register on accept and are removed
// on disconnect; a slow client is evicted rather than allowed to stall the
// broadcast loop.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	stopped    chan struct{}
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		stopped:    make(chan struct{}),
		config:     cfg,
	}
}

// Run processes registry changes and broadcasts until ctx is cancelled.
// After it returns, registry calls fall through instead of blocking so
// lingering read pumps can finish their deferred unregister.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldClientID, client.ID).Msg("dashboard client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				client.shutdown()
			}
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldClientID, client.ID).Msg("dashboard client unregistered")

		case data := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				if !client.Active() {
					continue
				}
				select {
				case client.Send <- data:
				default:
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a freshly accepted client.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopped:
		client.shutdown()
	}
}

// Unregister removes a client and signals its write pump to stop.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
		client.shutdown()
	}
}

// BroadcastActive pushes a message to every client that completed the
// handshake. Clients still awaiting ACK receive nothing.
func (h *Hub) BroadcastActive(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	case <-h.stopped:
	}
	return nil
}

// ActiveCount reports how many clients completed the handshake.
func (h *Hub) ActiveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, client := range h.clients {
		if client.Active() {
			n++
		}
	}
	return n
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.shutdown()
		delete(h.clients, id)
	}
}
