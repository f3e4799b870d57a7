package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittynXR/mewbot/internal/config"
	"github.com/kittynXR/mewbot/internal/domain"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       5 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
	}
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startHub runs a hub and an httptest server that performs the full accept
// sequence for every connection, and returns a dialer-ready URL.
func startHub(t *testing.T, handlers Handlers) (*Hub, string) {
	t.Helper()

	h := NewHub(testWSConfig())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		client := NewClient(uuid.New().String(), h, conn, testWSConfig())
		require.NoError(t, client.Greet())
		h.Register(client)
		go client.WritePump()
		go client.ReadPump(handlers)
	}))
	t.Cleanup(srv.Close)

	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestHandshakeGreeting(t *testing.T) {
	_, url := startHub(t, Handlers{})
	conn := dial(t, url)

	assert.Equal(t, domain.HandshakeReady, readText(t, conn))
}

func TestNoBroadcastsBeforeAck(t *testing.T) {
	h, url := startHub(t, Handlers{})
	conn := dial(t, url)
	require.Equal(t, domain.HandshakeReady, readText(t, conn))

	// The client is registered but not yet active, so the broadcast must
	// not reach it.
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.ActiveCount())

	require.NoError(t, h.BroadcastActive(map[string]string{"type": "update"}))

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected read timeout, got a frame before ACK")
}

func TestAckActivatesClient(t *testing.T) {
	var activations atomic.Int32
	h, url := startHub(t, Handlers{
		OnActivate: func(c *Client) { activations.Add(1) },
	})
	conn := dial(t, url)
	require.Equal(t, domain.HandshakeReady, readText(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(domain.HandshakeAck)))

	require.Eventually(t, func() bool {
		return h.ActiveCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), activations.Load())

	require.NoError(t, h.BroadcastActive(map[string]string{"type": "update"}))
	assert.Contains(t, readText(t, conn), `"type":"update"`)
}

func TestFramesBeforeAckAreIgnored(t *testing.T) {
	var commands atomic.Int32
	h, url := startHub(t, Handlers{
		OnCommand: func(c *Client, raw []byte) { commands.Add(1) },
	})
	conn := dial(t, url)
	require.Equal(t, domain.HandshakeReady, readText(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"sendChat"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(domain.HandshakeAck)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"sendChat"}`)))

	require.Eventually(t, func() bool {
		return commands.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.ActiveCount())
}

func TestEvictedClientSendDoesNotPanic(t *testing.T) {
	h := NewHub(testWSConfig())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	// No pumps running, so the send buffer fills up and the broadcast
	// loop evicts the client as slow.
	client := NewClient(uuid.New().String(), h, nil, testWSConfig())
	client.active.Store(true)
	h.Register(client)
	for i := 0; i < cap(client.Send); i++ {
		client.Send <- []byte("backlog")
	}

	require.NoError(t, h.BroadcastActive(map[string]string{"type": "update"}))

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		_, ok := h.clients[client.ID]
		return !ok
	}, time.Second, 5*time.Millisecond)

	// A read pump can still be mid-dispatch when the hub evicts its
	// client. Sending to the evicted client must be a silent no-op.
	assert.NotPanics(t, func() {
		assert.NoError(t, client.SendMessage(map[string]string{"type": "update"}))
	})
}

func TestRegistryCallsReturnAfterShutdown(t *testing.T) {
	h := NewHub(testWSConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	client := NewClient(uuid.New().String(), h, nil, testWSConfig())
	h.Register(client)

	cancel()
	select {
	case <-h.stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Unregister(client)
		h.Register(NewClient(uuid.New().String(), h, nil, testWSConfig()))
		assert.NoError(t, h.BroadcastActive(map[string]string{"type": "update"}))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry call blocked after hub shutdown")
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	h, url := startHub(t, Handlers{})
	conn := dial(t, url)
	require.Equal(t, domain.HandshakeReady, readText(t, conn))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(domain.HandshakeAck)))

	require.Eventually(t, func() bool {
		return h.ActiveCount() == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 0
	}, time.Second, 5*time.Millisecond)
}
