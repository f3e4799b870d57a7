// Package obs is the scene-composition integration: one client per OBS
// instance speaking obs-websocket protocol v5. OBS is the source of truth;
// the bridge never infers scene or source existence, it refetches.
package obs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kittynXR/mewbot/internal/bus"
	"github.com/kittynXR/mewbot/internal/domain"
	"github.com/kittynXR/mewbot/pkg/log"
)

// InstanceConfig identifies one OBS instance.
type InstanceConfig struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

// rpcVersion is the obs-websocket protocol version this client speaks.
const rpcVersion = 1

// Client implements supervisor.Driver for one OBS instance.
type Client struct {
	cfg            InstanceConfig
	bus            *bus.Bus
	integration    domain.IntegrationID
	requestTimeout time.Duration

	mu      sync.Mutex
	ws      *websocket.Conn
	pending map[string]chan responseData
	writeMu sync.Mutex

	guard func() error
}

// NewClient creates an unconnected OBS client.
func NewClient(cfg InstanceConfig, b *bus.Bus) *Client {
	return &Client{
		cfg:            cfg,
		bus:            b,
		integration:    domain.OBSIntegration(cfg.ID),
		requestTimeout: 10 * time.Second,
		pending:        make(map[string]chan responseData),
		guard:          func() error { return domain.ErrNotConnected },
	}
}

// Bind wires the supervisor's connected-state guard into the command paths.
func (c *Client) Bind(guard func() error) { c.guard = guard }

// InstanceID returns the configured instance identifier.
func (c *Client) InstanceID() string { return c.cfg.ID }

// Integration returns the instance's integration id.
func (c *Client) Integration() domain.IntegrationID { return c.integration }

// Connect dials the instance and completes the Hello/Identify handshake.
func (c *Client) Connect(ctx context.Context) error {
	url := fmt.Sprintf("ws://%s:%d", c.cfg.Host, c.cfg.Port)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		ws.SetReadDeadline(deadline)
	}

	var hello helloData
	if err := readOp(ws, opHello, &hello); err != nil {
		ws.Close()
		return err
	}

	identify := identifyData{RPCVersion: rpcVersion}
	if hello.Authentication != nil {
		identify.Authentication = authToken(c.cfg.Password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}
	if err := writeOp(ws, &sync.Mutex{}, opIdentify, identify); err != nil {
		ws.Close()
		return err
	}

	if err := readOp(ws, opIdentified, &struct{}{}); err != nil {
		ws.Close()
		return fmt.Errorf("identify rejected: %w", err)
	}

	ws.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	return nil
}

// Run performs the initial state fetch and pumps events and request
// responses until the connection fails or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return domain.ErrNotConnected
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-stop:
		}
	}()

	go func() {
		if err := c.publishFullState(ctx); err != nil {
			log.With(string(c.integration)).Warn().Err(err).Msg("initial scene fetch failed")
		}
	}()

	for {
		var frame message
		if err := ws.ReadJSON(&frame); err != nil {
			c.failPending()
			return fmt.Errorf("read: %w", err)
		}

		switch frame.Op {
		case opEvent:
			var ev eventData
			if err := json.Unmarshal(frame.D, &ev); err != nil {
				continue
			}
			c.handleEvent(ctx, ev)

		case opRequestResponse:
			var resp responseData
			if err := json.Unmarshal(frame.D, &resp); err != nil {
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.RequestID]
			delete(c.pending, resp.RequestID)
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
		}
	}
}

// Close releases the socket and fails outstanding requests.
func (c *Client) Close() error {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	c.failPending()
	if ws != nil {
		return ws.Close()
	}
	return nil
}

// sceneMutatingEvents trigger a full refetch; the instance state is always
// rebuilt from what OBS reports, never patched locally.
var sceneMutatingEvents = map[string]bool{
	"CurrentProgramSceneChanged":  true,
	"SceneListChanged":            true,
	"SceneCreated":                true,
	"SceneRemoved":                true,
	"SceneNameChanged":            true,
	"SceneItemCreated":            true,
	"SceneItemRemoved":            true,
	"SceneItemEnableStateChanged": true,
	"InputNameChanged":            true,
}

func (c *Client) handleEvent(ctx context.Context, ev eventData) {
	if !sceneMutatingEvents[ev.EventType] {
		return
	}
	go func() {
		if err := c.publishFullState(ctx); err != nil && ctx.Err() == nil {
			log.With(string(c.integration)).Warn().Err(err).Str("event", ev.EventType).Msg("scene refetch failed")
		}
	}()
}

// RequestFullInfo refetches the full scene/source state and publishes it.
func (c *Client) RequestFullInfo(ctx context.Context) error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.publishFullState(ctx)
}

// ChangeScene switches the program scene. The resulting
// CurrentProgramSceneChanged event drives the state update.
func (c *Client) ChangeScene(ctx context.Context, scene string) error {
	if err := c.guard(); err != nil {
		return err
	}
	_, err := c.request(ctx, "SetCurrentProgramScene", map[string]any{"sceneName": scene})
	return err
}

// ToggleSource enables or disables one scene item.
func (c *Client) ToggleSource(ctx context.Context, scene, source string, enabled bool) error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.setSourceEnabled(ctx, scene, source, enabled)
}

// RefreshSource pulses a source off and on, forcing OBS to reload it.
func (c *Client) RefreshSource(ctx context.Context, scene, source string) error {
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.setSourceEnabled(ctx, scene, source, false); err != nil {
		return err
	}
	return c.setSourceEnabled(ctx, scene, source, true)
}

func (c *Client) setSourceEnabled(ctx context.Context, scene, source string, enabled bool) error {
	raw, err := c.request(ctx, "GetSceneItemId", map[string]any{
		"sceneName":  scene,
		"sourceName": source,
	})
	if err != nil {
		return err
	}
	var item sceneItemIDResponse
	if err := json.Unmarshal(raw, &item); err != nil {
		return err
	}

	_, err = c.request(ctx, "SetSceneItemEnabled", map[string]any{
		"sceneName":        scene,
		"sceneItemId":      item.SceneItemID,
		"sceneItemEnabled": enabled,
	})
	return err
}

// publishFullState fetches scenes and their sources and emits one wholesale
// SceneToolStateChanged event.
func (c *Client) publishFullState(ctx context.Context) error {
	raw, err := c.request(ctx, "GetSceneList", nil)
	if err != nil {
		return err
	}
	var list sceneListResponse
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}

	inst := domain.SceneToolInstance{
		ID:           c.cfg.ID,
		Name:         c.cfg.Name,
		CurrentScene: list.CurrentProgramSceneName,
		Scenes:       make([]string, 0, len(list.Scenes)),
		Sources:      make(map[string][]domain.Source, len(list.Scenes)),
	}

	// GetSceneList returns scenes in reverse display order.
	for i := len(list.Scenes) - 1; i >= 0; i-- {
		scene := list.Scenes[i].SceneName
		inst.Scenes = append(inst.Scenes, scene)

		raw, err := c.request(ctx, "GetSceneItemList", map[string]any{"sceneName": scene})
		if err != nil {
			return err
		}
		var items sceneItemListResponse
		if err := json.Unmarshal(raw, &items); err != nil {
			return err
		}

		sources := make([]domain.Source, 0, len(items.SceneItems))
		for _, item := range items.SceneItems {
			sources = append(sources, domain.Source{
				Name:    item.SourceName,
				Kind:    item.InputKind,
				Enabled: item.SceneItemEnabled,
			})
		}
		inst.Sources[scene] = sources
	}

	c.bus.Publish(domain.SceneToolStateChanged{Instance: inst})
	return nil
}

// request issues one obs-websocket request and waits for its correlated
// response or the command timeout.
func (c *Client) request(ctx context.Context, requestType string, data any) (json.RawMessage, error) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil, domain.ErrNotConnected
	}

	id := uuid.New().String()
	ch := make(chan responseData, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	err := writeOp(ws, &c.writeMu, opRequest, requestData{
		RequestType: requestType,
		RequestID:   id,
		RequestData: data,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	timeout := time.NewTimer(c.requestTimeout)
	defer timeout.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, domain.ErrNotConnected
		}
		if !resp.RequestStatus.Result {
			return nil, fmt.Errorf("%s failed: %s (code %d)", requestType, resp.RequestStatus.Comment, resp.RequestStatus.Code)
		}
		c.bus.Publish(domain.CommandAcked{Integration: c.integration, CommandID: id})
		return resp.ResponseData, nil
	case <-timeout.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: request timed out", requestType)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// failPending closes every outstanding request channel so waiters get
// ErrNotConnected instead of hanging across a reconnect.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func writeOp(ws *websocket.Conn, mu *sync.Mutex, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	return ws.WriteJSON(message{Op: op, D: raw})
}

func readOp(ws *websocket.Conn, wantOp int, out any) error {
	var frame message
	if err := ws.ReadJSON(&frame); err != nil {
		return err
	}
	if frame.Op != wantOp {
		return fmt.Errorf("expected op %d, got %d", wantOp, frame.Op)
	}
	return json.Unmarshal(frame.D, out)
}
