// Package vrchat polls the VRChat web API for the bot account's current
// world. Cookie-authenticated REST; the world is replaced, never merged.
package vrchat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kittynXR/mewbot/internal/bus"
	"github.com/kittynXR/mewbot/internal/domain"
	"github.com/kittynXR/mewbot/pkg/log"
)

// DefaultBaseURL is the VRChat web API root.
const DefaultBaseURL = "https://api.vrchat.cloud/api/1"

// maxPollFailures is how many consecutive poll errors are tolerated before
// the connection is handed back to the supervisor.
const maxPollFailures = 3

// Config holds the VRChat session cookie and poll cadence.
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	AuthCookie   string        `mapstructure:"auth_cookie"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// Client implements supervisor.Driver as a polling loop.
type Client struct {
	cfg  Config
	bus  *bus.Bus
	http *http.Client

	mu          sync.Mutex
	lastWorldID string
	hasWorld    bool
}

type userResponse struct {
	Location string `json:"location"` // "wrld_…:instance", "offline", "private"
}

// NewClient creates an unconnected VRChat poller.
func NewClient(cfg Config, b *bus.Bus) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "mewbot/1.0"
	}
	return &Client{
		cfg:  cfg,
		bus:  b,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// Connect verifies the auth cookie against the current-user endpoint.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.fetchUser(ctx)
	return err
}

// Run polls the current user's location until ctx is cancelled or polling
// fails repeatedly.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	// First poll immediately so the dashboard sees the world without
	// waiting a full interval.
	failures := 0
	for {
		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			log.With(string(domain.IntegrationVRChat)).Warn().Err(err).Int("failures", failures).Msg("world poll failed")
			if failures >= maxPollFailures {
				return fmt.Errorf("world poll failed %d times: %w", failures, err)
			}
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close resets the change tracker; the poller holds no socket.
func (c *Client) Close() error {
	c.mu.Lock()
	c.lastWorldID = ""
	c.hasWorld = false
	c.mu.Unlock()
	return nil
}

func (c *Client) poll(ctx context.Context) error {
	user, err := c.fetchUser(ctx)
	if err != nil {
		return err
	}

	worldID := worldIDFromLocation(user.Location)

	c.mu.Lock()
	sameWorld := c.hasWorld && c.lastWorldID == worldID
	c.mu.Unlock()
	if sameWorld {
		return nil
	}

	var world *domain.WorldInfo
	if worldID != "" {
		world, err = c.fetchWorld(ctx, worldID)
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.lastWorldID = worldID
	c.hasWorld = true
	c.mu.Unlock()

	c.bus.Publish(domain.WorldChanged{World: world})
	return nil
}

func (c *Client) fetchUser(ctx context.Context) (*userResponse, error) {
	var user userResponse
	if err := c.get(ctx, "/auth/user", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) fetchWorld(ctx context.Context, id string) (*domain.WorldInfo, error) {
	var world domain.WorldInfo
	if err := c.get(ctx, "/worlds/"+id, &world); err != nil {
		return nil, err
	}
	return &world, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Cookie", "auth="+c.cfg.AuthCookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// worldIDFromLocation extracts the world id from a location string such as
// "wrld_abc123:12345~region(eu)". Non-world locations yield "".
func worldIDFromLocation(location string) string {
	if !strings.HasPrefix(location, "wrld_") {
		return ""
	}
	id, _, _ := strings.Cut(location, ":")
	return id
}
