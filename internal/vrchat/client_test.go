package vrchat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittynXR/mewbot/internal/bus"
	"github.com/kittynXR/mewbot/internal/domain"
)

func TestWorldIDFromLocation(t *testing.T) {
	testCases := []struct {
		name     string
		location string
		expected string
	}{
		{name: "world with instance", location: "wrld_abc123:12345~region(eu)", expected: "wrld_abc123"},
		{name: "bare world", location: "wrld_abc123", expected: "wrld_abc123"},
		{name: "offline", location: "offline", expected: ""},
		{name: "private", location: "private", expected: ""},
		{name: "empty", location: "", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, worldIDFromLocation(tc.location))
		})
	}
}

// fakeAPI serves the two endpoints the poller hits and records the cookie.
type fakeAPI struct {
	location atomic.Pointer[string]
	userHits atomic.Int32
	srv      *httptest.Server
}

func newFakeAPI(t *testing.T, world domain.WorldInfo) *fakeAPI {
	api := &fakeAPI{}
	location := "offline"
	api.location.Store(&location)

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/user", func(w http.ResponseWriter, r *http.Request) {
		api.userHits.Add(1)
		if r.Header.Get("Cookie") != "auth=cookie123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(userResponse{Location: *api.location.Load()})
	})
	mux.HandleFunc("/worlds/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(world)
	})

	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) setLocation(location string) {
	a.location.Store(&location)
}

func newTestClient(api *fakeAPI, b *bus.Bus) *Client {
	return NewClient(Config{
		BaseURL:      api.srv.URL,
		AuthCookie:   "cookie123",
		PollInterval: 10 * time.Millisecond,
	}, b)
}

func recvWorld(t *testing.T, events <-chan domain.Event) *domain.WorldInfo {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if wc, ok := ev.(domain.WorldChanged); ok {
				return wc.World
			}
		case <-deadline:
			t.Fatal("no world change observed")
			return nil
		}
	}
}

func TestConnectVerifiesCookie(t *testing.T) {
	api := newFakeAPI(t, domain.WorldInfo{})
	b := bus.New(16)
	defer b.Close()

	c := newTestClient(api, b)
	assert.NoError(t, c.Connect(context.Background()))

	bad := NewClient(Config{BaseURL: api.srv.URL, AuthCookie: "wrong"}, b)
	assert.Error(t, bad.Connect(context.Background()))
}

func TestRunPublishesWorldChanges(t *testing.T) {
	world := domain.WorldInfo{ID: "wrld_abc", Name: "Cozy Loft", Capacity: 16}
	api := newFakeAPI(t, world)
	b := bus.New(64)
	defer b.Close()
	events := b.Subscribe("test")

	c := newTestClient(api, b)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// First poll reports offline, as a nil world.
	assert.Nil(t, recvWorld(t, events))

	api.setLocation("wrld_abc:123~private")
	got := recvWorld(t, events)
	require.NotNil(t, got)
	assert.Equal(t, "Cozy Loft", got.Name)

	// Same world on later polls publishes nothing further.
	hits := api.userHits.Load()
	assert.Eventually(t, func() bool {
		return api.userHits.Load() > hits+2
	}, time.Second, 5*time.Millisecond)
	select {
	case ev := <-events:
		if _, ok := ev.(domain.WorldChanged); ok {
			t.Fatal("unchanged world was republished")
		}
	default:
	}

	// Leaving the world publishes a nil world again.
	api.setLocation("offline")
	assert.Nil(t, recvWorld(t, events))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}
}

func TestRunGivesUpAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := bus.New(16)
	defer b.Close()
	c := NewClient(Config{BaseURL: srv.URL, AuthCookie: "x", PollInterval: 5 * time.Millisecond}, b)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller kept running past the failure limit")
	}
}
