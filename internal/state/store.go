// Package state folds normalized events into the single authoritative
// dashboard snapshot under one mutation point.
package state

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/kittynXR/mewbot/internal/domain"
	"github.com/kittynXR/mewbot/pkg/log"
)

// Store is the only piece of shared mutable state in the process. Apply is
// the single mutation point; the snapshot is rebuilt wholesale on each
// accepted event so readers never observe a torn structure.
type Store struct {
	mu    sync.Mutex
	start time.Time

	connectivity map[domain.IntegrationID]domain.ConnectionStatus
	world        *domain.WorldInfo
	recent       []domain.ChatMessage // dashboard window, cap 10
	overlay      []domain.ChatMessage // chat-overlay window, cap 500
	sceneTools   []domain.SceneToolInstance

	// snap is rebuilt on every accepted event and never mutated afterwards;
	// Snapshot hands out value copies sharing its immutable slices.
	snap domain.BotSnapshot
}

// New creates a Store with one Disconnected status slot per integration.
func New(integrations []domain.IntegrationID) *Store {
	s := &Store{
		start:        time.Now(),
		connectivity: make(map[domain.IntegrationID]domain.ConnectionStatus, len(integrations)),
	}
	for _, id := range integrations {
		s.connectivity[id] = domain.ConnectionStatus{State: domain.StateDisconnected}
	}
	s.rebuild()
	return s
}

// Apply folds one event into the state and reports whether the snapshot
// changed, letting callers skip redundant broadcasts. Unknown event kinds
// are logged and ignored.
func (s *Store) Apply(ev domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	switch e := ev.(type) {
	case domain.ConnectivityChanged:
		if s.connectivity[e.Integration] != e.Status {
			s.connectivity[e.Integration] = e.Status
			changed = true
		}

	case domain.MessageReceived:
		msg := domain.ChatMessage{
			Integration: e.Integration,
			Source:      e.Source,
			Text:        e.Text,
			At:          e.At,
		}
		s.recent = appendBounded(s.recent, msg, domain.RecentMessageCap)
		s.overlay = appendBounded(s.overlay, msg, domain.OverlayMessageCap)
		changed = true

	case domain.WorldChanged:
		if !worldEqual(s.world, e.World) {
			s.world = e.World
			changed = true
		}

	case domain.SceneToolStateChanged:
		changed = s.replaceSceneTool(e.Instance)

	case domain.CommandAcked, domain.BusOverflow:
		// Diagnostics; nothing dashboard-visible changes.

	default:
		log.L().Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("ignoring unknown event kind")
	}

	if changed {
		s.rebuild()
	}
	return changed
}

// Snapshot returns an independently readable copy. Uptime is computed here
// from the fixed process-start instant, not stored.
func (s *Store) Snapshot() domain.BotSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snap
	snap.Uptime = time.Since(s.start)
	return snap
}

// Overlay returns a copy of the long message window for overlay consumers.
func (s *Store) Overlay() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ChatMessage, len(s.overlay))
	copy(out, s.overlay)
	return out
}

// rebuild constructs a fresh snapshot value; called with s.mu held.
func (s *Store) rebuild() {
	conn := make(map[domain.IntegrationID]domain.ConnectionStatus, len(s.connectivity))
	online := false
	for id, st := range s.connectivity {
		conn[id] = st
		if st.Connected() {
			online = true
		}
	}

	recent := make([]string, len(s.recent))
	for i, m := range s.recent {
		recent[i] = m.Source + ": " + m.Text
	}

	tools := make([]domain.SceneToolInstance, len(s.sceneTools))
	copy(tools, s.sceneTools)

	status := "offline"
	if online {
		status = "online"
	}

	s.snap = domain.BotSnapshot{
		BotStatus:      status,
		Connectivity:   conn,
		CurrentWorld:   s.world,
		RecentMessages: recent,
		SceneTools:     tools,
	}
}

func (s *Store) replaceSceneTool(inst domain.SceneToolInstance) bool {
	for i, existing := range s.sceneTools {
		if existing.ID == inst.ID {
			if reflect.DeepEqual(existing, inst) {
				return false
			}
			tools := make([]domain.SceneToolInstance, len(s.sceneTools))
			copy(tools, s.sceneTools)
			tools[i] = inst
			s.sceneTools = tools
			return true
		}
	}
	s.sceneTools = append(s.sceneTools, inst)
	return true
}

func appendBounded(window []domain.ChatMessage, msg domain.ChatMessage, limit int) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(window)+1)
	out = append(out, window...)
	out = append(out, msg)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func worldEqual(a, b *domain.WorldInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
