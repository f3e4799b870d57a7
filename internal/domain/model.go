package domain

import "time"

// Window capacities for retained chat messages.
const (
	RecentMessageCap  = 10  // surfaced in the dashboard snapshot
	OverlayMessageCap = 500 // retained for chat-overlay consumers
)

// WorldInfo describes the VRChat world currently occupied. Immutable;
// replaced wholesale on each world-change event.
type WorldInfo struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AuthorName    string    `json:"authorName"`
	Capacity      int       `json:"capacity"`
	Description   string    `json:"description"`
	ReleaseStatus string    `json:"releaseStatus"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Source is one OBS scene item.
type Source struct {
	Name    string `json:"name"`
	Kind    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// SceneToolInstance is the full scene/source state of one OBS instance,
// mutated wholesale on each update event from its owning supervisor.
type SceneToolInstance struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Scenes       []string            `json:"scenes"`
	CurrentScene string              `json:"current_scene"`
	Sources      map[string][]Source `json:"sources"` // scene name -> ordered sources
}

// HasScene reports whether name is one of the instance's scenes.
func (i SceneToolInstance) HasScene(name string) bool {
	for _, s := range i.Scenes {
		if s == name {
			return true
		}
	}
	return false
}

// FindSource looks a source up by scene and name.
func (i SceneToolInstance) FindSource(scene, name string) (Source, bool) {
	for _, src := range i.Sources[scene] {
		if src.Name == name {
			return src, true
		}
	}
	return Source{}, false
}

// ChatMessage is one inbound chat line with its arrival metadata.
type ChatMessage struct {
	Integration IntegrationID `json:"integration"`
	Source      string        `json:"source"`
	Text        string        `json:"text"`
	At          time.Time     `json:"at"`
}

// BotSnapshot is the only structure pushed to dashboards. It is rebuilt,
// never partially mutated; readers at any instant observe a consistent copy.
type BotSnapshot struct {
	BotStatus      string
	Uptime         time.Duration
	Connectivity   map[IntegrationID]ConnectionStatus
	CurrentWorld   *WorldInfo
	RecentMessages []string
	SceneTools     []SceneToolInstance
}

// ChatDestination is the set of outbound chat flags. Flags are independent;
// one message fans out to every true flag.
type ChatDestination struct {
	OSCTextbox        bool `json:"oscTextbox"`
	TwitchChat        bool `json:"twitchChat"`
	TwitchBot         bool `json:"twitchBot"`
	TwitchBroadcaster bool `json:"twitchBroadcaster"`
	DiscordBot        bool `json:"discordBot"`
}

// DispatchResult is the outcome of one fan-out destination. Error is empty
// on success; failures on one destination never cancel the others.
type DispatchResult struct {
	Destination string `json:"destination"`
	Error       string `json:"error,omitempty"`
}

// OK reports whether the dispatch succeeded.
func (r DispatchResult) OK() bool { return r.Error == "" }
