package domain

import "time"

// Event is a normalized event emitted by a supervisor onto the event bus.
// The set of variants is closed; the state store ignores kinds it does not
// recognise.
type Event interface {
	isEvent()
}

// ConnectivityChanged mirrors one integration's supervisor status into the
// shared state.
type ConnectivityChanged struct {
	Integration IntegrationID
	Status      ConnectionStatus
}

// MessageReceived is an inbound chat line from any platform.
type MessageReceived struct {
	Integration IntegrationID
	Source      string // display name or channel tag
	Text        string
	At          time.Time
}

// WorldChanged replaces the current VRChat world. World is nil when the
// bot left a world without entering a new one.
type WorldChanged struct {
	World *WorldInfo
}

// SceneToolStateChanged replaces one OBS instance's scene/source state
// wholesale. The external tool is the source of truth.
type SceneToolStateChanged struct {
	Instance SceneToolInstance
}

// CommandAcked reports completion of an outbound command by the owning
// integration.
type CommandAcked struct {
	Integration IntegrationID
	CommandID   string
}

// BusOverflow is a diagnostic emitted when a slow subscriber forced the bus
// to drop its oldest pending event. Non-fatal.
type BusOverflow struct {
	Subscriber string
	Dropped    uint64 // cumulative drops for this subscriber
}

func (ConnectivityChanged) isEvent()   {}
func (MessageReceived) isEvent()       {}
func (WorldChanged) isEvent()          {}
func (SceneToolStateChanged) isEvent() {}
func (CommandAcked) isEvent()          {}
func (BusOverflow) isEvent()           {}
