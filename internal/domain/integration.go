// Package domain holds the shared value types, normalized events, and the
// dashboard wire contract used across all integrations.
package domain

import (
	"fmt"
	"time"
)

// IntegrationID identifies one supervised external connection and its status
// slot. The set is fixed at build time; OBS instances are the only
// parameterized members.
type IntegrationID string

const (
	IntegrationTwitch  IntegrationID = "twitch"
	IntegrationDiscord IntegrationID = "discord"
	IntegrationVRChat  IntegrationID = "vrchat"
	IntegrationOSC     IntegrationID = "osc"
)

// OBSIntegration returns the IntegrationID for one OBS instance.
func OBSIntegration(instanceID string) IntegrationID {
	return IntegrationID("obs:" + instanceID)
}

// ConnectionState is the lifecycle state of one integration's connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ConnectionStatus is owned exclusively by an integration's supervisor; the
// state store holds a read-only mirror. Attempt and NextRetryAt are only
// meaningful while State is StateReconnecting.
type ConnectionStatus struct {
	State       ConnectionState
	Attempt     int
	NextRetryAt time.Time
}

// Connected reports whether commands may be submitted to the integration.
func (c ConnectionStatus) Connected() bool {
	return c.State == StateConnected
}
