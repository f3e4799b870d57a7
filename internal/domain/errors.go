package domain

import "errors"

var (
	// ErrNotConnected is returned when a command is submitted to an
	// integration whose supervisor is not in StateConnected. Callers treat
	// it as transient; commands are never buffered while disconnected.
	ErrNotConnected = errors.New("integration not connected")

	// ErrNotFound is returned when a command references an unknown
	// instance, scene, or source. Rejected before any dispatch.
	ErrNotFound = errors.New("not found")

	// ErrNoCurrentWorld is returned by share-world when no world is active.
	ErrNoCurrentWorld = errors.New("no current world")
)
