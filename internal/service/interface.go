package service

import (
	"context"

	"github.com/kittynXR/mewbot/internal/domain"
)

// Commands is the command-router surface the bridge service consumes.
type Commands interface {
	SendChat(ctx context.Context, text string, dest domain.ChatDestination, extraTargets []string) []domain.DispatchResult
	ShareWorld(ctx context.Context) error
	ChangeScene(ctx context.Context, instanceID, scene string) error
	ToggleSource(ctx context.Context, instanceID, scene, source string, enabled bool) error
	RefreshSource(ctx context.Context, instanceID, scene, source string) error
	RequestFullInfo(ctx context.Context) error
}
