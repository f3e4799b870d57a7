package router

import (
	"context"

	"github.com/kittynXR/mewbot/internal/domain"
)

// TwitchSender is the chat-protocol send surface the router depends on.
type TwitchSender interface {
	SendAsBot(ctx context.Context, channel, text string) error
	SendAsBroadcaster(ctx context.Context, channel, text string) error
	Channel() string
}

// DiscordSender posts text to the guild relay channel.
type DiscordSender interface {
	SendText(ctx context.Context, text string) error
}

// ChatboxSender pushes text into the VRChat chatbox.
type ChatboxSender interface {
	SendChatbox(ctx context.Context, text string) error
}

// SceneTool is one OBS instance's command surface.
type SceneTool interface {
	InstanceID() string
	ChangeScene(ctx context.Context, scene string) error
	ToggleSource(ctx context.Context, scene, source string, enabled bool) error
	RefreshSource(ctx context.Context, scene, source string) error
	RequestFullInfo(ctx context.Context) error
}

// SnapshotProvider supplies the current state for command validation.
type SnapshotProvider interface {
	Snapshot() domain.BotSnapshot
}
