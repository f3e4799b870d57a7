// Package router translates dashboard commands into integration dispatches.
// It owns the chat fan-out policy: every destination succeeds or fails on
// its own, and outcomes are collected, never merged into one error.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kittynXR/mewbot/internal/domain"
	"github.com/kittynXR/mewbot/pkg/log"
)

// Fan-out destination names as reported in DispatchResults.
const (
	DestOSCTextbox        = "oscTextbox"
	DestTwitchBot         = "twitchBot"
	DestTwitchBroadcaster = "twitchBroadcaster"
	DestDiscordBot        = "discordBot"
)

// DefaultCommandTimeout bounds each outbound dispatch.
const DefaultCommandTimeout = 10 * time.Second

// Router validates commands against the current snapshot and forwards them
// to the owning integration. Nil collaborators are legal; dispatches to them
// report ErrNotConnected.
type Router struct {
	twitch  TwitchSender
	discord DiscordSender
	chatbox ChatboxSender
	tools   []SceneTool
	store   SnapshotProvider

	commandTimeout time.Duration
}

// New wires a Router.
func New(store SnapshotProvider, twitch TwitchSender, discord DiscordSender, chatbox ChatboxSender, tools []SceneTool) *Router {
	return &Router{
		twitch:         twitch,
		discord:        discord,
		chatbox:        chatbox,
		tools:          tools,
		store:          store,
		commandTimeout: DefaultCommandTimeout,
	}
}

// SendChat fans text out to every true destination flag and every extra
// relay target. Each dispatch is independent; one NotConnected destination
// never cancels delivery to the others.
func (r *Router) SendChat(ctx context.Context, text string, dest domain.ChatDestination, extraTargets []string) []domain.DispatchResult {
	var results []domain.DispatchResult
	record := func(name string, err error) {
		results = append(results, toResult(name, err))
	}

	if dest.OSCTextbox {
		record(DestOSCTextbox, r.dispatch(ctx, func(ctx context.Context) error {
			if r.chatbox == nil {
				return domain.ErrNotConnected
			}
			return r.chatbox.SendChatbox(ctx, text)
		}))
	}

	if dest.TwitchChat {
		// twitchChat alone means the bot identity; the sub-flags select
		// identities explicitly when set.
		asBot := dest.TwitchBot || !dest.TwitchBroadcaster
		if asBot {
			record(DestTwitchBot, r.dispatch(ctx, func(ctx context.Context) error {
				if r.twitch == nil {
					return domain.ErrNotConnected
				}
				return r.twitch.SendAsBot(ctx, r.twitch.Channel(), text)
			}))
		}
		if dest.TwitchBroadcaster {
			record(DestTwitchBroadcaster, r.dispatch(ctx, func(ctx context.Context) error {
				if r.twitch == nil {
					return domain.ErrNotConnected
				}
				return r.twitch.SendAsBroadcaster(ctx, r.twitch.Channel(), text)
			}))
		}
	}

	if dest.DiscordBot {
		record(DestDiscordBot, r.dispatch(ctx, func(ctx context.Context) error {
			if r.discord == nil {
				return domain.ErrNotConnected
			}
			return r.discord.SendText(ctx, text)
		}))
	}

	for _, target := range extraTargets {
		target := target
		record("stream:"+target, r.dispatch(ctx, func(ctx context.Context) error {
			if r.twitch == nil {
				return domain.ErrNotConnected
			}
			return r.twitch.SendAsBot(ctx, target, text)
		}))
	}

	for _, res := range results {
		if !res.OK() {
			log.L().Warn().Str("destination", res.Destination).Str("error", res.Error).Msg("chat dispatch failed")
		}
	}
	return results
}

// ShareWorld announces the current world to the primary chat channel as two
// formatted lines. Fails with ErrNoCurrentWorld before any dispatch when no
// world is active.
func (r *Router) ShareWorld(ctx context.Context) error {
	snap := r.store.Snapshot()
	world := snap.CurrentWorld
	if world == nil {
		return domain.ErrNoCurrentWorld
	}
	if r.twitch == nil {
		return domain.ErrNotConnected
	}

	summary := fmt.Sprintf(
		"Current World: %s | Author: %s | Capacity: %d | Description: %s | Status: %s",
		world.Name, world.AuthorName, world.Capacity, world.Description, world.ReleaseStatus,
	)
	link := fmt.Sprintf(
		"Published: %s | Last Updated: %s | World Link: https://vrchat.com/home/world/%s",
		world.CreatedAt.Format("2006-01-02"), world.UpdatedAt.Format("2006-01-02"), world.ID,
	)

	channel := r.twitch.Channel()
	return r.dispatch(ctx, func(ctx context.Context) error {
		if err := r.twitch.SendAsBot(ctx, channel, summary); err != nil {
			return err
		}
		return r.twitch.SendAsBot(ctx, channel, link)
	})
}

// ChangeScene validates the instance and scene against the snapshot, then
// forwards to the owning OBS client.
func (r *Router) ChangeScene(ctx context.Context, instanceID, scene string) error {
	inst, tool, err := r.lookup(instanceID)
	if err != nil {
		return err
	}
	if !inst.HasScene(scene) {
		return fmt.Errorf("scene %q on instance %q: %w", scene, instanceID, domain.ErrNotFound)
	}
	return r.dispatch(ctx, func(ctx context.Context) error {
		return tool.ChangeScene(ctx, scene)
	})
}

// ToggleSource validates instance, scene, and source, then forwards.
func (r *Router) ToggleSource(ctx context.Context, instanceID, scene, source string, enabled bool) error {
	tool, err := r.lookupSource(instanceID, scene, source)
	if err != nil {
		return err
	}
	return r.dispatch(ctx, func(ctx context.Context) error {
		return tool.ToggleSource(ctx, scene, source, enabled)
	})
}

// RefreshSource validates instance, scene, and source, then forwards.
func (r *Router) RefreshSource(ctx context.Context, instanceID, scene, source string) error {
	tool, err := r.lookupSource(instanceID, scene, source)
	if err != nil {
		return err
	}
	return r.dispatch(ctx, func(ctx context.Context) error {
		return tool.RefreshSource(ctx, scene, source)
	})
}

// RequestFullInfo asks every OBS instance to re-emit its full state. Used on
// dashboard (re)connect, when the client has no state yet.
func (r *Router) RequestFullInfo(ctx context.Context) error {
	var errs []error
	for _, tool := range r.tools {
		tool := tool
		err := r.dispatch(ctx, func(ctx context.Context) error {
			return tool.RequestFullInfo(ctx)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("instance %s: %w", tool.InstanceID(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Router) lookup(instanceID string) (domain.SceneToolInstance, SceneTool, error) {
	snap := r.store.Snapshot()
	for _, inst := range snap.SceneTools {
		if inst.ID != instanceID {
			continue
		}
		for _, tool := range r.tools {
			if tool.InstanceID() == instanceID {
				return inst, tool, nil
			}
		}
	}
	return domain.SceneToolInstance{}, nil, fmt.Errorf("instance %q: %w", instanceID, domain.ErrNotFound)
}

func (r *Router) lookupSource(instanceID, scene, source string) (SceneTool, error) {
	inst, tool, err := r.lookup(instanceID)
	if err != nil {
		return nil, err
	}
	if !inst.HasScene(scene) {
		return nil, fmt.Errorf("scene %q on instance %q: %w", scene, instanceID, domain.ErrNotFound)
	}
	if _, ok := inst.FindSource(scene, source); !ok {
		return nil, fmt.Errorf("source %q in scene %q: %w", source, scene, domain.ErrNotFound)
	}
	return tool, nil
}

// dispatch runs one outbound action under the command timeout.
func (r *Router) dispatch(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()
	return fn(ctx)
}

func toResult(destination string, err error) domain.DispatchResult {
	res := domain.DispatchResult{Destination: destination}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
