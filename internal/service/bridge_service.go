// Package service connects the event bus, the state store, and the
// dashboard hub: events flow in and become state pushes, command frames
// flow out to the router.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kittynXR/mewbot/internal/domain"
	"github.com/kittynXR/mewbot/internal/hub"
	"github.com/kittynXR/mewbot/internal/state"
	"github.com/kittynXR/mewbot/pkg/log"
)

// Bridge is the event pump and command dispatcher for dashboard clients.
type Bridge struct {
	hub    *hub.Hub
	store  *state.Store
	router Commands
	events <-chan domain.Event
}

// New wires a Bridge over an already-subscribed event channel.
func New(h *hub.Hub, store *state.Store, router Commands, events <-chan domain.Event) *Bridge {
	return &Bridge{hub: h, store: store, router: router, events: events}
}

// Run drains the event bus until ctx is cancelled or the bus closes. Each
// accepted event that changes the snapshot is broadcast as one update frame;
// chat and world events additionally produce their dedicated frames.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-b.events:
			if !ok {
				return nil
			}
			b.handleEvent(ev)
		}
	}
}

func (b *Bridge) handleEvent(ev domain.Event) {
	changed := b.store.Apply(ev)

	switch e := ev.(type) {
	case domain.MessageReceived:
		b.hub.BroadcastActive(domain.TwitchMessageOut{
			Type:    domain.MsgTypeTwitchMessage,
			Message: e.Source + ": " + e.Text,
		})
	case domain.WorldChanged:
		b.hub.BroadcastActive(domain.WorldUpdateMessage{
			Type:  domain.MsgTypeWorldUpdate,
			World: e.World,
		})
	}

	if changed {
		b.hub.BroadcastActive(b.updateFrame(domain.MsgTypeUpdate))
	}
}

// HandleActivate runs when a dashboard client completes the handshake: the
// client has no state yet, so it gets an immediate full snapshot and every
// scene tool is asked to re-emit its state.
func (b *Bridge) HandleActivate(c *hub.Client) {
	c.SendMessage(b.updateFrame(domain.MsgTypeUpdate))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.router.RequestFullInfo(ctx); err != nil {
			log.L().Warn().Err(err).Msg("full info request on client activate failed")
		}
	}()
}

// HandleCommand parses one inbound frame and dispatches it. Malformed frames
// are logged and dropped; the connection stays open.
func (b *Bridge) HandleCommand(c *hub.Client, raw []byte) {
	var cmd domain.CommandEnvelope
	if err := json.Unmarshal(raw, &cmd); err != nil {
		log.L().Warn().Str(log.FieldClientID, c.ID).Err(err).Msg("malformed dashboard frame")
		c.SendMessage(domain.NewErrorMessage("invalid message format"))
		return
	}

	l := log.L().With().Str(log.FieldClientID, c.ID).Str(log.FieldCommand, cmd.Type).Logger()
	ctx := context.Background()

	switch cmd.Type {
	case domain.MsgTypeSendChat:
		if cmd.Message == "" {
			c.SendMessage(domain.NewErrorMessage("sendChat requires a message"))
			return
		}
		dest := domain.ChatDestination{}
		if cmd.Destination != nil {
			dest = *cmd.Destination
		}
		results := b.router.SendChat(ctx, cmd.Message, dest, cmd.AdditionalStreams)
		b.hub.BroadcastActive(domain.ChatSentMessage{
			Type:    domain.MsgTypeChatSent,
			Message: chatSentStatus(results),
			Results: results,
		})

	case domain.MsgTypeShareWorld:
		if err := b.router.ShareWorld(ctx); err != nil {
			l.Warn().Err(err).Msg("share world failed")
			c.SendMessage(domain.NewErrorMessage(err.Error()))
			return
		}
		b.hub.BroadcastActive(domain.WorldSharedMessage{
			Type:    domain.MsgTypeWorldShared,
			Message: "success",
		})

	case domain.MsgTypeGetOBSInfo:
		if err := b.router.RequestFullInfo(ctx); err != nil {
			l.Warn().Err(err).Msg("obs info request failed")
		}
		c.SendMessage(b.updateFrame(domain.MsgTypeOBSUpdate))

	case domain.MsgTypeChangeScene:
		b.reply(c, l, b.router.ChangeScene(ctx, cmd.InstanceID, cmd.SceneName))

	case domain.MsgTypeToggleSource:
		if cmd.IsEnabled == nil {
			c.SendMessage(domain.NewErrorMessage("toggle_source requires isEnabled"))
			return
		}
		b.reply(c, l, b.router.ToggleSource(ctx, cmd.InstanceID, cmd.SceneName, cmd.SourceName, *cmd.IsEnabled))

	case domain.MsgTypeRefreshSource:
		b.reply(c, l, b.router.RefreshSource(ctx, cmd.InstanceID, cmd.SceneName, cmd.SourceName))

	default:
		l.Warn().Msg("unknown command type")
		c.SendMessage(domain.NewErrorMessage("unknown message type: " + cmd.Type))
	}
}

// reply sends scene command failures back to the issuing client only;
// success is observed asynchronously through the next state push.
func (b *Bridge) reply(c *hub.Client, l zerolog.Logger, err error) {
	if err != nil {
		l.Warn().Err(err).Msg("command failed")
		c.SendMessage(domain.NewErrorMessage(err.Error()))
	}
}

func (b *Bridge) updateFrame(msgType string) domain.UpdateMessage {
	snap := b.store.Snapshot()
	return domain.UpdateMessage{
		Type:       msgType,
		Message:    snap.BotStatus,
		UpdateData: buildUpdateData(snap),
	}
}

func buildUpdateData(snap domain.BotSnapshot) domain.UpdateData {
	obsConnected := false
	for id, st := range snap.Connectivity {
		if st.Connected() && len(id) > 4 && id[:4] == "obs:" {
			obsConnected = true
			break
		}
	}

	return domain.UpdateData{
		Uptime:         formatUptime(snap.Uptime),
		VRChatWorld:    snap.CurrentWorld,
		RecentMessages: snap.RecentMessages,
		TwitchStatus:   snap.Connectivity[domain.IntegrationTwitch].Connected(),
		DiscordStatus:  snap.Connectivity[domain.IntegrationDiscord].Connected(),
		VRChatStatus:   snap.Connectivity[domain.IntegrationVRChat].Connected(),
		OBSStatus:      obsConnected,
		OBSInstances:   snap.SceneTools,
	}
}

func chatSentStatus(results []domain.DispatchResult) string {
	for _, r := range results {
		if !r.OK() {
			return "partial"
		}
	}
	return "success"
}

func formatUptime(d time.Duration) string {
	seconds := int(d.Seconds())
	return fmt.Sprintf("%dh %dm %ds", seconds/3600, (seconds%3600)/60, seconds%60)
}
