package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandEnvelopeDecodesDashboardFrame(t *testing.T) {
	raw := `{
		"type": "sendChat",
		"message": "hello",
		"destination": {"oscTextbox": true, "twitchChat": true, "twitchBroadcaster": true},
		"additionalStreams": ["friend1"]
	}`

	var cmd CommandEnvelope
	require.NoError(t, json.Unmarshal([]byte(raw), &cmd))

	assert.Equal(t, MsgTypeSendChat, cmd.Type)
	assert.Equal(t, "hello", cmd.Message)
	require.NotNil(t, cmd.Destination)
	assert.True(t, cmd.Destination.OSCTextbox)
	assert.True(t, cmd.Destination.TwitchChat)
	assert.True(t, cmd.Destination.TwitchBroadcaster)
	assert.False(t, cmd.Destination.TwitchBot)
	assert.Equal(t, []string{"friend1"}, cmd.AdditionalStreams)
}

func TestUpdateMessageUsesCanonicalEnvelopeKeys(t *testing.T) {
	frame := UpdateMessage{
		Type:    MsgTypeUpdate,
		Message: "online",
		UpdateData: UpdateData{
			Uptime:         "0h 1m 5s",
			RecentMessages: []string{"viewer: hi"},
			TwitchStatus:   true,
		},
	}

	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "type")
	assert.Contains(t, decoded, "update_data")
	assert.NotContains(t, decoded, "message_type")
	assert.NotContains(t, decoded, "data")

	inner, ok := decoded["update_data"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{
		"uptime", "vrchat_world", "recent_messages",
		"twitch_status", "discord_status", "vrchat_status",
		"obs_status", "obs_instances",
	} {
		assert.Contains(t, inner, key)
	}
}

func TestDispatchResultOK(t *testing.T) {
	assert.True(t, DispatchResult{Destination: "twitchBot"}.OK())
	assert.False(t, DispatchResult{Destination: "discordBot", Error: "not connected"}.OK())
}
