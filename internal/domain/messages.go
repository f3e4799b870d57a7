package domain

// Dashboard wire contract. The canonical envelope keys are "type" and
// "update_data"; the legacy message_type/data spellings from older dashboard
// builds are not accepted.

// Client -> server command types.
const (
	MsgTypeSendChat      = "sendChat"
	MsgTypeShareWorld    = "shareWorld"
	MsgTypeGetOBSInfo    = "get_obs_info"
	MsgTypeChangeScene   = "change_scene"
	MsgTypeToggleSource  = "toggle_source"
	MsgTypeRefreshSource = "refresh_source"
)

// Server -> client message types.
const (
	MsgTypeUpdate        = "update"
	MsgTypeTwitchMessage = "twitch_message"
	MsgTypeWorldUpdate   = "vrchat_world_update"
	MsgTypeOBSUpdate     = "obs_update"
	MsgTypeChatSent      = "chatSent"
	MsgTypeWorldShared   = "worldShared"
	MsgTypeError         = "error"
)

// Handshake literals exchanged before a dashboard connection goes active.
const (
	HandshakeReady = "READY"
	HandshakeAck   = "ACK"
)

// CommandEnvelope is the single inbound frame shape; Type selects which of
// the optional fields are meaningful.
type CommandEnvelope struct {
	Type              string           `json:"type"`
	Message           string           `json:"message,omitempty"`
	Destination       *ChatDestination `json:"destination,omitempty"`
	AdditionalStreams []string         `json:"additionalStreams,omitempty"`
	InstanceID        string           `json:"instanceId,omitempty"`
	SceneName         string           `json:"sceneName,omitempty"`
	SourceName        string           `json:"sourceName,omitempty"`
	IsEnabled         *bool            `json:"isEnabled,omitempty"`
}

// UpdateData is the dashboard-visible projection of a BotSnapshot.
type UpdateData struct {
	Uptime         string              `json:"uptime"`
	VRChatWorld    *WorldInfo          `json:"vrchat_world"`
	RecentMessages []string            `json:"recent_messages"`
	TwitchStatus   bool                `json:"twitch_status"`
	DiscordStatus  bool                `json:"discord_status"`
	VRChatStatus   bool                `json:"vrchat_status"`
	OBSStatus      bool                `json:"obs_status"`
	OBSInstances   []SceneToolInstance `json:"obs_instances"`
}

// Server -> client frames.

type UpdateMessage struct {
	Type       string     `json:"type"`
	Message    string     `json:"message"` // bot status: "online" / "offline"
	UpdateData UpdateData `json:"update_data"`
}

type TwitchMessageOut struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type WorldUpdateMessage struct {
	Type  string     `json:"type"`
	World *WorldInfo `json:"world"` // null when the bot left its world
}

type ChatSentMessage struct {
	Type    string           `json:"type"`
	Message string           `json:"message"`
	Results []DispatchResult `json:"results"`
}

type WorldSharedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorMessage builds an error frame for a dashboard client.
func NewErrorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: MsgTypeError, Message: msg}
}
