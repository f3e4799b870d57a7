package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kittynXR/mewbot/internal/domain"
	"github.com/kittynXR/mewbot/pkg/log"
)

// Settings is the mutable runtime configuration the dashboard can edit.
type Settings interface {
	Relays() []string
	SetRelays(targets []string) error
}

// ChatHistory exposes the retained overlay chat backlog.
type ChatHistory interface {
	Overlay() []domain.ChatMessage
}

// APIHandler serves the REST endpoints the dashboard reads at bootstrap.
type APIHandler struct {
	settings Settings
	history  ChatHistory
	channel  string
}

// NewAPIHandler wires the REST handler. channel is the Twitch channel the
// bridge is joined to.
func NewAPIHandler(settings Settings, history ChatHistory, channel string) *APIHandler {
	return &APIHandler{settings: settings, history: history, channel: channel}
}

func (h *APIHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *APIHandler) HandleTwitchChannel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channel": h.channel})
}

// HandleChatHistory returns the retained backlog so overlays that connect
// mid-stream can backfill before live frames arrive.
func (h *APIHandler) HandleChatHistory(c *gin.Context) {
	messages := h.history.Overlay()
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *APIHandler) HandleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"relay_targets": h.settings.Relays()})
}

type settingsRequest struct {
	RelayTargets []string `json:"relay_targets"`
}

func (h *APIHandler) HandlePutSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.settings.SetRelays(req.RelayTargets); err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to persist settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"relay_targets": h.settings.Relays()})
}

// RegisterRoutes mounts all HTTP routes on the engine.
func RegisterRoutes(r *gin.Engine, ws *WSHandler, api *APIHandler) {
	r.GET("/health", api.HandleHealth)
	r.GET("/ws", ws.HandleWebSocket)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/twitch/channel", api.HandleTwitchChannel)
		apiGroup.GET("/chat/history", api.HandleChatHistory)
		apiGroup.GET("/settings", api.HandleGetSettings)
		apiGroup.PUT("/settings", api.HandlePutSettings)
	}
}
