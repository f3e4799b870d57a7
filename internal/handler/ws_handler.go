// Package handler exposes the HTTP surface: the dashboard WebSocket
// endpoint and the small REST collaborators used at dashboard bootstrap.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kittynXR/mewbot/internal/config"
	"github.com/kittynXR/mewbot/internal/hub"
	"github.com/kittynXR/mewbot/internal/service"
	"github.com/kittynXR/mewbot/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler accepts dashboard connections and starts their pumps.
type WSHandler struct {
	hub    *hub.Hub
	bridge *service.Bridge
	wsCfg  config.WebSocketConfig
}

// NewWSHandler wires the WebSocket handler.
func NewWSHandler(h *hub.Hub, bridge *service.Bridge, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{hub: h, bridge: bridge, wsCfg: wsCfg}
}

// HandleWebSocket upgrades the connection, sends the readiness marker, and
// starts the client pumps. The client receives no state pushes until it
// answers with the acknowledgment marker.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)
	if err := client.Greet(); err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("handshake send failed")
		conn.Close()
		return
	}

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(hub.Handlers{
		OnActivate: h.bridge.HandleActivate,
		OnCommand:  h.bridge.HandleCommand,
	})
}
