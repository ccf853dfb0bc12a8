package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"catcharity/internal/auth"
	"catcharity/internal/ws"
)

type WebSocketHandler struct {
	hub      *ws.Hub
	tokens   *auth.TokenService
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, tokens *auth.TokenService, origins *originPolicy) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins.allows(origin)
			},
		},
	}
}

// GET /ws?token=
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		missingCredentials(w)
		return
	}

	claims, err := h.tokens.Verify(token)
	if err != nil {
		writeTokenError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, claims)
	if !h.hub.Register(client) {
		client.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
