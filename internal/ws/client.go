package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"catcharity/internal/auth"
	"catcharity/internal/constants"
)

// ClientState represents the lifecycle state of a WebSocket client
type ClientState int32

const (
	ClientStateConnected ClientState = iota // Authenticated at upgrade, receiving events
	ClientStateClosing                      // Shutdown initiated
	ClientStateClosed                       // Terminal
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames; anything larger is a misbehaving peer.
	maxMessageSize = 1024
)

// Client represents a single WebSocket connection
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan *WSMessage
	sendCloseOnce sync.Once
	connCloseOnce sync.Once

	state atomic.Int32

	userID    string
	staff     bool
	sessionID string

	// DroppedMessages tracks how many messages have been dropped due to full buffer
	DroppedMessages int64
}

// NewClient creates a client for a connection already authenticated by claims.
func NewClient(hub *Hub, conn *websocket.Conn, claims *auth.Claims) *Client {
	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan *WSMessage, constants.WSClientSendBufferSize),
		userID:    claims.UserID,
		staff:     claims.IsStaff(),
		sessionID: uuid.NewString(),
	}
	c.state.Store(int32(ClientStateConnected))

	c.send <- &WSMessage{
		Op: OpHello,
		Data: HelloPayload{
			ProtocolVersion: ProtocolVersion,
			SessionID:       c.sessionID,
			UserID:          claims.UserID,
			Kind:            claims.Kind,
		},
	}
	return c
}

// wants reports whether an event about senderID's message is for this client.
func (c *Client) wants(senderID string) bool {
	return c.staff || (senderID != "" && c.userID == senderID)
}

// Close performs cleanup for the client, ensuring it only happens once
func (c *Client) Close() {
	c.transitionTo(ClientStateClosing)
	c.connCloseOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
	c.transitionTo(ClientStateClosed)
}

// ReadPump discards client frames and keeps the read deadline alive through
// pongs. It returns when the connection closes.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "component", "ws", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if c.IsClosed() {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				slog.Warn("websocket write error", "component", "ws", "user_id", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			if c.IsClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *Client) IsClosed() bool {
	s := c.State()
	return s == ClientStateClosing || s == ClientStateClosed
}

func isValidClientTransition(from, to ClientState) bool {
	switch from {
	case ClientStateConnected:
		return to == ClientStateClosing
	case ClientStateClosing:
		return to == ClientStateClosed
	default:
		return false
	}
}

func (c *Client) transitionTo(newState ClientState) bool {
	for {
		current := c.State()
		if !isValidClientTransition(current, newState) {
			return false
		}
		if c.state.CompareAndSwap(int32(current), int32(newState)) {
			return true
		}
	}
}

// CloseSend closes the outbound channel so WritePump sends a close frame.
func (c *Client) CloseSend() {
	c.sendCloseOnce.Do(func() { close(c.send) })
}
