package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"catcharity/internal/constants"
	"catcharity/internal/events"
)

const (
	// maxDroppedMessagesBeforeDisconnect is the threshold for disconnecting slow clients
	maxDroppedMessagesBeforeDisconnect = 100
)

var ErrHubClosed = errors.New("websocket hub is shut down")

// Hub fans messaging events out to connected clients. Staff clients receive
// every event; public clients receive the events about their own messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	shutdown   chan struct{}
	closeOnce  sync.Once
	sequence   atomic.Int64
	mu         sync.RWMutex
}

var _ events.Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, constants.WSBroadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		shutdown:   make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			h.mu.Lock()
			for client := range h.clients {
				client.CloseSend()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			slog.Info("shutdown complete", "component", "hub")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			slog.Debug("client registered", "component", "hub", "user_id", client.userID, "session_id", client.sessionID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.CloseSend()
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if client.wants(env.senderID) {
					h.sendToClientLocked(client, env.msg)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Caller must hold at least a read lock on h.mu.
func (h *Hub) sendToClientLocked(client *Client, msg *WSMessage) {
	select {
	case client.send <- msg:
	default:
		dropped := atomic.AddInt64(&client.DroppedMessages, 1)

		// Log warning periodically (every 10 drops)
		if dropped%10 == 1 {
			slog.Warn("dropped messages for slow client", "component", "hub", "dropped", dropped, "user_id", client.userID)
		}

		if dropped >= maxDroppedMessagesBeforeDisconnect {
			slog.Warn("disconnecting slow client", "component", "hub", "user_id", client.userID, "dropped", dropped)
			// Close will be handled by the client's pumps
			client.Close()
		}
	}
}

// Publish queues e for delivery to the interested clients.
func (h *Hub) Publish(ctx context.Context, e events.Event) error {
	eventType, ok := eventTypes[e.Type]
	if !ok {
		return nil
	}

	env := envelope{
		msg: &WSMessage{
			Op:       OpDispatch,
			Type:     eventType,
			Sequence: h.sequence.Add(1),
			Data:     MessageEventPayload{Message: e.Message},
		},
		senderID: e.SenderID(),
	}

	select {
	case h.broadcast <- env:
		return nil
	case <-h.shutdown:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register adds an authenticated client. It returns false once the hub is
// shut down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.shutdown:
		return false
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() { close(h.shutdown) })
}
