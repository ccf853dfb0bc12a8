package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"catcharity/internal/auth"
	"catcharity/internal/constants"
	"catcharity/internal/events"
	"catcharity/internal/models"
	"catcharity/internal/store"
)

const publishTimeout = 5 * time.Second

// ReplyNotifier tells a public user that staff answered their message.
type ReplyNotifier interface {
	SendReplyNotification(to, username, question, reply string) error
}

type MessageHandler struct {
	store     store.Store
	publisher events.Publisher
	notifier  ReplyNotifier
}

// NewMessageHandler accepts a nil publisher or notifier when the matching
// feature is disabled.
func NewMessageHandler(st store.Store, publisher events.Publisher, notifier ReplyNotifier) *MessageHandler {
	return &MessageHandler{store: st, publisher: publisher, notifier: notifier}
}

type CreateMessageRequest struct {
	UserID  string `json:"userId"`
	Content string `json:"content" validate:"required"`
}

type ReplyRequest struct {
	MessageID    string `json:"messageId" validate:"required"`
	ReplyContent string `json:"replyContent" validate:"required"`
}

type UpdateReplyRequest struct {
	ReplyContent string `json:"replyContent" validate:"required"`
}

// POST /messages
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r)
	if claims == nil || claims.Kind != auth.KindPublic {
		forbidden(w, "Only public users can send messages")
		return
	}

	var req CreateMessageRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	senderID := req.UserID
	if senderID == "" {
		senderID = claims.UserID
	}
	if senderID != claims.UserID {
		forbidden(w, "Cannot send messages for another user")
		return
	}

	content, err := messageText(req.Content)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if _, err := h.store.PublicUsers().FindByID(r.Context(), senderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(w, "Sender not found")
			return
		}
		slog.Error("error finding sender", "error", err)
		internalError(w)
		return
	}

	msg := &models.Message{SenderID: senderID, Content: content}
	if err := h.store.Messages().Create(r.Context(), msg); err != nil {
		slog.Error("error creating message", "error", err)
		internalError(w)
		return
	}

	h.publish(r.Context(), events.NewMessageEvent(events.MessageCreated, msg))
	writeJSON(w, http.StatusOK, msg)
}

// GET /messages/{userId}
func (h *MessageHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !canAccessUser(r, userID, true) {
		forbidden(w, "Cannot read another user's messages")
		return
	}

	if _, err := h.store.PublicUsers().FindByID(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(w, "User not found")
			return
		}
		slog.Error("error finding public user", "error", err)
		internalError(w)
		return
	}

	messages, err := h.store.Messages().FindBySender(r.Context(), userID)
	if err != nil {
		slog.Error("error listing messages", "error", err, "user_id", userID)
		internalError(w)
		return
	}
	writeMessages(w, messages)
}

// GET /getmessages
func (h *MessageHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	messages, err := h.store.Messages().FindAll(r.Context())
	if err != nil {
		slog.Error("error listing messages", "error", err)
		internalError(w)
		return
	}
	writeMessages(w, messages)
}

// POST /messages/reply
func (h *MessageHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req ReplyRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	content, err := messageText(req.ReplyContent)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	msg, sender, ok := h.loadMessage(w, r, req.MessageID)
	if !ok {
		return
	}

	msg.SetReply(content, ClaimsFrom(r).UserID)
	if !h.save(w, r, msg) {
		return
	}

	h.publish(r.Context(), events.NewMessageEvent(events.MessageReplied, msg))
	h.notify(sender, msg)
	writeJSON(w, http.StatusOK, msg)
}

// PUT /messages/reply/{messageId}
func (h *MessageHandler) UpdateReply(w http.ResponseWriter, r *http.Request) {
	var req UpdateReplyRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	content, err := messageText(req.ReplyContent)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	msg, _, ok := h.loadMessage(w, r, chi.URLParam(r, "messageId"))
	if !ok {
		return
	}

	// replied is left as it was; only the text changes.
	msg.ReplyContent = &content
	if !h.save(w, r, msg) {
		return
	}

	h.publish(r.Context(), events.NewMessageEvent(events.MessageReplyUpdated, msg))
	writeJSON(w, http.StatusOK, msg)
}

// DELETE /messages/reply/{messageId}
func (h *MessageHandler) DeleteReply(w http.ResponseWriter, r *http.Request) {
	msg, _, ok := h.loadMessage(w, r, chi.URLParam(r, "messageId"))
	if !ok {
		return
	}

	msg.ClearReply()
	if !h.save(w, r, msg) {
		return
	}

	h.publish(r.Context(), events.NewMessageEvent(events.MessageReplyDeleted, msg))
	writeJSON(w, http.StatusOK, msg)
}

// loadMessage finds a message and its sender, answering 404 for either.
func (h *MessageHandler) loadMessage(w http.ResponseWriter, r *http.Request, messageID string) (*models.Message, *models.PublicUser, bool) {
	msg, err := h.store.Messages().FindByID(r.Context(), messageID)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "Message not found")
		return nil, nil, false
	}
	if err != nil {
		slog.Error("error finding message", "error", err, "message_id", messageID)
		internalError(w)
		return nil, nil, false
	}

	sender, err := h.store.PublicUsers().FindByID(r.Context(), msg.SenderID)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "Sender not found")
		return nil, nil, false
	}
	if err != nil {
		slog.Error("error finding sender", "error", err, "message_id", messageID)
		internalError(w)
		return nil, nil, false
	}

	return msg, sender, true
}

func (h *MessageHandler) save(w http.ResponseWriter, r *http.Request, msg *models.Message) bool {
	err := h.store.Messages().Save(r.Context(), msg)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "Message not found")
		return false
	}
	if err != nil {
		slog.Error("error saving message", "error", err, "message_id", msg.ID)
		internalError(w)
		return false
	}
	return true
}

// publish runs after the write has committed, so a failure is only logged.
func (h *MessageHandler) publish(ctx context.Context, e events.Event) {
	if h.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := h.publisher.Publish(ctx, e); err != nil {
		eventPublishFailures.WithLabelValues(string(e.Type)).Inc()
		slog.Warn("error publishing message event", "error", err, "type", e.Type, "message_id", e.Message.ID)
	}
}

func (h *MessageHandler) notify(sender *models.PublicUser, msg *models.Message) {
	if h.notifier == nil || sender.Email == "" || msg.ReplyContent == nil {
		return
	}

	to, username, question, reply := sender.Email, sender.Username, msg.Content, *msg.ReplyContent
	go func() {
		if err := h.notifier.SendReplyNotification(to, username, question, reply); err != nil {
			slog.Warn("error sending reply notification", "error", err, "message_id", msg.ID)
		}
	}()
}

func messageText(raw string) (string, error) {
	text := sanitizeText(raw)
	if text == "" {
		return "", errors.New("message text is required")
	}
	if utf8.RuneCountInString(text) > constants.MaxMessageContentLength {
		return "", fmt.Errorf("message text exceeds %d characters", constants.MaxMessageContentLength)
	}
	return text, nil
}

func writeMessages(w http.ResponseWriter, messages []*models.Message) {
	if messages == nil {
		messages = []*models.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}
