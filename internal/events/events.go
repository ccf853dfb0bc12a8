// Package events describes changes to the messaging channel and delivers
// them to interested publishers.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"catcharity/internal/models"
)

type Type string

const (
	MessageCreated      Type = "message.created"
	MessageReplied      Type = "message.replied"
	MessageReplyUpdated Type = "message.reply_updated"
	MessageReplyDeleted Type = "message.reply_deleted"
)

type Event struct {
	Type       Type            `json:"type"`
	Message    *models.Message `json:"message"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func NewMessageEvent(t Type, m *models.Message) Event {
	return Event{Type: t, Message: m, OccurredAt: time.Now().UTC()}
}

// SenderID is the public user the event concerns.
func (e Event) SenderID() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.SenderID
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout delivers every event to all of its publishers. A failing publisher
// does not stop delivery to the others.
type Fanout struct {
	publishers []Publisher
}

func NewFanout(publishers ...Publisher) *Fanout {
	f := &Fanout{}
	for _, p := range publishers {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

func (f *Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, e); err != nil {
			slog.Warn("error publishing event", "component", "events", "type", e.Type, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
