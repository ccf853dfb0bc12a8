package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"catcharity/internal/models"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestFanoutDeliversDespiteFailures(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	ok := &recordingPublisher{}
	fanout := NewFanout(failing, nil, ok)

	msg := &models.Message{ID: "m1", SenderID: "u1", Content: "hi"}
	err := fanout.Publish(context.Background(), NewMessageEvent(MessageCreated, msg))
	if err == nil {
		t.Fatal("Publish() error = nil, want joined publisher error")
	}
	if len(ok.events) != 1 || ok.events[0].SenderID() != "u1" {
		t.Fatalf("healthy publisher got %d events", len(ok.events))
	}
}

func TestEventJSONShape(t *testing.T) {
	msg := &models.Message{ID: "m1", SenderID: "u1", Content: "hi"}
	data, err := json.Marshal(NewMessageEvent(MessageReplied, msg))
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if decoded["type"] != "message.replied" {
		t.Fatalf("type = %v, want message.replied", decoded["type"])
	}
	message, ok := decoded["message"].(map[string]any)
	if !ok || message["_id"] != "m1" || message["sender"] != "u1" {
		t.Fatalf("message = %v", decoded["message"])
	}
}

func TestAMQPPublisher(t *testing.T) {
	url := os.Getenv("AMQP_URL")
	if url == "" {
		t.Skip("AMQP_URL not set")
	}

	p, err := NewAMQPPublisher(url, "cat_charity.test")
	if err != nil {
		t.Fatalf("NewAMQPPublisher() error = %v", err)
	}
	defer p.Close()

	msg := &models.Message{ID: "m1", SenderID: "u1", Content: "hi"}
	if err := p.Publish(context.Background(), NewMessageEvent(MessageCreated, msg)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}
