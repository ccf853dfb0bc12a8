package models

import "time"

type Message struct {
	ID            string    `json:"_id"`
	SenderID      string    `json:"sender"`
	Content       string    `json:"content"`
	Replied       bool      `json:"replied"`
	ReplyContent  *string   `json:"replyContent,omitempty"`
	CharityWorker *string   `json:"charityWorker,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SetReply marks the message replied by workerID.
func (m *Message) SetReply(content, workerID string) {
	m.Replied = true
	m.ReplyContent = &content
	m.CharityWorker = &workerID
}

// ClearReply resets the reply state without deleting the message.
func (m *Message) ClearReply() {
	m.Replied = false
	m.ReplyContent = nil
	m.CharityWorker = nil
}
