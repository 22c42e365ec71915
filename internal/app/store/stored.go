package store

import (
	"strings"
	"time"

	"linechat/internal/app/message"
)

// storedMessage is the persisted shape of a chat message shared by both adapters.
type storedMessage struct {
	ID        string       `json:"id"`
	Kind      message.Kind `json:"kind"`
	Sender    string       `json:"sender"`
	Receiver  string       `json:"receiver"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

func newStoredMessage(m message.Message) storedMessage {
	return storedMessage{
		ID:        m.ID,
		Kind:      m.Kind,
		Sender:    m.Sender,
		Receiver:  m.StoredTarget(),
		Content:   m.Body,
		CreatedAt: m.Timestamp,
	}
}

func (s storedMessage) toMessage() message.Message {
	return message.FromStored(s.ID, s.Kind, s.Sender, s.Receiver, s.Content, s.CreatedAt)
}

func (s storedMessage) visibleTo(username string) bool {
	return s.Kind == message.KindPublic ||
		strings.EqualFold(s.Receiver, username) ||
		strings.EqualFold(s.Sender, username)
}
