/*
Package message defines the typed envelope that flows between sessions, the broadcaster and the store.

Envelopes are built once at the boundary where the event originates and are only turned into wire
strings by the protocol encoder.
*/
package message

import (
	"time"

	"linechat/internal/app/user"
	"linechat/internal/pkg/randx"
)

// Kind identifies the variant carried by a Message.
type Kind string

const (
	// KindPublic is a chat line fanned out to every joined session.
	KindPublic Kind = "PUBLIC"

	// KindPrivate is a direct message between two accounts.
	KindPrivate Kind = "PRIVATE"

	// KindSystem is a server notice addressed to a single session.
	KindSystem Kind = "SYSTEM"

	// KindUserList carries the registered accounts with their online flags.
	KindUserList Kind = "USERLIST"

	// KindError reports a rejected command; Body holds the reason token.
	KindError Kind = "ERROR"

	KindConnected    Kind = "CONNECTED"
	KindLoginSuccess Kind = "LOGIN_SUCCESS"
	KindLoginFail    Kind = "LOGIN_FAIL"
	KindOTPRequested Kind = "OTP_REQ"
	KindOTPSent      Kind = "OTP_SENT"
	KindUserJoined   Kind = "USER_JOINED"
	KindUserLeft     Kind = "USER_LEFT"
)

const (
	// PublicTarget is the receiver recorded for public messages in the store.
	PublicTarget = "ALL"

	// SystemSender is the sender name used for server notices.
	SystemSender = "System"
)

// Message is the tagged envelope for every frame the server emits.
type Message struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Sender    string          `json:"sender,omitempty"`
	Target    string          `json:"target,omitempty"`
	Body      string          `json:"body,omitempty"`
	Users     []user.Presence `json:"users,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// IsChat reports whether the message belongs to the persisted chat log.
func (m Message) IsChat() bool {
	return m.Kind == KindPublic || m.Kind == KindPrivate
}

// StoredTarget returns the receiver column value used when persisting the message.
func (m Message) StoredTarget() string {
	if m.Kind == KindPrivate {
		return m.Target
	}
	return PublicTarget
}

func newMessage(kind Kind, sender, target, body string) Message {
	return Message{
		ID:        randx.MessageID(),
		Kind:      kind,
		Sender:    sender,
		Target:    target,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
}

// NewPublic builds a public chat line from sender.
func NewPublic(sender, body string) Message {
	return newMessage(KindPublic, sender, "", body)
}

// NewPrivate builds a direct message from sender to target.
func NewPrivate(sender, target, body string) Message {
	return newMessage(KindPrivate, sender, target, body)
}

// NewSystem builds a server notice.
func NewSystem(body string) Message {
	return newMessage(KindSystem, SystemSender, "", body)
}

// NewEvent builds a protocol event whose optional subject is a username.
func NewEvent(kind Kind, subject string) Message {
	return newMessage(kind, "", "", subject)
}

// NewError builds an error frame carrying the given reason token.
func NewError(reason string) Message {
	return newMessage(KindError, "", "", reason)
}

// NewUserList builds a user list frame.
func NewUserList(users []user.Presence) Message {
	m := newMessage(KindUserList, "", "", "")
	m.Users = users
	return m
}

// FromStored rebuilds a chat envelope from a persisted row. The receiver only becomes the target
// of private messages.
func FromStored(id string, kind Kind, sender, receiver, body string, at time.Time) Message {
	m := Message{
		ID:        id,
		Kind:      kind,
		Sender:    sender,
		Body:      body,
		Timestamp: at.UTC(),
	}
	if kind == KindPrivate {
		m.Target = receiver
	}
	return m
}
