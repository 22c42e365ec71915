package protocol

import (
	"strings"

	"linechat/internal/app/message"
)

// EchoSender replaces the sender name when a private message is rendered back to its author.
const EchoSender = "Me"

// Encode renders m as a single frame (without the trailing newline) for the session joined as viewer.
// The viewer only matters for private messages, which render as an echo for their author.
func Encode(m message.Message, viewer string) string {
	var b strings.Builder
	b.WriteString(ServerPrefix)

	switch m.Kind {
	case message.KindPublic:
		b.WriteString("MSG ")
		b.WriteString(m.Sender)
		b.WriteByte(' ')
		b.WriteString(m.Body)

	case message.KindPrivate:
		b.WriteString("MSG ")
		if viewer != "" && strings.EqualFold(m.Sender, viewer) {
			b.WriteString(EchoSender)
			b.WriteString(" -> ")
			b.WriteString(m.Target)
			b.WriteString(": ")
		} else {
			b.WriteString(m.Sender)
			b.WriteString(" (Private): ")
		}
		b.WriteString(m.Body)

	case message.KindSystem:
		b.WriteString("MSG ")
		b.WriteString(message.SystemSender)
		b.WriteByte(' ')
		b.WriteString(m.Body)

	case message.KindUserList:
		b.WriteString(string(message.KindUserList))
		for _, p := range m.Users {
			b.WriteByte(' ')
			b.WriteString(p.Username)
			if p.Online {
				b.WriteString(":1")
			} else {
				b.WriteString(":0")
			}
		}

	default:
		b.WriteString(string(m.Kind))
		if m.Body != "" {
			b.WriteByte(' ')
			b.WriteString(m.Body)
		}
	}

	return b.String()
}
