package chat

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport implements Transport over a WebSocket connection.
// Each server frame is sent as one text message; inbound text messages may carry several lines.
type WSTransport struct {
	conn       *websocket.Conn
	remoteAddr string

	// lines buffered from the last inbound message.
	pending []string

	closeOnce sync.Once
	closeErr  error
}

// NewWSTransport wraps an upgraded connection. remoteAddr is the client address as seen by the HTTP layer.
func NewWSTransport(conn *websocket.Conn, remoteAddr string, maxLine int) *WSTransport {
	conn.SetReadLimit(int64(maxLine))

	return &WSTransport{
		conn:       conn,
		remoteAddr: remoteAddr,
	}
}

func (t *WSTransport) ReadLine() (string, error) {
	for len(t.pending) == 0 {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", ErrLineTooLong
			}
			return "", err
		}

		if msgType != websocket.TextMessage {
			continue
		}

		t.pending = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	}

	line := t.pending[0]
	t.pending = t.pending[1:]
	return line, nil
}

func (t *WSTransport) WriteLine(line string) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (t *WSTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(time.Second))
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *WSTransport) RemoteAddr() string {
	return t.remoteAddr
}
