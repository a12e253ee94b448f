package websocket

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

// client is one WebSocket connection. Only the write pump writes to conn.
type client struct {
	logger *slog.Logger
	conn   *websocket.Conn
	send   chan *Message
	done   chan struct{}

	// sessionID is owned by the read loop.
	sessionID string
}

func newClient(logger *slog.Logger, conn *websocket.Conn) *client {
	return &client{
		logger: logger,
		conn:   conn,
		send:   make(chan *Message, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// enqueue hands msg to the write pump; slow clients lose messages instead of blocking the hub.
func (that *client) enqueue(msg *Message) {
	select {
	case that.send <- msg:
	case <-that.done:
	default:
		that.logger.Warn("send buffer full, dropping message", "action", msg.Action)
	}
}

func (that *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = that.conn.Close()
	}()

	for {
		select {
		case msg := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteJSON(msg); err != nil {
				that.logger.Error("failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-that.done:
			_ = that.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
