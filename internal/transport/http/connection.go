package http

import (
	"log/slog"
	"sync"
	"time"

	"live-quiz-service/internal/app"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 256
)

// wsChannel is one participant's socket. Writes happen only on the write
// pump goroutine; Send just queues.
type wsChannel struct {
	conn   *websocket.Conn
	logger *slog.Logger
	send   chan app.Message
	done   chan struct{}
	once   sync.Once
}

func newWSChannel(conn *websocket.Conn, logger *slog.Logger) *wsChannel {
	return &wsChannel{
		conn:   conn,
		logger: logger,
		send:   make(chan app.Message, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues msg without blocking.
func (c *wsChannel) Send(msg app.Message) error {
	select {
	case <-c.done:
		return app.ErrChannelClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return app.ErrChannelFull
	}
}

// Close stops the write pump, which closes the socket.
func (c *wsChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *wsChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("ws write failed", "event", msg.Event, "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before Close.
func (c *wsChannel) flush() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
