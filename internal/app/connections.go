package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrChannelFull is returned by a Channel whose outbound buffer is full.
	ErrChannelFull = errors.New("channel buffer full")
	// ErrChannelClosed is returned by a Channel after Close.
	ErrChannelClosed = errors.New("channel closed")
)

// Message is one outbound protocol event.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Channel is a live transport to one participant. Send must not block.
type Channel interface {
	Send(msg Message) error
	Close() error
}

// Connections maps (room, participant) to the participant's live channel.
type Connections struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]Channel // room code -> participant id -> channel
}

func NewConnections(logger *slog.Logger) *Connections {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connections{
		logger: logger,
		rooms:  make(map[string]map[string]Channel),
	}
}

// Register installs ch for the participant, closing any channel it replaces.
func (c *Connections) Register(roomCode, participantID string, ch Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.rooms[roomCode]
	if !ok {
		bucket = make(map[string]Channel)
		c.rooms[roomCode] = bucket
	}
	if old, ok := bucket[participantID]; ok && old != ch {
		if err := old.Close(); err != nil {
			c.logger.Debug("close replaced channel", "room", roomCode, "participant", participantID, "error", err)
		}
	}
	bucket[participantID] = ch
}

// Unregister removes the participant's mapping if it is still ch and prunes
// the room bucket once empty. It reports whether anything was removed; a
// false result means a reconnect already replaced ch.
func (c *Connections) Unregister(roomCode, participantID string, ch Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.rooms[roomCode]
	if !ok {
		return false
	}
	current, ok := bucket[participantID]
	if !ok || (ch != nil && current != ch) {
		return false
	}
	delete(bucket, participantID)
	if len(bucket) == 0 {
		delete(c.rooms, roomCode)
	}
	return true
}

// Send delivers msg to one participant. Absent participants are ignored.
func (c *Connections) Send(roomCode, participantID string, msg Message) {
	c.mu.RLock()
	ch, ok := c.rooms[roomCode][participantID]
	c.mu.RUnlock()
	if !ok {
		return
	}
	c.deliver(roomCode, participantID, ch, msg)
}

// Broadcast delivers msg to every channel in the room.
func (c *Connections) Broadcast(roomCode string, msg Message) {
	c.BroadcastEach(roomCode, func(string) Message { return msg })
}

// BroadcastEach delivers a per-recipient message to every channel in the
// room. A failing recipient never stops delivery to the others.
func (c *Connections) BroadcastEach(roomCode string, build func(participantID string) Message) {
	targets := c.snapshot(roomCode)
	for id, ch := range targets {
		c.deliver(roomCode, id, ch, build(id))
	}
}

// CloseRoom closes and forgets every channel in the room.
func (c *Connections) CloseRoom(roomCode string) {
	c.mu.Lock()
	bucket := c.rooms[roomCode]
	delete(c.rooms, roomCode)
	c.mu.Unlock()

	for id, ch := range bucket {
		if err := ch.Close(); err != nil {
			c.logger.Debug("close channel", "room", roomCode, "participant", id, "error", err)
		}
	}
}

// Close closes every channel in every room.
func (c *Connections) Close() {
	c.mu.Lock()
	rooms := c.rooms
	c.rooms = make(map[string]map[string]Channel)
	c.mu.Unlock()

	for _, bucket := range rooms {
		for _, ch := range bucket {
			_ = ch.Close()
		}
	}
}

// Count returns the number of channels registered for the room.
func (c *Connections) Count(roomCode string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms[roomCode])
}

func (c *Connections) snapshot(roomCode string) map[string]Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bucket := c.rooms[roomCode]
	out := make(map[string]Channel, len(bucket))
	for id, ch := range bucket {
		out[id] = ch
	}
	return out
}

func (c *Connections) deliver(roomCode, participantID string, ch Channel, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("channel send panicked", "room", roomCode, "participant", participantID,
				"event", msg.Event, "error", fmt.Sprint(rec))
		}
	}()
	if err := ch.Send(msg); err != nil {
		c.logger.Warn("deliver failed", "room", roomCode, "participant", participantID, "event", msg.Event, "error", err)
	}
}
