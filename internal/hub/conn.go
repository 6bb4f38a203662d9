package hub

import (
	"log"

	"boardsync/internal/channel"
	"boardsync/internal/model"
)

// conn is one client connection. state and boardID are owned by the
// goroutine running Serve.
type conn struct {
	id      string
	ch      channel.Channel
	send    chan model.Message
	state   State
	boardID string
}

// enqueue never blocks; it reports false when the queue is full.
func (c *conn) enqueue(msg model.Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// writePump is the only writer to the channel. Network I/O happens here,
// outside every board lock.
func (c *conn) writePump() {
	for msg := range c.send {
		if err := c.ch.Send(msg); err != nil {
			log.Printf("[Hub] ❌ Connection %s write failed: %v", c.id, err)
			c.ch.Close()
			for range c.send {
			}
			return
		}
	}
}
