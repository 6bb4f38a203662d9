// Package channel defines the ordered, reliable, bidirectional message link
// between one client and the server, and its implementations.
package channel

import (
	"errors"

	"boardsync/internal/model"
)

// ErrClosed is returned by Send and Receive once the channel is closed.
var ErrClosed = errors.New("channel closed")

// Channel carries messages between exactly one client and the server.
// Messages from one sender arrive in send order. Send is safe for
// concurrent use; Receive must be called from a single goroutine.
type Channel interface {
	Send(msg model.Message) error
	Receive() (model.Message, error)
	Close() error
}
