package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"boardsync/internal/model"
)

const writeWait = 10 * time.Second

// WebSocket is a Channel over a gorilla websocket connection, one JSON
// message per frame.
type WebSocket struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

// Dial opens a websocket to addr, e.g. ws://localhost:8080/ws.
func Dial(ctx context.Context, addr string, header http.Header) (*WebSocket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewWebSocket(conn), nil
}

// Send writes msg as a single text frame.
func (w *WebSocket) Send(msg model.Message) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Event, err)
	}
	return nil
}

// Receive blocks until the next message arrives.
func (w *WebSocket) Receive() (model.Message, error) {
	var msg model.Message
	if err := w.conn.ReadJSON(&msg); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// Close sends a close frame (best effort) and closes the connection.
func (w *WebSocket) Close() error {
	w.closeOnce.Do(func() {
		w.writeMu.Lock()
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		w.writeMu.Unlock()
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
