package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 5 * time.Minute
	closeGrace   = 5 * time.Second
)

// Writer serializes writes to a connection. gorilla/websocket allows one
// concurrent writer, and both the reader loop and the session goroutine write.
type Writer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWriter(conn *websocket.Conn) *Writer {
	return &Writer{conn: conn}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (w *Writer) WriteTyped(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (w *Writer) WriteError(errMsg string) error {
	return w.WriteTyped(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// Close sends a normal close frame and gives the peer closeGrace to answer.
func (w *Writer) Close(reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	err := w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	_ = w.conn.SetReadDeadline(time.Now().Add(closeGrace))
	return err
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	return conn.ReadJSON(v)
}
