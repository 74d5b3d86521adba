package ws

import "time"

// Socket is the subset of *websocket.Conn the session layer touches.
// Narrowed to an interface so tests can drive a session without a live
// upgrade.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}
