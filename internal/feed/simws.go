package feed

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// WSSource is a gorilla/websocket-backed Source that connects to a plain
// text WebSocket feed — a drop-in stand-in for a live broker's upstream
// PULL socket, used in dev/test so the Bridge has a concrete transport to
// exercise end-to-end without a real broker. Grounded on teacher's
// internal/marketdata/wssim.Ingest, restructured from wssim's own
// reconnect loop into the Connect/ReadMessage/Close shape Bridge expects
// (Bridge owns the reconnect schedule so every Source, simulated or
// real, shares one backoff policy).
type WSSource struct {
	url  string
	conn *websocket.Conn
}

// NewWSSource creates a WSSource targeting url (e.g. "ws://localhost:9001/ws").
func NewWSSource(url string) *WSSource {
	return &WSSource{url: url}
}

// Connect implements Source.
func (w *WSSource) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", w.url, err)
	}
	w.conn = conn
	return nil
}

// ReadMessage implements Source.
func (w *WSSource) ReadMessage(ctx context.Context) (string, error) {
	_, raw, err := w.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Close implements Source.
func (w *WSSource) Close() error {
	if w.conn == nil {
		return nil
	}
	err := w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
	closeErr := w.conn.Close()
	if err != nil {
		return err
	}
	return closeErr
}
