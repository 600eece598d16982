package esp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// ErrTransportClosed is returned when reading from a closed WebSocket
// transport.
var ErrTransportClosed = errors.New("websocket transport closed")

// WSDialer opens a WiFi module exposed through a WebSocket serial bridge.
// Each binary WebSocket message carries a chunk of the raw byte stream.
type WSDialer struct {
	// URL is the bridge endpoint, e.g. "ws://bridge.local/serial".
	URL string
	// Header is sent with the upgrade request, e.g. for authentication.
	Header http.Header
}

// Dial connects to the bridge endpoint and wraps the connection as a
// Transport.
func (d WSDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("esp: context is nil")
	}
	if d.URL == "" {
		return nil, errors.New("esp: websocket URL is required")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, fmt.Errorf("dial websocket %s: %w", d.URL, err)
	}
	return &wsTransport{conn: conn}, nil
}

// wsTransport adapts a WebSocket connection to the byte-stream Transport
// contract. Reads buffer whole binary messages and hand them out in pieces.
type wsTransport struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *wsTransport) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrTransportClosed
	}

	// Drain buffered data from the previous message first.
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		// Only binary messages carry the serial byte stream.
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *wsTransport) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsTransport) Close() error {
	w.closed = true
	return w.conn.Close()
}
