package esp

import (
	"context"
	"io"
)

// Transport represents an established, bidirectional byte stream to a WiFi
// module.
//
// A Transport is assumed to be already connected and ready for use. It
// provides the low-level I/O primitives required to send AT commands and
// receive responses. Typical implementations include serial ports, WebSocket
// serial bridges, or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a WiFi module.
//
// Dialer abstracts how the module connection is created (for example, via a
// serial port, a WebSocket bridge, or a test double) and is intended to be
// used during device construction only. Once a Transport is obtained, the
// Dialer is no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport.
	// It may perform blocking operations and should respect cancellation and
	// deadlines provided by the context. Dial returns an error if the
	// transport cannot be established.
	Dial(ctx context.Context) (Transport, error)
}
