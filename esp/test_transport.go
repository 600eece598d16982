package esp

import (
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking transport using
// channels. This is needed because the channel's reader goroutine
// continuously reads from the transport, and we need reads to block until
// data is available (like a real serial port would).
type TestTransport struct {
	mu        sync.Mutex
	readChan  chan []byte
	writeChan chan []byte
	closed    bool
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests of layered packages.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan:  make(chan []byte, 10),
		writeChan: make(chan []byte, 32),
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	out := make([]byte, len(p))
	copy(out, p)
	select {
	case t.writeChan <- out:
	default:
		// Capture buffer full; the write itself still succeeds.
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates the module pushing bytes to the host.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Writes exposes everything written to the transport, one Write call per
// element, so tests can assert on the exact command lines sent.
func (t *TestTransport) Writes() <-chan []byte {
	return t.writeChan
}
