package esp

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// rxBufferSize bounds the accumulated response data between Clears.
	rxBufferSize = 2048
	// busyWait bounds how long a new send waits for a prior transfer.
	busyWait = time.Second
	// transferTimeout bounds a single outbound transfer.
	transferTimeout = 5 * time.Second

	readChunkSize = 512
)

// Channel manages the raw byte stream to the module: a single reader
// goroutine deposits inbound data into a bounded receive buffer, and Send
// enforces at most one outbound transfer in flight.
//
// The reader performs no parsing. Protocol logic runs on the caller's stack
// against the accumulated buffer, which is cleared before every command so
// stale data cannot be mistaken for a fresh response.
type Channel struct {
	transport Transport
	logger    *slog.Logger

	mu         sync.Mutex
	buf        []byte
	ready      bool
	overflowed bool
	readErr    error
	observer   func(chunk []byte)

	// sendSem holds one token while a transfer is in flight.
	sendSem chan struct{}
	done    chan struct{}
}

// NewChannel wraps transport and starts the reader goroutine. The reader
// runs until the transport read fails, typically because the transport was
// closed.
func NewChannel(transport Transport, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{
		transport: transport,
		logger:    logger,
		buf:       make([]byte, 0, rxBufferSize),
		sendSem:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Channel) run() {
	defer close(c.done)
	chunk := make([]byte, readChunkSize)
	for {
		n, err := c.transport.Read(chunk)
		if n > 0 {
			c.deposit(chunk[:n])
		}
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
	}
}

// deposit appends a received chunk to the buffer and notifies the observer.
// It runs on the reader goroutine and must not block.
func (c *Channel) deposit(chunk []byte) {
	c.mu.Lock()
	free := rxBufferSize - len(c.buf)
	if len(chunk) > free {
		c.overflowed = true
		chunk = chunk[:free]
	}
	c.buf = append(c.buf, chunk...)
	c.ready = true
	observer := c.observer
	c.mu.Unlock()

	if observer != nil {
		copied := make([]byte, len(chunk))
		copy(copied, chunk)
		observer(copied)
	}
}

// Send transfers data to the module. It waits up to one second for any
// prior transfer to finish, then blocks until this transfer completes or
// its own bound elapses. The transfer itself is never retried here; retry
// policy belongs to the caller.
func (c *Channel) Send(data []byte) error {
	if len(data) == 0 {
		return ErrInvalidParam
	}

	select {
	case c.sendSem <- struct{}{}:
	case <-time.After(busyWait):
		return ErrBusy
	}

	result := make(chan error, 1)
	go func() {
		_, err := c.transport.Write(data)
		result <- err
		// The in-flight token is held until the transfer actually
		// finishes, even if the caller gave up waiting.
		<-c.sendSem
	}()

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("transfer: %w", err)
		}
		return nil
	case <-time.After(transferTimeout):
		return ErrTimeout
	}
}

// Clear resets the receive buffer and ready flag. Callers must clear
// immediately before sending a command.
func (c *Channel) Clear() {
	c.mu.Lock()
	c.buf = c.buf[:0]
	c.ready = false
	c.overflowed = false
	c.mu.Unlock()
}

// Consume discards the first n bytes of the receive buffer. Data deposited
// after the caller took its snapshot is preserved.
func (c *Channel) Consume(n int) {
	c.mu.Lock()
	if n >= len(c.buf) {
		c.buf = c.buf[:0]
	} else if n > 0 {
		c.buf = append(c.buf[:0], c.buf[n:]...)
	}
	c.mu.Unlock()
}

// Contains reports whether marker currently appears in the receive buffer.
func (c *Channel) Contains(marker string) bool {
	if marker == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Contains(c.buf, []byte(marker))
}

// Bytes returns a copy of the current receive buffer contents.
func (c *Channel) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}

// TakeReady consumes the new-data flag, reporting whether data arrived
// since the last Clear or TakeReady.
func (c *Channel) TakeReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ready := c.ready
	c.ready = false
	return ready
}

// Overflowed reports whether inbound data was dropped because the buffer
// filled up since the last Clear.
func (c *Channel) Overflowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflowed
}

// Err returns the error that stopped the reader, if it has stopped.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// SetObserver registers a callback invoked from the reader goroutine with a
// copy of every received chunk, before any command-path processing. The
// callback must not block; it exists so a session layer can capture push
// notifications that would otherwise be lost to a concurrent Clear.
func (c *Channel) SetObserver(fn func(chunk []byte)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

// Done is closed once the reader goroutine has stopped.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}
