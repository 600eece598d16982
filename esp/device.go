package esp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/mqttgw/at"
)

// maxCommandLen bounds a single formatted command line. Formatting that
// would exceed it is rejected, never truncated onto the wire.
const maxCommandLen = 1024

// Connectivity is the network association state, mutated only by the
// Device in response to command outcomes or demultiplexed events.
type Connectivity int

const (
	Disconnected Connectivity = iota
	Associating
	Associated
)

func (c Connectivity) String() string {
	switch c {
	case Associating:
		return "associating"
	case Associated:
		return "associated"
	default:
		return "disconnected"
	}
}

// Device drives a WiFi module over its textual command/response protocol.
// It provides a synchronous "send command, await terminator or timeout"
// primitive, recognizes unsolicited notifications deposited into the shared
// receive buffer, and owns the connectivity state.
//
// A Device is not reentrant: commands share one channel with no request
// IDs, so correctness depends on one logical caller issuing commands at a
// time. Callers needing concurrent access must serialize externally.
type Device struct {
	transport Transport
	channel   *Channel
	config    Config
	logger    *slog.Logger
	clock     Clock

	closed      bool
	initialized bool
	multiConn   bool
	passThrough bool
	serverUp    bool

	connectivity Connectivity
	stationIP    string

	onData         func(linkID int, payload []byte)
	onConnected    func()
	onDisconnected func()
}

// New dials the transport and initializes the module: reception is armed,
// the link is given time to settle, and a self-test command is issued. If
// the self-test fails, one recovery attempt forces the module out of a
// stuck pass-through mode before giving up.
func New(ctx context.Context, config Config) (*Device, error) {
	if config.Dialer == nil {
		return nil, ErrNoDialer
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	d := &Device{
		transport: transport,
		channel:   NewChannel(transport, config.Logger),
		config:    config,
		logger:    config.Logger,
		clock:     config.Clock,
	}

	if err := d.init(ctx); err != nil {
		transport.Close()
		return nil, fmt.Errorf("initialize module: %w", err)
	}
	return d, nil
}

func (d *Device) init(ctx context.Context) error {
	d.clock.Sleep(d.config.SettleDelay)

	if err := d.Test(ctx); err != nil {
		// The module may be stuck relaying a previous session's socket.
		d.logger.Warn("self-test failed, forcing pass-through exit", "error", err)
		if err := d.ExitPassThrough(ctx); err != nil {
			d.logger.Warn("pass-through exit failed", "error", err)
		}
		d.clock.Sleep(d.config.SettleDelay / 2)
		if err := d.Test(ctx); err != nil {
			return fmt.Errorf("module not responding: %w", err)
		}
	}

	if err := d.SetEcho(ctx, false); err != nil {
		return fmt.Errorf("disable echo: %w", err)
	}
	if err := d.SetWiFiMode(ctx, ModeStation); err != nil {
		return fmt.Errorf("select station mode: %w", err)
	}

	d.initialized = true
	d.logger.Info("module initialized")
	return nil
}

// SendCommand clears the receive buffer, sends cmd and, when terminator is
// non-empty, polls the buffer until it contains the terminator, a failure
// marker, or the timeout elapses. A generic failure marker maps to ErrNak,
// a busy marker to ErrBusy, and no match to ErrTimeout.
func (d *Device) SendCommand(ctx context.Context, cmd, terminator string, timeout time.Duration) error {
	if d.closed {
		return ErrAlreadyClosed
	}
	if cmd == "" {
		return ErrInvalidParam
	}

	d.channel.Clear()
	if err := d.channel.Send([]byte(cmd)); err != nil {
		return err
	}
	if terminator == "" {
		return nil
	}

	start := d.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.channel.Overflowed() {
			return ErrBufferOverflow
		}
		if d.channel.Contains(terminator) {
			return nil
		}
		if d.channel.Contains(at.ERROR) || d.channel.Contains(at.FAIL) {
			return ErrNak
		}
		if d.channel.Contains(at.Busy) {
			return ErrBusy
		}
		if d.clock.Now().Sub(start) >= timeout {
			return ErrTimeout
		}
		d.clock.Sleep(d.config.PollInterval)
	}
}

// SendCommandf formats a command before delegating to SendCommand. An
// over-long result is rejected with ErrCommandTooLong.
func (d *Device) SendCommandf(ctx context.Context, terminator string, timeout time.Duration, format string, args ...any) error {
	cmd := fmt.Sprintf(format, args...)
	if len(cmd) > maxCommandLen {
		return ErrCommandTooLong
	}
	return d.SendCommand(ctx, cmd, terminator, timeout)
}

// awaitMarker polls the receive buffer for marker without sending anything,
// for command sequences whose completion arrives after a raw transfer.
func (d *Device) awaitMarker(ctx context.Context, marker string, timeout time.Duration) error {
	start := d.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.channel.Contains(marker) {
			return nil
		}
		if d.clock.Now().Sub(start) >= timeout {
			return ErrTimeout
		}
		d.clock.Sleep(d.config.PollInterval)
	}
}

// Contains reports whether marker appears in the current receive buffer.
// Callers use it for ad hoc parsing of multi-line responses.
func (d *Device) Contains(marker string) bool {
	return d.channel.Contains(marker)
}

// ResponseBytes returns a copy of the current receive buffer for ad hoc
// parsing.
func (d *Device) ResponseBytes() []byte {
	return d.channel.Bytes()
}

// ClearBuffer resets the receive buffer.
func (d *Device) ClearBuffer() {
	d.channel.Clear()
}

// SendRaw transfers bytes without any command framing. It is used for the
// payload phase of two-phase sends and for pass-through traffic.
func (d *Device) SendRaw(data []byte) error {
	if d.closed {
		return ErrAlreadyClosed
	}
	return d.channel.Send(data)
}

// CommandTimeout exposes the configured default response bound, for layers
// that issue their own awaits on this device.
func (d *Device) CommandTimeout() time.Duration {
	return d.config.CommandTimeout
}

// PollInterval exposes the configured buffer polling period.
func (d *Device) PollInterval() time.Duration {
	return d.config.PollInterval
}

// Clock exposes the device clock so layered sessions share one notion of
// time in tests.
func (d *Device) Clock() Clock {
	return d.clock
}

// Pump inspects newly received data for unsolicited markers and invokes
// the registered handlers. It must be called periodically from the
// application loop. Connectivity markers are checked before data markers;
// each marker kind dispatches at most once per call, so a second
// occurrence inside one frame waits for the next frame.
//
// It returns the inspected buffer when new data was present, nil
// otherwise, so layered sessions can scan the same snapshot for their own
// markers. The inspected bytes are consumed from the receive buffer;
// every byte is handed to the dispatch path at most once.
func (d *Device) Pump() []byte {
	if d.closed || !d.channel.TakeReady() {
		return nil
	}
	buf := d.channel.Bytes()

	// A length-prefixed frame may still be arriving. Hold the buffer until
	// the declared payload is complete, so a partial frame is never
	// dispatched with the remainder lost to the consume below.
	if partialFrame(buf, d.multiConn) {
		return nil
	}

	switch {
	case bytes.Contains(buf, []byte(at.MarkerWiFiDisconnected)):
		if d.connectivity != Disconnected {
			d.connectivity = Disconnected
			d.logger.Info("wifi disconnected")
			if d.onDisconnected != nil {
				d.onDisconnected()
			}
		}
	case bytes.Contains(buf, []byte(at.MarkerWiFiConnected)),
		bytes.Contains(buf, []byte(at.MarkerWiFiGotIP)):
		if d.connectivity != Associated {
			d.connectivity = Associated
			d.logger.Info("wifi connected")
			if d.onConnected != nil {
				d.onConnected()
			}
		}
	}

	if data, ok := at.ParseData(buf, d.multiConn); ok {
		if d.onData != nil {
			d.onData(data.LinkID, data.Payload)
		}
	}

	// The snapshot has been fully inspected. Dropping it keeps an old
	// marker from matching again when the next frame sets the ready flag.
	d.channel.Consume(len(buf))
	return buf
}

// partialFrame reports whether buf holds a length-prefixed frame whose
// declared payload has not fully arrived yet.
func partialFrame(buf []byte, multiConn bool) bool {
	if data, ok := at.ParseData(buf, multiConn); ok && len(data.Payload) < data.Length {
		return true
	}
	if push, ok := at.ParsePush(buf); ok && len(push.Payload) < push.Length {
		return true
	}
	return false
}

// SetOnData registers the handler for inbound socket payloads.
func (d *Device) SetOnData(fn func(linkID int, payload []byte)) { d.onData = fn }

// SetOnConnected registers the handler for gained connectivity.
func (d *Device) SetOnConnected(fn func()) { d.onConnected = fn }

// SetOnDisconnected registers the handler for lost connectivity.
func (d *Device) SetOnDisconnected(fn func()) { d.onDisconnected = fn }

// SetFrameObserver registers a non-blocking callback invoked from the
// receive path with every inbound chunk. See Channel.SetObserver.
func (d *Device) SetFrameObserver(fn func(chunk []byte)) {
	d.channel.SetObserver(fn)
}

// Connectivity returns the current association state.
func (d *Device) Connectivity() Connectivity {
	return d.connectivity
}

// StationIP returns the address fetched after the last association, if any.
func (d *Device) StationIP() string {
	return d.stationIP
}

// IsInitialized reports whether module initialization completed.
func (d *Device) IsInitialized() bool {
	return d.initialized
}

// Close shuts down the device and releases the transport. After Close the
// device cannot be reused.
func (d *Device) Close() error {
	if d.closed {
		return ErrAlreadyClosed
	}
	d.closed = true
	d.initialized = false

	if d.transport != nil {
		return d.transport.Close()
	}
	return nil
}
