package esp

import (
	"context"
	"fmt"

	"i4.energy/across/mqttgw/at"
)

// SocketType selects the transport of a module-side socket.
type SocketType int

const (
	SocketTCP SocketType = iota
	SocketUDP
	SocketSSL
)

func (t SocketType) String() string {
	switch t {
	case SocketUDP:
		return "UDP"
	case SocketSSL:
		return "SSL"
	default:
		return "TCP"
	}
}

// maxLinks is the number of concurrent sockets the firmware supports in
// multi-connection mode.
const maxLinks = 5

// SetMultiConn switches between single- and multi-connection mode. The
// mode changes the shape of socket commands and of inbound data markers.
func (d *Device) SetMultiConn(ctx context.Context, enable bool) error {
	n := 0
	if enable {
		n = 1
	}
	if err := d.SendCommandf(ctx, at.OK, d.config.CommandTimeout, "AT+CIPMUX=%d\r\n", n); err != nil {
		return err
	}
	d.multiConn = enable
	return nil
}

// OpenSocket connects a socket to host:port and returns its link
// identifier. A report that the link is already established satisfies the
// caller's intent and counts as success.
func (d *Device) OpenSocket(ctx context.Context, kind SocketType, host string, port int) (int, error) {
	if host == "" || port <= 0 || port > 65535 {
		return 0, ErrInvalidParam
	}

	err := d.SendCommandf(ctx, at.OK, d.config.ConnectTimeout,
		"AT+CIPSTART=\"%s\",\"%s\",%d\r\n", kind, host, port)
	// The already-established report contains the plain connect marker as
	// a substring, so it has to be ruled out first.
	if d.Contains(at.AlreadyUp) {
		return 0, nil
	}
	if err == nil || d.Contains(at.Connect) {
		return 0, nil
	}
	return 0, fmt.Errorf("connect %s:%d: %w", host, port, ErrConnectFailed)
}

// OpenSocketLink is the multi-connection form of OpenSocket, connecting
// the caller-chosen link identifier.
func (d *Device) OpenSocketLink(ctx context.Context, linkID int, kind SocketType, host string, port int) error {
	if host == "" || port <= 0 || port > 65535 || linkID < 0 || linkID >= maxLinks {
		return ErrInvalidParam
	}

	err := d.SendCommandf(ctx, at.OK, d.config.ConnectTimeout,
		"AT+CIPSTART=%d,\"%s\",\"%s\",%d\r\n", linkID, kind, host, port)
	if d.Contains(at.AlreadyUp) {
		return nil
	}
	if err == nil || d.Contains(at.Connect) {
		return nil
	}
	return fmt.Errorf("connect %s:%d: %w", host, port, ErrConnectFailed)
}

// Send writes data to an open socket. The send is two-phase: a
// length-prefixed send-intent command awaits the prompt marker, the raw
// bytes follow outside command framing, and a completion marker confirms
// the transfer. Any stage failing maps to ErrSendFailed.
func (d *Device) Send(ctx context.Context, linkID int, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidParam
	}

	var err error
	if d.multiConn {
		err = d.SendCommandf(ctx, at.Prompt, d.config.CommandTimeout,
			"AT+CIPSEND=%d,%d\r\n", linkID, len(data))
	} else {
		err = d.SendCommandf(ctx, at.Prompt, d.config.CommandTimeout,
			"AT+CIPSEND=%d\r\n", len(data))
	}
	if err != nil {
		return fmt.Errorf("send intent: %w", ErrSendFailed)
	}

	d.channel.Clear()
	if err := d.channel.Send(data); err != nil {
		return fmt.Errorf("send payload: %w", ErrSendFailed)
	}

	if err := d.awaitMarker(ctx, at.SendOK, d.config.CommandTimeout); err != nil {
		return fmt.Errorf("send completion: %w", ErrSendFailed)
	}
	return nil
}

// CloseSocket closes the given link, or the single connection when
// multi-connection mode is off.
func (d *Device) CloseSocket(ctx context.Context, linkID int) error {
	if d.multiConn {
		return d.SendCommandf(ctx, at.OK, d.config.CommandTimeout, "AT+CIPCLOSE=%d\r\n", linkID)
	}
	return d.SendCommand(ctx, "AT+CIPCLOSE\r\n", at.OK, d.config.CommandTimeout)
}

// CloseAll closes every link in multi-connection mode.
func (d *Device) CloseAll(ctx context.Context) error {
	return d.SendCommand(ctx, "AT+CIPCLOSE=5\r\n", at.OK, d.config.CommandTimeout)
}

// StartServer starts the module-side TCP server on port. Multi-connection
// mode is required and enabled on demand.
func (d *Device) StartServer(ctx context.Context, port int) error {
	if port <= 0 || port > 65535 {
		return ErrInvalidParam
	}
	if !d.multiConn {
		if err := d.SetMultiConn(ctx, true); err != nil {
			return err
		}
	}
	if err := d.SendCommandf(ctx, at.OK, d.config.CommandTimeout, "AT+CIPSERVER=1,%d\r\n", port); err != nil {
		return err
	}
	d.serverUp = true
	return nil
}

// StopServer stops the module-side TCP server.
func (d *Device) StopServer(ctx context.Context) error {
	if err := d.SendCommand(ctx, "AT+CIPSERVER=0\r\n", at.OK, d.config.CommandTimeout); err != nil {
		return err
	}
	d.serverUp = false
	return nil
}

// EnterPassThrough puts the module into pass-through mode, where the byte
// stream is relayed raw to the open socket. Multi-connection mode is
// incompatible and switched off first.
func (d *Device) EnterPassThrough(ctx context.Context) error {
	if d.multiConn {
		if err := d.SetMultiConn(ctx, false); err != nil {
			return err
		}
	}
	if err := d.SendCommand(ctx, "AT+CIPMODE=1\r\n", at.OK, d.config.CommandTimeout); err != nil {
		return err
	}
	if err := d.SendCommand(ctx, "AT+CIPSEND\r\n", at.Prompt, d.config.CommandTimeout); err != nil {
		return err
	}
	d.passThrough = true
	return nil
}

// ExitPassThrough leaves pass-through mode. The escape sequence only
// registers when surrounded by quiet periods, so the timing here is part
// of the protocol: at least one settle delay of silence, the three escape
// characters, and another settle delay before the mode-off command.
// Calling it while not in pass-through mode is harmless; the mode-off
// command is still issued and the flag stays false.
func (d *Device) ExitPassThrough(ctx context.Context) error {
	d.clock.Sleep(d.config.SettleDelay)
	if err := d.channel.Send([]byte(at.Escape)); err != nil {
		return err
	}
	d.clock.Sleep(d.config.SettleDelay)
	d.passThrough = false
	return d.SendCommand(ctx, "AT+CIPMODE=0\r\n", at.OK, d.config.CommandTimeout)
}

// PassThroughSend relays raw bytes while in pass-through mode.
func (d *Device) PassThroughSend(data []byte) error {
	if !d.passThrough {
		return ErrNotConnected
	}
	if len(data) == 0 {
		return ErrInvalidParam
	}
	return d.channel.Send(data)
}

// InPassThrough reports whether the module is relaying raw bytes.
func (d *Device) InPassThrough() bool {
	return d.passThrough
}
