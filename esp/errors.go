package esp

import "errors"

var (
	// ErrNoDialer is returned when a Device is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a
	// Device that has not been successfully initialized.
	ErrNotInitialized = errors.New("module not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Device that has
	// already been closed.
	ErrAlreadyClosed = errors.New("module already closed")

	// ErrInvalidParam is returned when an argument is empty or out of range.
	// It is reported before any I/O takes place.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrTimeout is returned when the expected terminator did not appear in
	// the receive buffer before the deadline.
	ErrTimeout = errors.New("response timeout")

	// ErrNak is returned when the module answered a command with an explicit
	// failure marker instead of the expected terminator.
	ErrNak = errors.New("module reported error")

	// ErrBusy is returned when the module reported it is busy, or when a
	// prior transfer did not complete within the busy wait bound.
	ErrBusy = errors.New("module busy")

	// ErrCommandTooLong is returned by SendCommandf when the formatted
	// command exceeds the command buffer. The command is rejected outright
	// so a truncated, corrupted command is never put on the wire.
	ErrCommandTooLong = errors.New("formatted command too long")

	// ErrBufferOverflow is returned when more response data arrived than the
	// receive buffer can hold. The buffer content is unreliable until the
	// next Clear.
	ErrBufferOverflow = errors.New("receive buffer overflow")

	// ErrConnectFailed is returned when association or a socket connect was
	// rejected by the peer, as opposed to timing out.
	ErrConnectFailed = errors.New("connect failed")

	// ErrSendFailed is returned when any stage of the two-phase socket send
	// (send-intent, raw bytes, completion marker) fails.
	ErrSendFailed = errors.New("send failed")

	// ErrNotConnected is returned by operations that require an associated
	// network when there is none.
	ErrNotConnected = errors.New("not connected")
)
