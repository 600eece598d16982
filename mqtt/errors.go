package mqtt

import "errors"

var (
	// ErrNotInitialized is returned when a Session is constructed on a
	// device that has not completed initialization, or when an operation
	// requires configuration that was never set.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrNotConnected is returned by operations that require an active
	// broker connection.
	ErrNotConnected = errors.New("not connected to broker")

	// ErrInvalidParam is returned when an argument is empty or out of
	// range. It is reported before any I/O takes place.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrConnectFailed is returned when the broker connect command did not
	// complete successfully.
	ErrConnectFailed = errors.New("broker connect failed")

	// ErrSubscribeFailed is returned when the subscribe command was not
	// acknowledged.
	ErrSubscribeFailed = errors.New("subscribe failed")

	// ErrUnsubscribeFailed is returned when the unsubscribe command was not
	// acknowledged.
	ErrUnsubscribeFailed = errors.New("unsubscribe failed")

	// ErrPublishFailed is returned when any stage of the two-phase publish
	// fails, including an explicit failure marker from the module.
	ErrPublishFailed = errors.New("publish failed")

	// ErrSubscriptionsFull is returned when the fixed-capacity subscription
	// table cannot take another topic. The table is left unchanged.
	ErrSubscriptionsFull = errors.New("subscription table full")
)
