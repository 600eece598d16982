// Package mqtt layers a broker messaging session on top of an esp.Device.
// The module firmware runs the actual protocol client; this package drives
// it through AT commands and tracks the resulting session state. All
// operations run on the caller's goroutine, only the deferred push mailbox
// is touched from the device's receive path.
package mqtt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/mqttgw/at"
	"i4.energy/across/mqttgw/esp"
)

// State tracks how far the session has progressed. The values are ordered:
// every operation requires a minimum state and comparisons use that order.
type State int

const (
	StateUninitialized State = iota
	StateCredentialsSet
	StateConnParamsSet
	StateDisconnected
	StateConnected
	StateConnectedNoSubs
	StateConnectedWithSubs
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCredentialsSet:
		return "credentials-set"
	case StateConnParamsSet:
		return "conn-params-set"
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateConnectedNoSubs:
		return "connected-no-subs"
	case StateConnectedWithSubs:
		return "connected-with-subs"
	default:
		return "unknown"
	}
}

// QoS is the delivery guarantee requested for a subscription or publish.
type QoS int

const (
	QoSAtMostOnce QoS = iota
	QoSAtLeastOnce
	QoSExactlyOnce
)

// Message is an application message pushed by the broker on a subscribed
// topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscription is one active entry of the session's subscription table.
type Subscription struct {
	Topic string
	QoS   QoS
}

// Credentials identify this client towards the broker.
type Credentials struct {
	ClientID string
	Username string
	Password string
}

// ConnParams carry the optional connection tuning sent before Connect.
type ConnParams struct {
	KeepAlive    time.Duration
	CleanSession bool
	LWTTopic     string
	LWTMessage   string
	LWTQoS       QoS
	LWTRetain    bool
}

// Broker addresses the endpoint the module firmware should connect to.
type Broker struct {
	Host          string
	Port          int
	AutoReconnect bool
}

const (
	// linkID is the firmware-side connection slot. The session always uses
	// slot zero.
	linkID = 0

	// maxSubscriptions caps the subscription table.
	maxSubscriptions = 8

	connectTimeout   = 10 * time.Second
	publishTimeout   = 5 * time.Second
	subscribeTimeout = 5 * time.Second

	// settleDelay is waited after tearing the session down before it is
	// rebuilt during a reconnect.
	settleDelay = time.Second
)

type subEntry struct {
	topic  string
	qos    QoS
	active bool
}

// Session drives the module's built-in broker client. It is not safe for
// concurrent use; run all operations and Pump from a single goroutine.
type Session struct {
	device *esp.Device
	logger *slog.Logger

	state       State
	connected   bool
	credentials Credentials
	connParams  ConnParams
	broker      Broker

	subs [maxSubscriptions]subEntry

	publishCount   int
	receiveCount   int
	reconnectCount int

	// mailbox holds at most one raw frame carrying a push notification,
	// deposited from the receive path and drained by Pump. When occupied,
	// new frames are dropped so the pending one is never lost.
	mailboxMu   sync.Mutex
	mailbox     []byte
	mailboxFull bool

	onConnected       func()
	onDisconnected    func()
	onMessage         func(Message)
	onPublishComplete func(topic string)
	onSubscribed      func(topic string)
	onUnsubscribed    func(topic string)
	onError           func(error)
}

// NewSession creates a session bound to an initialized device and registers
// itself on the device's receive path so push notifications are captured
// even when they arrive outside a command exchange.
func NewSession(device *esp.Device, logger *slog.Logger) (*Session, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidParam)
	}
	if !device.IsInitialized() {
		return nil, ErrNotInitialized
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		device: device,
		logger: logger.With(slog.String("component", "mqtt")),
		connParams: ConnParams{
			KeepAlive:    120 * time.Second,
			CleanSession: true,
		},
		broker: Broker{Port: 1883, AutoReconnect: true},
	}
	device.SetFrameObserver(s.observeFrame)
	return s, nil
}

// observeFrame runs on the device's receive goroutine. It only files the
// frame away; parsing and callback dispatch happen later in Pump.
func (s *Session) observeFrame(chunk []byte) {
	if !bytes.Contains(chunk, []byte(at.MarkerPush)) {
		return
	}
	// A read boundary can split a push mid-payload. Only a frame whose
	// declared payload arrived in full is filed; a split one is delivered
	// from the accumulated buffer once the remainder lands.
	if push, ok := at.ParsePush(chunk); !ok || len(push.Payload) < push.Length {
		return
	}

	s.mailboxMu.Lock()
	defer s.mailboxMu.Unlock()
	if s.mailboxFull {
		s.logger.Warn("push notification dropped, previous one not consumed yet")
		return
	}
	s.mailbox = append(s.mailbox[:0], chunk...)
	s.mailboxFull = true
}

func (s *Session) takeDeferred() ([]byte, bool) {
	s.mailboxMu.Lock()
	defer s.mailboxMu.Unlock()
	if !s.mailboxFull {
		return nil, false
	}
	raw := append([]byte(nil), s.mailbox...)
	s.mailboxFull = false
	return raw, true
}

// SetCredentials configures the client identity on the module. The session
// drops back to the credentials-set state, so it must be followed by
// Connect before messaging operations are allowed again.
func (s *Session) SetCredentials(ctx context.Context, creds Credentials) error {
	if creds.ClientID == "" {
		return fmt.Errorf("%w: client ID is required", ErrInvalidParam)
	}

	err := s.device.SendCommandf(ctx, at.OK, s.device.CommandTimeout(),
		"AT+MQTTUSERCFG=%d,1,%q,%q,%q,0,0,\"\"\r\n",
		linkID, creds.ClientID, creds.Username, creds.Password)
	if err != nil {
		return fmt.Errorf("set credentials: %w", err)
	}

	s.credentials = creds
	s.connected = false
	s.state = StateCredentialsSet
	return nil
}

// SetConnParams configures keepalive, session cleanliness and the last
// will. It only applies to the next Connect.
func (s *Session) SetConnParams(ctx context.Context, params ConnParams) error {
	if s.state < StateCredentialsSet {
		return ErrNotInitialized
	}
	keepAlive := int(params.KeepAlive / time.Second)
	if keepAlive <= 0 {
		return fmt.Errorf("%w: keepalive must be positive", ErrInvalidParam)
	}

	// The firmware flag disables clean sessions, hence the inversion.
	disableClean := 0
	if !params.CleanSession {
		disableClean = 1
	}
	err := s.device.SendCommandf(ctx, at.OK, s.device.CommandTimeout(),
		"AT+MQTTCONNCFG=%d,%d,%d,%q,%q,%d,%d\r\n",
		linkID, keepAlive, disableClean,
		params.LWTTopic, params.LWTMessage, int(params.LWTQoS), boolBit(params.LWTRetain))
	if err != nil {
		return fmt.Errorf("set connection params: %w", err)
	}

	s.connParams = params
	s.state = StateConnParamsSet
	return nil
}

// SetBroker records the broker endpoint. No command is sent; the address is
// used by the next Connect.
func (s *Session) SetBroker(broker Broker) error {
	if broker.Host == "" {
		return fmt.Errorf("%w: broker host is required", ErrInvalidParam)
	}
	if broker.Port <= 0 || broker.Port > 65535 {
		return fmt.Errorf("%w: broker port %d out of range", ErrInvalidParam, broker.Port)
	}
	s.broker = broker
	return nil
}

// Connect asks the module firmware to establish the broker connection.
// Credentials and broker address must have been configured first.
func (s *Session) Connect(ctx context.Context) error {
	if s.state < StateCredentialsSet {
		return ErrNotInitialized
	}
	if s.broker.Host == "" {
		return fmt.Errorf("%w: no broker configured", ErrInvalidParam)
	}

	err := s.device.SendCommandf(ctx, at.OK, connectTimeout,
		"AT+MQTTCONN=%d,%q,%d,%d\r\n",
		linkID, s.broker.Host, s.broker.Port, boolBit(s.broker.AutoReconnect))
	if err != nil {
		s.connected = false
		s.state = StateDisconnected
		s.reportError(err)
		return fmt.Errorf("connect to %s:%d: %w: %v",
			s.broker.Host, s.broker.Port, ErrConnectFailed, err)
	}

	s.connected = true
	s.state = StateConnectedNoSubs
	s.logger.Info("connected to broker",
		slog.String("host", s.broker.Host),
		slog.Int("port", s.broker.Port))
	if s.onConnected != nil {
		s.onConnected()
	}
	return nil
}

// ConnectToBroker is the one-shot setup path: credentials, broker address
// and connect in sequence. It stops at the first failure and does not roll
// back steps that already succeeded.
func (s *Session) ConnectToBroker(ctx context.Context, broker Broker, creds Credentials) error {
	if err := s.SetCredentials(ctx, creds); err != nil {
		return err
	}
	if err := s.SetBroker(broker); err != nil {
		return err
	}
	return s.Connect(ctx)
}

// Disconnect closes the broker connection. Session state and the
// subscription table are cleared even when the command itself fails, so a
// half-dead link never keeps the session looking connected.
func (s *Session) Disconnect(ctx context.Context) error {
	err := s.device.SendCommandf(ctx, at.OK, s.device.CommandTimeout(),
		"AT+MQTTCLEAN=%d\r\n", linkID)

	s.connected = false
	s.state = StateDisconnected
	s.clearSubscriptions()
	if s.onDisconnected != nil {
		s.onDisconnected()
	}
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// Clean releases the firmware-side client entirely. Unlike Disconnect the
// session returns to the uninitialized state and credentials must be set
// again.
func (s *Session) Clean(ctx context.Context) error {
	err := s.device.SendCommandf(ctx, at.OK, s.device.CommandTimeout(),
		"AT+MQTTCLEAN=%d\r\n", linkID)

	s.connected = false
	s.state = StateUninitialized
	s.clearSubscriptions()
	if err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	return nil
}

// Reconnect tears the session down and rebuilds it with the stored
// credentials and broker address. Subscriptions are not replayed; callers
// re-subscribe after a successful reconnect.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.credentials.ClientID == "" || s.broker.Host == "" {
		return ErrNotInitialized
	}
	s.reconnectCount++
	s.logger.Info("reconnecting to broker", slog.Int("attempt", s.reconnectCount))

	if err := s.Clean(ctx); err != nil {
		s.logger.Warn("clean before reconnect failed", slog.Any("error", err))
	}
	s.device.Clock().Sleep(settleDelay)

	if err := s.SetCredentials(ctx, s.credentials); err != nil {
		return err
	}
	return s.Connect(ctx)
}

// QueryConnection asks the firmware for its view of the link and folds the
// answer back into the session state. Useful after a suspected silent drop.
func (s *Session) QueryConnection(ctx context.Context) (State, error) {
	err := s.device.SendCommand(ctx, "AT+MQTTCONN?\r\n", at.OK,
		s.device.CommandTimeout())
	if err != nil {
		return s.state, fmt.Errorf("query connection: %w", err)
	}

	raw, ok := at.ConnState(s.device.ResponseBytes())
	if !ok {
		return s.state, fmt.Errorf("query connection: %w: no state in response", ErrInvalidParam)
	}
	reported := State(raw)
	if reported < StateUninitialized || reported > StateConnectedWithSubs {
		return s.state, fmt.Errorf("query connection: %w: state %d", ErrInvalidParam, raw)
	}

	s.state = reported
	s.connected = reported >= StateConnected
	return s.state, nil
}

// State reports the session's current position in the state machine.
func (s *Session) State() State { return s.state }

// IsConnected reports whether the broker link is believed to be up.
func (s *Session) IsConnected() bool { return s.connected }

// PublishCount is the number of successfully completed publishes.
func (s *Session) PublishCount() int { return s.publishCount }

// ReceiveCount is the number of push notifications dispatched to the
// message callback.
func (s *Session) ReceiveCount() int { return s.receiveCount }

// ReconnectCount is the number of reconnect attempts made so far.
func (s *Session) ReconnectCount() int { return s.reconnectCount }

// SetOnConnected registers a callback invoked after the broker link comes
// up, either through Connect or an unsolicited connected marker.
func (s *Session) SetOnConnected(fn func()) { s.onConnected = fn }

// SetOnDisconnected registers a callback invoked when the broker link goes
// down.
func (s *Session) SetOnDisconnected(fn func()) { s.onDisconnected = fn }

// SetOnMessage registers the callback receiving pushed application
// messages. The payload is owned by the callback.
func (s *Session) SetOnMessage(fn func(Message)) { s.onMessage = fn }

// SetOnPublishComplete registers a callback invoked after each successful
// publish.
func (s *Session) SetOnPublishComplete(fn func(topic string)) { s.onPublishComplete = fn }

// SetOnSubscribed registers a callback invoked after each successful
// subscribe.
func (s *Session) SetOnSubscribed(fn func(topic string)) { s.onSubscribed = fn }

// SetOnUnsubscribed registers a callback invoked after each successful
// unsubscribe.
func (s *Session) SetOnUnsubscribed(fn func(topic string)) { s.onUnsubscribed = fn }

// SetOnError registers a callback invoked with connection-level failures.
func (s *Session) SetOnError(fn func(error)) { s.onError = fn }

func (s *Session) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}
