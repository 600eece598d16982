package mqtt

import (
	"bytes"
	"log/slog"

	"i4.energy/across/mqttgw/at"
)

// Pump services the asynchronous side of the session: a deferred push
// notification filed by the receive path, then the device's own marker
// demultiplexing, then broker markers in the freshly completed frame. At
// most one message is dispatched per call, loss of the link is handled
// before a connect marker so a bounce within one frame ends disconnected.
// Call it regularly from the same goroutine that runs the other session
// operations.
func (s *Session) Pump() {
	dispatched := false
	if raw, ok := s.takeDeferred(); ok {
		s.dispatchPush(raw)
		dispatched = true
	}

	buf := s.device.Pump()
	if buf == nil {
		return
	}

	if bytes.Contains(buf, []byte(at.MarkerBrokerLost)) {
		s.connected = false
		s.state = StateDisconnected
		s.clearSubscriptions()
		s.logger.Warn("broker connection lost")
		if s.onDisconnected != nil {
			s.onDisconnected()
		}
	} else if bytes.Contains(buf, []byte(at.MarkerBrokerConnected)) {
		s.connected = true
		s.state = StateConnectedNoSubs
		s.logger.Info("broker connection established")
		if s.onConnected != nil {
			s.onConnected()
		}
	}

	if !dispatched && bytes.Contains(buf, []byte(at.MarkerPush)) {
		s.dispatchPush(buf)
		// The receive path filed the same frame in the mailbox; drop it so
		// the next call does not deliver the message a second time.
		s.takeDeferred()
	}
}

func (s *Session) dispatchPush(raw []byte) {
	push, ok := at.ParsePush(raw)
	if !ok {
		// A push marker without a parseable body is dropped, not fatal.
		s.logger.Warn("malformed push notification",
			slog.Int("bytes", len(raw)))
		return
	}

	s.receiveCount++
	s.logger.Debug("message received",
		slog.String("topic", push.Topic),
		slog.Int("bytes", len(push.Payload)))
	if s.onMessage != nil {
		payload := append([]byte(nil), push.Payload...)
		s.onMessage(Message{Topic: push.Topic, Payload: payload})
	}
}
