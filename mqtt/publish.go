package mqtt

import (
	"context"
	"fmt"
	"log/slog"

	"i4.energy/across/mqttgw/at"
	"i4.energy/across/mqttgw/esp"
)

// Publish sends an application message through the module's raw publish
// path. The exchange runs in two phases: the publish command arms the
// firmware and answers with a prompt, then the payload bytes follow on the
// wire unescaped and the firmware acknowledges the completed transfer.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte, qos QoS, retain bool) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidParam)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload is empty", ErrInvalidParam)
	}
	if qos < QoSAtMostOnce || qos > QoSExactlyOnce {
		return fmt.Errorf("%w: qos %d out of range", ErrInvalidParam, qos)
	}
	if !s.connected || s.state < StateConnected {
		return ErrNotConnected
	}

	err := s.device.SendCommandf(ctx, at.Prompt, s.device.CommandTimeout(),
		"AT+MQTTPUBRAW=%d,%q,%d,%d,%d\r\n",
		linkID, topic, len(payload), int(qos), boolBit(retain))
	if err != nil {
		return fmt.Errorf("publish %s: arm transfer: %w: %v", topic, ErrPublishFailed, err)
	}

	// The prompt and any echo must not linger in the buffer or they would
	// satisfy the acknowledgement scan below prematurely.
	s.device.ClearBuffer()
	if err := s.device.SendRaw(payload); err != nil {
		return fmt.Errorf("publish %s: payload transfer: %w: %v", topic, ErrPublishFailed, err)
	}
	if err := s.awaitPublishAck(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	s.publishCount++
	s.logger.Debug("published",
		slog.String("topic", topic),
		slog.Int("bytes", len(payload)))
	if s.onPublishComplete != nil {
		s.onPublishComplete(topic)
	}
	return nil
}

// PublishString is Publish for text payloads.
func (s *Session) PublishString(ctx context.Context, topic, payload string, qos QoS, retain bool) error {
	return s.Publish(ctx, topic, []byte(payload), qos, retain)
}

// awaitPublishAck polls for the firmware's verdict on the transferred
// payload. An explicit failure marker ends the wait immediately.
func (s *Session) awaitPublishAck(ctx context.Context) error {
	clock := s.device.Clock()
	deadline := clock.Now().Add(publishTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.device.Contains(at.MarkerPubAck) || s.device.Contains(at.OK) {
			return nil
		}
		if s.device.Contains(at.ERROR) || s.device.Contains(at.FAIL) {
			return ErrPublishFailed
		}
		if clock.Now().After(deadline) {
			return esp.ErrTimeout
		}
		clock.Sleep(s.device.PollInterval())
	}
}
