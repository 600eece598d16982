package mqtt

import (
	"context"
	"fmt"
	"log/slog"

	"i4.energy/across/mqttgw/at"
)

// Subscribe registers interest in a topic with the broker and records it in
// the session's table. Subscribing to a topic that is already present
// updates its QoS in place.
func (s *Session) Subscribe(ctx context.Context, topic string, qos QoS) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidParam)
	}
	if qos < QoSAtMostOnce || qos > QoSExactlyOnce {
		return fmt.Errorf("%w: qos %d out of range", ErrInvalidParam, qos)
	}
	if !s.connected || s.state < StateConnected {
		return ErrNotConnected
	}

	slot := s.findSub(topic)
	if slot < 0 {
		slot = s.freeSlot()
		if slot < 0 {
			return ErrSubscriptionsFull
		}
	}

	err := s.device.SendCommandf(ctx, at.OK, subscribeTimeout,
		"AT+MQTTSUB=%d,%q,%d\r\n", linkID, topic, int(qos))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w: %v", topic, ErrSubscribeFailed, err)
	}

	s.subs[slot] = subEntry{topic: topic, qos: qos, active: true}
	s.state = StateConnectedWithSubs
	s.logger.Info("subscribed", slog.String("topic", topic), slog.Int("qos", int(qos)))
	if s.onSubscribed != nil {
		s.onSubscribed(topic)
	}
	return nil
}

// Unsubscribe removes a topic from the broker and the session's table. The
// topic must match an existing subscription exactly.
func (s *Session) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidParam)
	}
	if !s.connected || s.state < StateConnected {
		return ErrNotConnected
	}

	slot := s.findSub(topic)
	if slot < 0 {
		return fmt.Errorf("%w: not subscribed to %s", ErrInvalidParam, topic)
	}

	err := s.device.SendCommandf(ctx, at.OK, subscribeTimeout,
		"AT+MQTTUNSUB=%d,%q\r\n", linkID, topic)
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w: %v", topic, ErrUnsubscribeFailed, err)
	}

	s.subs[slot] = subEntry{}
	if s.SubscriptionCount() == 0 {
		s.state = StateConnectedNoSubs
	}
	s.logger.Info("unsubscribed", slog.String("topic", topic))
	if s.onUnsubscribed != nil {
		s.onUnsubscribed(topic)
	}
	return nil
}

// UnsubscribeAll removes every active subscription one by one and returns
// the first error encountered, after attempting the rest.
func (s *Session) UnsubscribeAll(ctx context.Context) error {
	var firstErr error
	for _, entry := range s.subs {
		if !entry.active {
			continue
		}
		if err := s.Unsubscribe(ctx, entry.topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscriptions returns a snapshot of the active subscription table.
func (s *Session) Subscriptions() []Subscription {
	var out []Subscription
	for _, entry := range s.subs {
		if entry.active {
			out = append(out, Subscription{Topic: entry.topic, QoS: entry.qos})
		}
	}
	return out
}

// SubscriptionCount returns the number of active subscriptions.
func (s *Session) SubscriptionCount() int {
	n := 0
	for _, entry := range s.subs {
		if entry.active {
			n++
		}
	}
	return n
}

func (s *Session) findSub(topic string) int {
	for i, entry := range s.subs {
		if entry.active && entry.topic == topic {
			return i
		}
	}
	return -1
}

func (s *Session) freeSlot() int {
	for i, entry := range s.subs {
		if !entry.active {
			return i
		}
	}
	return -1
}

func (s *Session) clearSubscriptions() {
	for i := range s.subs {
		s.subs[i] = subEntry{}
	}
}
