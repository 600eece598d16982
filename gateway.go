package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/mqttgw/mqtt"
	"i4.energy/across/mqttgw/sensor"
)

// pumpInterval is how often the session's receive path is serviced.
const pumpInterval = 100 * time.Millisecond

type publishRequest struct {
	topic   string
	payload []byte
	reply   chan error
}

// Gateway owns the messaging session. The session is not safe for
// concurrent use, so every interaction with it happens on the Run loop;
// HTTP handlers hand their publishes over through a channel.
type Gateway struct {
	Logger  *slog.Logger
	Session *mqtt.Session
	Config  *Config

	TempHumidity sensor.TempHumidity
	Light        sensor.Light

	requests      chan publishRequest
	statuses      chan chan Status
	needReconnect bool
}

func NewGateway(logger *slog.Logger, session *mqtt.Session, sensors *sensor.Simulated, config *Config) *Gateway {
	g := &Gateway{
		Logger:       logger,
		Session:      session,
		Config:       config,
		TempHumidity: sensors,
		Light:        sensors,
		requests:     make(chan publishRequest, 8),
		statuses:     make(chan chan Status),
	}
	session.SetOnMessage(g.handleControl)
	session.SetOnDisconnected(func() { g.needReconnect = true })
	return g
}

// Publish hands a message to the Run loop and waits for the outcome.
func (g *Gateway) Publish(ctx context.Context, topic string, payload []byte) error {
	req := publishRequest{topic: topic, payload: payload, reply: make(chan error, 1)}
	select {
	case g.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run services the session until the context is cancelled: the receive
// path on every pump tick, periodic sensor publishes, and publishes handed
// in over the request channel.
func (g *Gateway) Run(ctx context.Context) {
	pumpTicker := time.NewTicker(pumpInterval)
	defer pumpTicker.Stop()
	publishTicker := time.NewTicker(g.Config.PublishInterval)
	defer publishTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pumpTicker.C:
			g.Session.Pump()
			g.maybeReconnect(ctx)
		case <-publishTicker.C:
			g.publishReading(ctx)
		case req := <-g.requests:
			req.reply <- g.Session.Publish(ctx, req.topic, req.payload, mqtt.QoSAtLeastOnce, false)
		case reply := <-g.statuses:
			reply <- g.snapshot()
		}
	}
}

func (g *Gateway) publishReading(ctx context.Context) {
	if !g.Session.IsConnected() {
		return
	}

	temp, humidity, err := g.TempHumidity.ReadTempHumidity(ctx)
	if err != nil {
		if !errors.Is(err, sensor.ErrNotReady) {
			g.Logger.Warn("Temperature read failed", "error", err)
		}
		return
	}
	light, err := g.Light.ReadLight(ctx)
	if err != nil {
		g.Logger.Warn("Light read failed", "error", err)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"temp":     float64(temp) / 10,
		"humidity": float64(humidity) / 10,
		"light":    light,
	})
	if err != nil {
		g.Logger.Error("Failed to encode reading", "error", err)
		return
	}

	if err := g.Session.Publish(ctx, g.Config.PublishTopic, payload, mqtt.QoSAtLeastOnce, false); err != nil {
		g.Logger.Warn("Sensor publish failed", "error", err)
		return
	}
	g.Logger.Debug("Published sensor reading", "topic", g.Config.PublishTopic)
}

// maybeReconnect rebuilds the broker session after an unsolicited
// disconnect, then restores the control subscription.
func (g *Gateway) maybeReconnect(ctx context.Context) {
	if !g.needReconnect {
		return
	}
	g.needReconnect = false

	if err := g.Session.Reconnect(ctx); err != nil {
		g.Logger.Warn("Broker reconnect failed", "error", err)
		g.needReconnect = true
		return
	}
	if g.Config.ControlTopic != "" {
		if err := g.Session.Subscribe(ctx, g.Config.ControlTopic, mqtt.QoSAtLeastOnce); err != nil {
			g.Logger.Warn("Control re-subscribe failed", "error", err)
		}
	}
}

func (g *Gateway) handleControl(msg mqtt.Message) {
	g.Logger.Info("Control message received",
		"topic", msg.Topic, "payload", string(msg.Payload))

	switch string(msg.Payload) {
	case "report":
		// An on-demand reading outside the periodic schedule.
		g.publishReading(context.Background())
	default:
		g.Logger.Debug("Unhandled control command", "payload", string(msg.Payload))
	}
}

// Status summarizes the gateway for the HTTP status endpoint.
type Status struct {
	BrokerState   string `json:"broker_state"`
	Connected     bool   `json:"connected"`
	Subscriptions int    `json:"subscriptions"`
	Publishes     int    `json:"publishes"`
	Receives      int    `json:"receives"`
	Reconnects    int    `json:"reconnects"`
}

// Status reports the session's view of the broker link. The snapshot is
// taken on the Run loop, so it never races with session operations.
func (g *Gateway) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case g.statuses <- reply:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (g *Gateway) snapshot() Status {
	return Status{
		BrokerState:   fmt.Sprint(g.Session.State()),
		Connected:     g.Session.IsConnected(),
		Subscriptions: g.Session.SubscriptionCount(),
		Publishes:     g.Session.PublishCount(),
		Receives:      g.Session.ReceiveCount(),
		Reconnects:    g.Session.ReconnectCount(),
	}
}
