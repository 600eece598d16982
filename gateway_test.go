package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"i4.energy/across/mqttgw/esp"
	"i4.energy/across/mqttgw/mqtt"
	"i4.energy/across/mqttgw/sensor"
)

// fakeClock advances fake time by the whole sleep duration and only yields
// briefly in real time, so polling loops resolve fast.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	time.Sleep(500 * time.Microsecond)
}

type testDialer struct {
	transport esp.Transport
}

func (d testDialer) Dial(ctx context.Context) (esp.Transport, error) {
	return d.transport, nil
}

// newTestGateway builds a gateway around a connected session on a transport
// that acknowledges every command.
func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	transport := esp.NewTestTransport()
	go func() {
		for range transport.Writes() {
			transport.SendData("\r\nOK\r\n> ")
		}
	}()

	espConfig, err := esp.NewConfigBuilder().
		WithDialer(testDialer{transport: transport}).
		WithClock(&fakeClock{now: time.Unix(1000, 0)}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	device, err := esp.New(context.Background(), espConfig)
	if err != nil {
		t.Fatalf("failed to create device: %v", err)
	}
	t.Cleanup(func() { device.Close() })

	session, err := mqtt.NewSession(device, nil)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	broker := mqtt.Broker{Host: "broker.local", Port: 1883}
	creds := mqtt.Credentials{ClientID: "gw-test"}
	if err := session.ConnectToBroker(context.Background(), broker, creds); err != nil {
		t.Fatalf("failed to connect session: %v", err)
	}

	config, err := LoadConfig(WithDefaults())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGateway(logger, session, sensor.NewSimulated(1), config)
}

func TestGatewayStatus(t *testing.T) {
	t.Run("Snapshot is taken on the run loop", func(t *testing.T) {
		gateway := newTestGateway(t)

		runCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go gateway.Run(runCtx)

		ctx, ctxCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer ctxCancel()

		// Publish concurrently so the loop is busy while status requests
		// come in.
		done := make(chan error, 1)
		go func() {
			done <- gateway.Publish(ctx, "stm32/sensor/data", []byte(`{"temp":21.0}`))
		}()

		status, err := gateway.Status(ctx)
		if err != nil {
			t.Fatalf("unexpected error from Status(): %v", err)
		}
		if !status.Connected {
			t.Error("expected a connected session in the snapshot")
		}
		if status.BrokerState == "" {
			t.Error("expected a broker state name in the snapshot")
		}

		if err := <-done; err != nil {
			t.Fatalf("unexpected error from Publish(): %v", err)
		}
	})

	t.Run("Honours the caller's context when the loop is down", func(t *testing.T) {
		gateway := newTestGateway(t)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := gateway.Status(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got: %v", err)
		}
	})
}
