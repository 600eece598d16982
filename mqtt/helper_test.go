package mqtt_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"i4.energy/across/mqttgw/esp"
	"i4.energy/across/mqttgw/mqtt"
)

// fakeClock advances fake time by the whole sleep duration and only yields
// briefly in real time, which keeps the polling loops fast while still
// letting the reader goroutine deposit data between polls.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
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

// respondOK answers every observed write with an acknowledgement until the
// transport closes. The reply carries the prompt marker as well so that
// prompt-terminated commands succeed too.
func respondOK(transport *esp.TestTransport) {
	go func() {
		for range transport.Writes() {
			transport.SendData("\r\nOK\r\n> ")
		}
	}()
}

// respondScript answers each observed write with the corresponding
// response, in order. An empty response means stay silent for that write.
func respondScript(transport *esp.TestTransport, responses ...string) {
	go func() {
		for _, resp := range responses {
			if _, ok := <-transport.Writes(); !ok {
				return
			}
			if resp != "" {
				transport.SendData(resp)
			}
		}
	}()
}

// newScriptedSession builds a device plus session where the initialization
// exchange is acknowledged and the given responses answer the writes that
// follow, one each.
func newScriptedSession(t *testing.T, responses ...string) (*mqtt.Session, *esp.TestTransport) {
	t.Helper()

	transport := esp.NewTestTransport()
	script := append([]string{"\r\nOK\r\n", "\r\nOK\r\n", "\r\nOK\r\n"}, responses...)
	respondScript(transport, script...)

	config, err := esp.NewConfigBuilder().
		WithDialer(testDialer{transport: transport}).
		WithClock(newFakeClock()).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	device, err := esp.New(context.Background(), config)
	if err != nil {
		t.Fatalf("failed to create device: %v", err)
	}
	t.Cleanup(func() { device.Close() })

	session, err := mqtt.NewSession(device, nil)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return session, transport
}

// newTestSession builds an initialized device plus session on a transport
// that acknowledges everything.
func newTestSession(t *testing.T) (*mqtt.Session, *esp.TestTransport) {
	t.Helper()

	transport := esp.NewTestTransport()
	respondOK(transport)

	config, err := esp.NewConfigBuilder().
		WithDialer(testDialer{transport: transport}).
		WithClock(newFakeClock()).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	device, err := esp.New(context.Background(), config)
	if err != nil {
		t.Fatalf("failed to create device: %v", err)
	}
	t.Cleanup(func() { device.Close() })

	session, err := mqtt.NewSession(device, nil)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return session, transport
}

// connect brings the session into the connected state over the
// acknowledge-everything transport.
func connect(t *testing.T, session *mqtt.Session) {
	t.Helper()

	broker := mqtt.Broker{Host: "broker.local", Port: 1883, AutoReconnect: true}
	creds := mqtt.Credentials{ClientID: "gw-test"}
	if err := session.ConnectToBroker(context.Background(), broker, creds); err != nil {
		t.Fatalf("failed to connect session: %v", err)
	}
}

// waitFor polls until the condition holds or a real-time deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
