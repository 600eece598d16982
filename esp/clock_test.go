package esp_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"i4.energy/across/mqttgw/esp"
)

// fakeClock advances its notion of time by the full sleep duration while
// only briefly yielding real time, so polling loops with second-scale
// budgets finish in milliseconds. The short real sleep gives the reader
// goroutine a chance to deposit data between polls.
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

// testDialer hands out a pre-built transport.
type testDialer struct {
	transport esp.Transport
	err       error
}

func (d testDialer) Dial(ctx context.Context) (esp.Transport, error) {
	return d.transport, d.err
}

// respond answers each observed write with the corresponding response, in
// order. An empty response means stay silent for that write, which is how
// timeouts are provoked.
func respond(transport *esp.TestTransport, responses ...string) {
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

// initResponses answers the three-command initialization exchange.
var initResponses = []string{"\r\nOK\r\n", "\r\nOK\r\n", "\r\nOK\r\n"}

// newTestDevice builds an initialized device on a scripted transport. The
// extra responses are consumed by commands the test issues afterwards.
func newTestDevice(t *testing.T, responses ...string) (*esp.Device, *esp.TestTransport, *fakeClock) {
	t.Helper()

	transport := esp.NewTestTransport()
	clock := newFakeClock()
	respond(transport, append(append([]string{}, initResponses...), responses...)...)

	config, err := esp.NewConfigBuilder().
		WithDialer(testDialer{transport: transport}).
		WithClock(clock).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	device, err := esp.New(context.Background(), config)
	if err != nil {
		t.Fatalf("failed to create device: %v", err)
	}
	t.Cleanup(func() { device.Close() })
	return device, transport, clock
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
