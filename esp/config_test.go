package esp

import (
	"errors"
	"testing"
	"time"
)

func TestConfigBuilder(t *testing.T) {
	t.Run("ErrNoDialer without a dialer", func(t *testing.T) {
		_, err := NewConfigBuilder().Build()
		if !errors.Is(err, ErrNoDialer) {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Defaults fill unset fields", func(t *testing.T) {
		cfg, err := NewConfigBuilder().
			WithDialer(SerialDialer{PortName: "/dev/ttyUSB0"}).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.CommandTimeout != 3*time.Second {
			t.Errorf("unexpected command timeout: %v", cfg.CommandTimeout)
		}
		if cfg.ConnectTimeout != 15*time.Second {
			t.Errorf("unexpected connect timeout: %v", cfg.ConnectTimeout)
		}
		if cfg.PollInterval != 10*time.Millisecond {
			t.Errorf("unexpected poll interval: %v", cfg.PollInterval)
		}
		if cfg.Logger == nil {
			t.Error("logger default was not applied")
		}
		if cfg.Clock == nil {
			t.Error("clock default was not applied")
		}
	})

	t.Run("Explicit values are kept", func(t *testing.T) {
		cfg, err := NewConfigBuilder().
			WithDialer(SerialDialer{PortName: "/dev/ttyUSB0"}).
			WithCommandTimeout(500 * time.Millisecond).
			WithPollInterval(time.Millisecond).
			WithSettleDelay(100 * time.Millisecond).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.CommandTimeout != 500*time.Millisecond {
			t.Errorf("unexpected command timeout: %v", cfg.CommandTimeout)
		}
		if cfg.PollInterval != time.Millisecond {
			t.Errorf("unexpected poll interval: %v", cfg.PollInterval)
		}
		if cfg.SettleDelay != 100*time.Millisecond {
			t.Errorf("unexpected settle delay: %v", cfg.SettleDelay)
		}
	})
}
