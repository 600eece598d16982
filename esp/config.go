package esp

import (
	"log/slog"
	"time"
)

// Config contains the device configuration settings.
type Config struct {
	// Dialer opens the transport to the module. Required.
	Dialer Dialer
	// Logger receives structured driver logs. Nil means slog.Default().
	Logger *slog.Logger
	// Clock drives the polling loops. Nil means the wall clock.
	Clock Clock
	// CommandTimeout is the default bound for command responses.
	CommandTimeout time.Duration
	// ConnectTimeout bounds association and socket connect commands.
	ConnectTimeout time.Duration
	// LongTimeout bounds slow commands such as reset and AP scans.
	LongTimeout time.Duration
	// PollInterval is the receive buffer polling period.
	PollInterval time.Duration
	// SettleDelay is waited after arming reception and around the
	// pass-through escape sequence.
	SettleDelay time.Duration
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 3 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.LongTimeout == 0 {
		c.LongTimeout = 10 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 10 * time.Millisecond
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = time.Second
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with zero-value settings. Unset fields
// receive defaults in Build.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithClock(c Clock) *ConfigBuilder {
	b.config.Clock = c
	return b
}

func (b *ConfigBuilder) WithCommandTimeout(d time.Duration) *ConfigBuilder {
	b.config.CommandTimeout = d
	return b
}

func (b *ConfigBuilder) WithConnectTimeout(d time.Duration) *ConfigBuilder {
	b.config.ConnectTimeout = d
	return b
}

func (b *ConfigBuilder) WithLongTimeout(d time.Duration) *ConfigBuilder {
	b.config.LongTimeout = d
	return b
}

func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.PollInterval = d
	return b
}

func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.SettleDelay = d
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	cfg := b.config
	cfg.setDefaults()
	return cfg, nil
}
