package modem

import (
	"log/slog"
	"time"
)

const (
	// DefaultBufferSize fits the longest response of a confirmed uplink with
	// a downlink window report.
	DefaultBufferSize = 256

	DefaultATTimeout       = 5 * time.Second
	DefaultLivenessTimeout = 50 * time.Millisecond
	DefaultJoinTimeout     = 20 * time.Second
	DefaultSendTimeout     = 3 * time.Second
)

// Config holds the settings used by Open. Use NewConfigBuilder to construct
// a validated Config.
type Config struct {
	Dialer Dialer
	Logger *slog.Logger
	// BufferSize is the capacity of the receive buffer. It is fixed for the
	// lifetime of the Device.
	BufferSize      int
	ATTimeout       time.Duration
	LivenessTimeout time.Duration
	JoinTimeout     time.Duration
	SendTimeout     time.Duration
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.ATTimeout <= 0 {
		c.ATTimeout = DefaultATTimeout
	}
	if c.LivenessTimeout <= 0 {
		c.LivenessTimeout = DefaultLivenessTimeout
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

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

func (b *ConfigBuilder) WithBufferSize(n int) *ConfigBuilder {
	b.config.BufferSize = n
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithLivenessTimeout(d time.Duration) *ConfigBuilder {
	b.config.LivenessTimeout = d
	return b
}

func (b *ConfigBuilder) WithJoinTimeout(d time.Duration) *ConfigBuilder {
	b.config.JoinTimeout = d
	return b
}

func (b *ConfigBuilder) WithSendTimeout(d time.Duration) *ConfigBuilder {
	b.config.SendTimeout = d
	return b
}

// Build validates the configuration and fills in defaults for anything left
// unset.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
