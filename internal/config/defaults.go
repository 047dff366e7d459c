package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultMaxAttempts        = 10
	DefaultBaseDelay          = 1 * time.Second
	DefaultMaxDelay           = 30 * time.Second
	DefaultHandshakeTimeout   = 20 * time.Second
	DefaultGiveUpRebuildDelay = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultPingInterval       = 15 * time.Second
	DefaultPongTimeout        = 60 * time.Second
	DefaultBufferSize         = 256
	DefaultNotificationCap    = 20
)

func (c *ClientConfig) applyDefaults() {
	// Reconnect defaults. MaxAttempts is deliberately left alone: zero
	// is a valid setting (retry forever).
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultBaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.Reconnect.HandshakeTimeout == 0 {
		c.Reconnect.HandshakeTimeout = DefaultHandshakeTimeout
	}

	// Transport defaults
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.PingInterval == 0 {
		c.Transport.PingInterval = DefaultPingInterval
	}
	if c.Transport.PongTimeout == 0 {
		c.Transport.PongTimeout = DefaultPongTimeout
	}
	if c.Transport.BufferSize == 0 {
		c.Transport.BufferSize = DefaultBufferSize
	}

	// Notifications defaults
	if c.Notifications.Capacity == 0 {
		c.Notifications.Capacity = DefaultNotificationCap
	}
}
