// Package config loads client configuration from YAML with environment
// variable expansion, defaults, and validation.
package config

import "time"

// ClientConfig is the root configuration for the realtime client.
type ClientConfig struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Reconnect     ReconnectConfig     `yaml:"reconnect"`
	Transport     TransportConfig     `yaml:"transport"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ServerConfig identifies the socket server.
type ServerConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig holds the connect credential. Token is usually supplied as
// ${POKOJOWO_TOKEN} and expanded at load time; the refresh flow lives
// behind the TokenSource collaborator, not here.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// ReconnectConfig holds retry policy settings. Zero max_attempts means
// retry forever; zero give_up_rebuild_delay disables the fresh rebuild
// after giving up.
type ReconnectConfig struct {
	MaxAttempts        int           `yaml:"max_attempts"`
	BaseDelay          time.Duration `yaml:"base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	GiveUpRebuildDelay time.Duration `yaml:"give_up_rebuild_delay"`
}

// TransportConfig holds per-connection socket settings.
type TransportConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
}

// NotificationsConfig holds notification buffer settings.
type NotificationsConfig struct {
	Capacity int `yaml:"capacity"`
}
