package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListenAddr        = "127.0.0.1:4444"
	DefaultMaxConnections    = 1000
	DefaultMaxFieldSize      = 64 << 20
	DefaultQueueSize         = 256
	DefaultWriteTimeout      = 10 * time.Second
	DefaultFanoutConcurrency = 64
	DefaultWSListenAddr      = "127.0.0.1:4445"
	DefaultWSPath            = "/ws"
	DefaultWSBufferSize      = 1024
	DefaultAdminListenAddr   = "127.0.0.1:4446"
	DefaultServerName        = "relay"
	DefaultLogLevel          = "info"
)

func (c *RelayConfig) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = DefaultMaxConnections
	}
	if c.Server.MaxFieldSize == 0 {
		c.Server.MaxFieldSize = DefaultMaxFieldSize
	}

	if c.Router.QueueSize == 0 {
		c.Router.QueueSize = DefaultQueueSize
	}
	if c.Router.WriteTimeout == 0 {
		c.Router.WriteTimeout = DefaultWriteTimeout
	}
	if c.Router.FanoutConcurrency == 0 {
		c.Router.FanoutConcurrency = DefaultFanoutConcurrency
	}

	if c.WebSocket.ListenAddr == "" {
		c.WebSocket.ListenAddr = DefaultWSListenAddr
	}
	if c.WebSocket.Path == "" {
		c.WebSocket.Path = DefaultWSPath
	}
	if c.WebSocket.ReadBufferSize == 0 {
		c.WebSocket.ReadBufferSize = DefaultWSBufferSize
	}
	if c.WebSocket.WriteBufferSize == 0 {
		c.WebSocket.WriteBufferSize = DefaultWSBufferSize
	}

	if c.Admin.ListenAddr == "" {
		c.Admin.ListenAddr = DefaultAdminListenAddr
	}
	if c.Admin.ServerName == "" {
		c.Admin.ServerName = DefaultServerName
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
