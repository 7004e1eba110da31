// Package config loads relay server settings from YAML.
package config

import "time"

// RelayConfig is the root configuration for a relay server.
type RelayConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Router    RouterConfig    `yaml:"router"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Admin     AdminConfig     `yaml:"admin"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds TCP accept loop settings.
type ServerConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	MaxConnections int    `yaml:"max_connections"`
	MaxFieldSize   int    `yaml:"max_field_size"` // bytes per str/bin field
}

// RouterConfig holds broadcast router settings.
type RouterConfig struct {
	QueueSize         int           `yaml:"queue_size"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	FanoutConcurrency int           `yaml:"fanout_concurrency"`
	ExcludeSender     bool          `yaml:"exclude_sender"`
}

// WebSocketConfig holds the optional WebSocket transport.
type WebSocketConfig struct {
	Enabled         bool   `yaml:"enabled"`
	ListenAddr      string `yaml:"listen_addr"`
	Path            string `yaml:"path"`
	ReadBufferSize  int    `yaml:"read_buffer_size"`
	WriteBufferSize int    `yaml:"write_buffer_size"`
}

// AdminConfig holds the optional HTTP admin API.
type AdminConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	ServerName string `yaml:"server_name"` // author of announcements
}

// BridgeConfig toggles the Redis bridge. Connection settings come from
// REDIS_* environment variables.
type BridgeConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() *RelayConfig {
	cfg := &RelayConfig{}
	cfg.applyDefaults()
	return cfg
}
