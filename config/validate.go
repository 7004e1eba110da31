package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// Validate checks that all values are usable.
func (c *RelayConfig) Validate() error {
	if err := validateAddr("server.listen_addr", c.Server.ListenAddr); err != nil {
		return err
	}
	if c.Server.MaxConnections < 0 {
		return errors.New("server.max_connections must be >= 0")
	}
	if c.Server.MaxFieldSize < 1 {
		return errors.New("server.max_field_size must be >= 1")
	}

	if c.Router.QueueSize < 1 {
		return errors.New("router.queue_size must be >= 1")
	}
	if c.Router.WriteTimeout <= 0 {
		return errors.New("router.write_timeout must be > 0")
	}
	if c.Router.FanoutConcurrency < 0 {
		return errors.New("router.fanout_concurrency must be >= 0")
	}

	if c.WebSocket.Enabled {
		if err := validateAddr("websocket.listen_addr", c.WebSocket.ListenAddr); err != nil {
			return err
		}
		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			return fmt.Errorf("websocket.path must start with /, got %q", c.WebSocket.Path)
		}
	}
	if c.Admin.Enabled {
		if err := validateAddr("admin.listen_addr", c.Admin.ListenAddr); err != nil {
			return err
		}
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func validateAddr(field, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s must be host:port, got %q", field, addr)
	}
	return nil
}
