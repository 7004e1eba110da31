package hub

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orchestra-mcp/relay/src/types"
	"github.com/orchestra-mcp/relay/src/wire"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MessageBridge publishes messages to other relay instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(msg types.Message) error
	Available() bool
}

// Config tunes the broadcast router.
type Config struct {
	QueueSize         int           // inbound queue capacity
	WriteTimeout      time.Duration // per-send write deadline
	FanoutConcurrency int           // max parallel sends per broadcast, 0 = unlimited
	ExcludeSender     bool          // skip echoing a message to its sender
}

// DefaultConfig returns the default router configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:         256,
		WriteTimeout:      10 * time.Second,
		FanoutConcurrency: 64,
	}
}

// Hub relays every inbound message to all registered clients. A single
// goroutine running Run drains the inbound queue in FIFO order.
type Hub struct {
	cfg      Config
	registry *Registry
	incoming chan inbound

	onConnect []func(string)
	onDisconn []func(string)

	bridge MessageBridge
	mu     sync.RWMutex
	logger zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once

	received     atomic.Int64
	relayed      atomic.Int64
	sendFailures atomic.Int64
	dropped      atomic.Int64
}

// inbound is a queued message. local marks messages that came in over the
// bridge and must not be published back to it.
type inbound struct {
	from  string
	msg   types.Message
	local bool
}

// New creates a Hub over registry.
func New(cfg Config, registry *Registry, logger zerolog.Logger) *Hub {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Hub{
		cfg:      cfg,
		registry: registry,
		incoming: make(chan inbound, cfg.QueueSize),
		logger:   logger.With().Str("component", "hub").Logger(),
		done:     make(chan struct{}),
	}
}

// SetBridge attaches a cross-instance message bridge to the hub.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// Registry returns the hub's client registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Run drains the inbound queue until Stop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case in := <-h.incoming:
			h.dispatch(in)
		case <-h.done:
			return
		}
	}
}

// Stop halts the event loop and unblocks pending Enqueue calls.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds c to the registry and fires connection callbacks.
func (h *Hub) Register(c *Client) error {
	if err := h.registry.Register(c); err != nil {
		return err
	}
	h.logger.Info().
		Str("client_id", c.ID).
		Str("remote", c.conn.RemoteAddr()).
		Str("transport", c.transport).
		Msg("client registered")

	h.mu.RLock()
	cbs := h.onConnect
	h.mu.RUnlock()
	for _, cb := range cbs {
		cb(c.ID)
	}
	return nil
}

// Unregister removes c from the registry and closes it. Repeated calls
// only close.
func (h *Hub) Unregister(c *Client) {
	removed := h.registry.Deregister(c.ID)
	c.Close()
	if !removed {
		return
	}
	h.logger.Info().Str("client_id", c.ID).Msg("client unregistered")

	h.mu.RLock()
	cbs := h.onDisconn
	h.mu.RUnlock()
	for _, cb := range cbs {
		cb(c.ID)
	}
}

// Enqueue queues msg from c for broadcast. It blocks while the queue is
// full and returns false if the hub stops or c closes first.
func (h *Hub) Enqueue(c *Client, msg types.Message) bool {
	select {
	case h.incoming <- inbound{from: c.ID, msg: msg}:
		h.received.Add(1)
		return true
	case <-c.done:
		return false
	case <-h.done:
		return false
	}
}

type failedSend struct {
	client *Client
	err    error
}

// dispatch fans one message out to a snapshot of the registry. Sends run
// concurrently; failed peers are dropped before the next message is taken.
func (h *Hub) dispatch(in inbound) {
	if !in.local {
		h.publishToBridge(in.msg)
	}

	frame := wire.Encode(in.msg)
	targets := h.registry.Snapshot()

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []failedSend
	)
	if h.cfg.FanoutConcurrency > 0 {
		g.SetLimit(h.cfg.FanoutConcurrency)
	}

	for _, c := range targets {
		if h.cfg.ExcludeSender && c.ID == in.from {
			continue
		}
		c := c
		g.Go(func() error {
			if err := c.Send(frame); err != nil {
				mu.Lock()
				failed = append(failed, failedSend{client: c, err: err})
				mu.Unlock()
				return nil
			}
			h.relayed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range failed {
		h.sendFailures.Add(1)
		if !errors.Is(f.err, ErrClosed) {
			h.dropped.Add(1)
			h.logger.Warn().Err(f.err).Str("client_id", f.client.ID).Msg("send failed, dropping client")
		}
		h.Unregister(f.client)
	}

	h.logger.Debug().
		Str("kind", in.msg.Kind().String()).
		Str("from", in.from).
		Int("targets", len(targets)).
		Int("failed", len(failed)).
		Msg("message broadcast")
}

func (h *Hub) readFailed(c *Client, err error) {
	var de *wire.DecodeError
	switch {
	case c.Closed():
		// Closed locally; the read error is just the fallout.
	case errors.Is(err, wire.ErrEndOfStream):
		h.logger.Debug().Str("client_id", c.ID).Msg("peer closed connection")
	case errors.As(err, &de):
		h.logger.Warn().Err(err).Str("client_id", c.ID).Msg("malformed frame, dropping client")
	default:
		h.logger.Debug().Err(err).Str("client_id", c.ID).Msg("read failed")
	}
}

// DisconnectAll unregisters and closes every client.
func (h *Hub) DisconnectAll() {
	h.registry.ForEach(h.Unregister)
}
