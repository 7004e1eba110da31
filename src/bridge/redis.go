package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/relay/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Stats counts bridge traffic.
type Stats struct {
	Published   int64 `json:"published"`
	Received    int64 `json:"received"`
	SkippedSelf int64 `json:"skipped_self"`
	Invalid     int64 `json:"invalid"`
}

// RedisBridge relays messages between relay servers via Redis pub/sub.
// Each instance tags what it publishes with a random instance ID and
// ignores its own traffic on the way back.
type RedisBridge struct {
	client         *redis.Client
	channel        string
	instanceID     string
	maxField       int
	publishTimeout time.Duration
	hub            BroadcastTarget
	logger         zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Bool

	published   atomic.Int64
	received    atomic.Int64
	skippedSelf atomic.Int64
	invalid     atomic.Int64
}

var _ Bridge = (*RedisBridge)(nil)

// NewRedisBridge creates an unstarted bridge delivering into hub.
func NewRedisBridge(cfg *RedisConfig, hub BroadcastTarget, logger zerolog.Logger) *RedisBridge {
	return &RedisBridge{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		channel:        cfg.Prefix + cfg.Channel,
		instanceID:     uuid.NewString(),
		maxField:       cfg.MaxFieldSize,
		publishTimeout: cfg.PublishTimeout,
		hub:            hub,
		logger:         logger.With().Str("component", "redis-bridge").Logger(),
	}
}

// InstanceID identifies this relay on the shared channel.
func (b *RedisBridge) InstanceID() string { return b.instanceID }

// Start pings Redis, subscribes and starts delivering remote messages.
func (b *RedisBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return errors.New("bridge: already started")
	}

	if err := b.client.Ping(ctx).Err(); err != nil {
		return err
	}
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.active.Store(true)

	b.wg.Add(1)
	go b.listen(runCtx, sub)

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("channel", b.channel).
		Msg("redis bridge started")
	return nil
}

// Publish sends msg to the other instances.
func (b *RedisBridge) Publish(msg types.Message) error {
	ctx := context.Background()
	if b.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.publishTimeout)
		defer cancel()
	}
	payload := appendEnvelope(nil, b.instanceID, msg)
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return err
	}
	b.published.Add(1)
	return nil
}

// Stop ends the subscription and closes the Redis client.
func (b *RedisBridge) Stop() error {
	b.active.Store(false)

	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	st := b.Stats()
	b.logger.Info().
		Int64("published", st.Published).
		Int64("received", st.Received).
		Int64("invalid", st.Invalid).
		Msg("redis bridge stopped")
	return b.client.Close()
}

// Available reports whether the bridge is subscribed.
func (b *RedisBridge) Available() bool { return b.active.Load() }

// Stats returns a snapshot of the traffic counters.
func (b *RedisBridge) Stats() Stats {
	return Stats{
		Published:   b.published.Load(),
		Received:    b.received.Load(),
		SkippedSelf: b.skippedSelf.Load(),
		Invalid:     b.invalid.Load(),
	}
}

func (b *RedisBridge) listen(ctx context.Context, sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				b.active.Store(false)
				return
			}
			b.handleRedisMessage(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *RedisBridge) handleRedisMessage(msg *redis.Message) {
	from, relayed, err := decodeEnvelope([]byte(msg.Payload), b.maxField)
	if err != nil {
		b.invalid.Add(1)
		b.logger.Error().Err(err).Str("from_instance", from).Msg("dropping bad bridge message")
		return
	}
	if from == b.instanceID {
		b.skippedSelf.Add(1)
		return
	}
	b.received.Add(1)

	b.logger.Debug().
		Str("from_instance", from).
		Str("kind", relayed.Kind().String()).
		Msg("relaying message from redis")
	b.hub.BroadcastToLocal(relayed)
}
