package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/orchestra-mcp/relay/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"
)

type mockBroadcastTarget struct {
	received []types.Message
}

func (m *mockBroadcastTarget) BroadcastToLocal(msg types.Message) {
	m.received = append(m.received, msg)
}

func newTestBridge() (*RedisBridge, *mockBroadcastTarget) {
	target := &mockBroadcastTarget{}
	return NewRedisBridge(DefaultRedisConfig(), target, zerolog.Nop()), target
}

func payload(instanceID string, msg types.Message) *redis.Message {
	return &redis.Message{Payload: string(appendEnvelope(nil, instanceID, msg))}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	msg := types.File{Name: "notes.md", Size: 5, Data: []byte("hello")}

	id, got, err := decodeEnvelope(appendEnvelope(nil, "node-1", msg), 0)
	require.NoError(t, err)
	assert.Equal(t, "node-1", id)
	assert.Equal(t, msg, got)
}

func TestEnvelopeRejectsMalformed(t *testing.T) {
	good := appendEnvelope(nil, "node-1", types.Text{Author: "a", Body: "b"})

	three := msgp.AppendArrayHeader(nil, 3)
	three = msgp.AppendString(three, "x")

	cases := map[string][]byte{
		"empty":      nil,
		"not array":  msgp.AppendString(nil, "hello"),
		"wrong size": three,
		"truncated":  good[:len(good)-1],
		"trailing":   append(append([]byte{}, good...), 0xc0),
		"bad frame":  msgp.AppendBytes(msgp.AppendString(msgp.AppendArrayHeader(nil, 2), "n"), []byte{0x91, 0x42}),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := decodeEnvelope(data, 0)
			assert.Error(t, err)
		})
	}
}

func TestEnvelopeHonoursFieldLimit(t *testing.T) {
	data := appendEnvelope(nil, "n", types.Text{Author: "a", Body: "0123456789"})
	_, _, err := decodeEnvelope(data, 4)
	assert.Error(t, err)
}

func TestHandleRedisMessageForwardsForeign(t *testing.T) {
	rb, target := newTestBridge()

	msg := types.Text{Author: "remote", Body: "hello from elsewhere"}
	rb.handleRedisMessage(payload("other-node", msg))

	assert.Equal(t, []types.Message{msg}, target.received)
	assert.Equal(t, int64(1), rb.Stats().Received)
}

func TestHandleRedisMessageSkipsSelf(t *testing.T) {
	rb, target := newTestBridge()

	rb.handleRedisMessage(payload(rb.InstanceID(), types.Handshake{}))
	assert.Empty(t, target.received)
	assert.Equal(t, int64(1), rb.Stats().SkippedSelf)
}

func TestHandleRedisMessageDropsGarbage(t *testing.T) {
	rb, target := newTestBridge()

	rb.handleRedisMessage(&redis.Message{Payload: `{"instance_id":"x"}`})
	rb.handleRedisMessage(&redis.Message{Payload: ""})
	assert.Empty(t, target.received)
	assert.Equal(t, int64(2), rb.Stats().Invalid)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "relay:", cfg.Prefix)
	assert.Equal(t, "broadcast", cfg.Channel)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_RELAY_PREFIX", "test:relay:")
	t.Setenv("REDIS_RELAY_CHANNEL", "lobby")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, "redis.example.com:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, "test:relay:", cfg.Prefix)
	assert.Equal(t, "lobby", cfg.Channel)

	rb := NewRedisBridge(cfg, &mockBroadcastTarget{}, zerolog.Nop())
	assert.Equal(t, "test:relay:lobby", rb.channel)
}

func TestRedisConfigFromEnvInvalidDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, 0, cfg.DB)
}

func TestRedisBridgeLifecycleWithoutServer(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1" // nothing listens here
	rb := NewRedisBridge(cfg, &mockBroadcastTarget{}, zerolog.Nop())
	assert.False(t, rb.Available())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, rb.Start(ctx))
	assert.False(t, rb.Available())
	assert.NoError(t, rb.Stop())
}

func TestRedisBridgeInstanceIDUnique(t *testing.T) {
	b1, _ := newTestBridge()
	b2, _ := newTestBridge()
	assert.NotEqual(t, b1.InstanceID(), b2.InstanceID())
}
