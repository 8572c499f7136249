package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
)

func memoryConfig(t *testing.T, size int) *config.TransportConfig {
	t.Helper()
	cfg := config.Default().Transport
	cfg.Type = config.TransportMemory
	cfg.Topic = t.Name()
	cfg.Memory.BufferSize = size
	t.Cleanup(func() { ResetMemory(cfg.Topic) })
	return &cfg
}

// TestMemory_SendReceive 测试内存传输收发并拷贝负载
func TestMemory_SendReceive(t *testing.T) {
	cfg := memoryConfig(t, 4)
	s := newMemorySender(cfg)
	r := newMemoryReceiver(cfg)
	ctx := context.Background()

	buf := []byte("hello")
	require.NoError(t, s.Send(ctx, buf))
	buf[0] = 'j'

	msg, err := r.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg.Value))
	msg.Release()
}

// TestMemory_QueueFull 测试队列满时返回背压错误
func TestMemory_QueueFull(t *testing.T) {
	cfg := memoryConfig(t, 1)
	s := newMemorySender(cfg)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, []byte("a")))
	err := s.Send(ctx, []byte("b"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.True(t, IsTransient(err))
}

// TestMemory_ReceiveTimeout 测试超时返回 ErrNoMessage
func TestMemory_ReceiveTimeout(t *testing.T) {
	r := newMemoryReceiver(memoryConfig(t, 1))

	start := time.Now()
	_, err := r.Receive(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoMessage)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

// TestMemory_ReceiveCancelled 测试 ctx 取消时立即返回
func TestMemory_ReceiveCancelled(t *testing.T) {
	r := newMemoryReceiver(memoryConfig(t, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Receive(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestMemory_Close 测试关闭后的行为
func TestMemory_Close(t *testing.T) {
	cfg := memoryConfig(t, 1)
	s := newMemorySender(cfg)
	r := newMemoryReceiver(cfg)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(context.Background(), []byte("a")), ErrClosed)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err := r.Receive(context.Background(), time.Hour)
	assert.ErrorIs(t, err, ErrClosed)
}

// TestMemory_Ordering 测试单发送端的顺序
func TestMemory_Ordering(t *testing.T) {
	cfg := memoryConfig(t, 8)
	s := newMemorySender(cfg)
	r := newMemoryReceiver(cfg)
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rs := NewRetrySender(s, cfg.Retry, nil)
		for i := 0; i < n; i++ {
			assert.NoError(t, rs.Send(ctx, []byte{byte(i)}))
		}
	}()

	for i := 0; i < n; i++ {
		msg, err := r.Receive(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, byte(i), msg.Value[0])
		msg.Release()
	}
	wg.Wait()
}
