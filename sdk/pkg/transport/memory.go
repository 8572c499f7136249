package transport

import (
	"context"
	"sync"
	"time"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
)

// 进程内传输：同一 topic 的发送端与接收端共享一个有界队列，
// 用于 loopback 模式和测试。队列满时返回 ErrQueueFull，由重试包装器退避。

var (
	memoryMu     sync.Mutex
	memoryTopics = make(map[string]*memoryTopic)
)

type memoryTopic struct {
	queue chan []byte
	pool  sync.Pool
}

func lookupMemoryTopic(name string, size int) *memoryTopic {
	memoryMu.Lock()
	defer memoryMu.Unlock()

	if t, ok := memoryTopics[name]; ok {
		return t
	}
	if size <= 0 {
		size = config.DefaultMemoryBuffer
	}
	t := &memoryTopic{queue: make(chan []byte, size)}
	memoryTopics[name] = t
	return t
}

// ResetMemory 丢弃指定 topic 的进程内队列
func ResetMemory(topic string) {
	memoryMu.Lock()
	delete(memoryTopics, topic)
	memoryMu.Unlock()
}

func (t *memoryTopic) get(n int) []byte {
	if b, ok := t.pool.Get().([]byte); ok && cap(b) >= n {
		return b[:n]
	}
	return make([]byte, n)
}

func (t *memoryTopic) put(b []byte) {
	t.pool.Put(b[:0]) //nolint:staticcheck
}

type memorySender struct {
	topic  *memoryTopic
	mu     sync.RWMutex
	closed bool
}

func newMemorySender(cfg *config.TransportConfig) *memorySender {
	return &memorySender{topic: lookupMemoryTopic(cfg.Topic, cfg.Memory.BufferSize)}
}

// Send 拷贝负载后入队，调用方可立即复用缓冲区
func (s *memorySender) Send(ctx context.Context, payload []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := s.topic.get(len(payload))
	copy(b, payload)
	select {
	case s.topic.queue <- b:
		return nil
	default:
		s.topic.put(b)
		return ErrQueueFull
	}
}

func (s *memorySender) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type memoryReceiver struct {
	topic *memoryTopic
	done  chan struct{}
	once  sync.Once
}

func newMemoryReceiver(cfg *config.TransportConfig) *memoryReceiver {
	return &memoryReceiver{
		topic: lookupMemoryTopic(cfg.Topic, cfg.Memory.BufferSize),
		done:  make(chan struct{}),
	}
}

func (r *memoryReceiver) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	select {
	case b := <-r.topic.queue:
		return r.message(b), nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b := <-r.topic.queue:
		return r.message(b), nil
	case <-timer.C:
		return nil, ErrNoMessage
	case <-r.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *memoryReceiver) message(b []byte) *Message {
	return NewMessage(b, func() { r.topic.put(b) })
}

func (r *memoryReceiver) Close() error {
	r.once.Do(func() { close(r.done) })
	return nil
}
