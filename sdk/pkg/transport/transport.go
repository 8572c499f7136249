package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoMessage 接收超时或分区已读完，不是错误，本轮没有消息
	ErrNoMessage = errors.New("transport: no message available")
	// ErrQueueFull 发送队列已满等暂时性背压，由重试包装器处理
	ErrQueueFull = errors.New("transport: send queue full")
	// ErrClosed 传输已关闭
	ErrClosed = errors.New("transport: closed")
)

// Message 一次接收得到的消息
//
// 调用方在本轮迭代结束时必须调用 Release，之后不得再访问 Value。
type Message struct {
	Value   []byte
	release func()
}

// NewMessage 创建消息，release 可以为 nil
func NewMessage(value []byte, release func()) *Message {
	return &Message{Value: value, release: release}
}

// Release 释放消息占用的传输层资源，可重复调用
func (m *Message) Release() {
	if m == nil || m.release == nil {
		return
	}
	release := m.release
	m.release = nil
	release()
}

// Sender 发送端
type Sender interface {
	// Send 同步发送一条消息；返回后 payload 可以被调用方复用
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Receiver 接收端
type Receiver interface {
	// Receive 最多等待 timeout；没有消息时返回 ErrNoMessage
	Receive(ctx context.Context, timeout time.Duration) (*Message, error)
	Close() error
}

// transientError 标记可重试的发送错误
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }
func (e *transientError) Is(target error) bool {
	return target == ErrQueueFull
}

// Transient 将错误标记为暂时性背压
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient 判断发送错误是否应重试
func IsTransient(err error) bool {
	return errors.Is(err, ErrQueueFull)
}

// IsNoMessage 判断接收结果是否为"本轮没有消息"
func IsNoMessage(err error) bool {
	return errors.Is(err, ErrNoMessage)
}

// noMessage 保留底层原因的 ErrNoMessage
type noMessage struct {
	cause error
}

func (e *noMessage) Error() string { return ErrNoMessage.Error() + ": " + e.cause.Error() }
func (e *noMessage) Unwrap() error { return e.cause }
func (e *noMessage) Is(target error) bool {
	return target == ErrNoMessage
}

// NoMessage 将底层错误标记为"本轮没有消息"
func NoMessage(cause error) error {
	if cause == nil {
		return ErrNoMessage
	}
	return &noMessage{cause: cause}
}
