package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// Signal 进程级停止标志
//
// 中断到达时只置位标志，刷新日志、打印汇总等清理工作由循环在观察到标志后完成。
type Signal struct {
	flag   atomic.Bool
	done   chan struct{}
	once   sync.Once
	sigCh  chan os.Signal
	quit   chan struct{}
	armed  atomic.Bool
	disarm sync.Once
}

// New 创建停止标志
func New() *Signal {
	return &Signal{
		done:  make(chan struct{}),
		sigCh: make(chan os.Signal, 1),
		quit:  make(chan struct{}),
	}
}

// Arm 安装中断处理，默认监听 SIGINT 和 SIGTERM；第一次中断到达后即卸载
func (s *Signal) Arm(sigs ...os.Signal) {
	if !s.armed.CompareAndSwap(false, true) {
		return
	}
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	signal.Notify(s.sigCh, sigs...)
	go func() {
		select {
		case <-s.sigCh:
			// 只接管第一次中断，之后的中断恢复默认行为，可强制结束卡住的进程
			signal.Stop(s.sigCh)
			s.Set()
		case <-s.quit:
		}
	}()
}

// Disarm 卸载中断处理，之后的中断恢复默认行为
func (s *Signal) Disarm() {
	if !s.armed.Load() {
		return
	}
	s.disarm.Do(func() {
		signal.Stop(s.sigCh)
		close(s.quit)
	})
}

// Set 置位标志，可重复调用
func (s *Signal) Set() {
	s.flag.Store(true)
	s.once.Do(func() { close(s.done) })
}

// IsSet 非阻塞读取标志
func (s *Signal) IsSet() bool {
	return s.flag.Load()
}

// Done 标志置位时关闭
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Context 返回在标志置位时取消的 context，用于打断阻塞的节流等待
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
