package ratecontrol

import (
	"context"
	"math"
	"time"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/clock"
)

// DefaultSpinWindow 截止时间前最后这段时间内只自旋不休眠
const DefaultSpinWindow = time.Millisecond

// 自旋多少次检查一次 ctx
const ctxCheckEvery = 1024

// Controller 基于截止时间游标的发送节流器
//
// 每次调用 Throttle 都等待到 next，再令 next += interval。
// next 只由上一个截止时间推算，与发送本身的耗时无关，因此慢发送不会让节奏整体后移；
// 持续落后时循环全速运行，截止时间越落越远。
type Controller struct {
	clock      clock.Clock
	interval   uint64
	next       uint64
	spinWindow time.Duration
	sleep      func(time.Duration)
}

// Option 节流器选项
type Option func(*Controller)

// WithSpinWindow 设置纯自旋窗口，0 表示始终自旋
func WithSpinWindow(d time.Duration) Option {
	return func(c *Controller) {
		c.spinWindow = d
	}
}

// NewController 按目标速率创建节流器，opsPerSecond 为 0 时不限速
func NewController(c clock.Clock, opsPerSecond float64, opts ...Option) *Controller {
	ctl := &Controller{
		clock:      c,
		interval:   c.FromRate(opsPerSecond),
		spinWindow: DefaultSpinWindow,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(ctl)
	}
	ctl.next = saturatingAdd(c.Now(), ctl.interval)
	return ctl
}

// Interval 目标发送间隔（tick）
func (ctl *Controller) Interval() uint64 {
	return ctl.interval
}

// Deadline 下一次截止时间
func (ctl *Controller) Deadline() uint64 {
	return ctl.next
}

// Enabled 是否限速
func (ctl *Controller) Enabled() bool {
	return ctl.interval != 0
}

// Throttle 阻塞到截止时间，然后推进截止时间。ctx 取消时立即返回 ctx.Err()
func (ctl *Controller) Throttle(ctx context.Context) error {
	if ctl.interval == 0 {
		return nil
	}

	deadline := ctl.next
	now := ctl.clock.Now()
	if now < deadline && ctl.spinWindow > 0 {
		remaining := ctl.clock.ToDuration(deadline - now)
		if remaining > ctl.spinWindow {
			if err := ctl.sleepCtx(ctx, remaining-ctl.spinWindow); err != nil {
				return err
			}
		}
	}

	for i := 1; ctl.clock.Now() < deadline; i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}

	ctl.next = saturatingAdd(deadline, ctl.interval)
	return nil
}

func (ctl *Controller) sleepCtx(ctx context.Context, d time.Duration) error {
	if ctx.Done() == nil {
		ctl.sleep(d)
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
