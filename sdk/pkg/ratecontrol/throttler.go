package ratecontrol

import (
	"context"
	"fmt"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/clock"
)

// Throttler 发送节流接口
type Throttler interface {
	// Throttle 在两次发送之间调用，阻塞到下一次允许发送的时刻
	Throttle(ctx context.Context) error
	// Enabled 是否限速
	Enabled() bool
}

// 节流模式
const (
	ModeSpin  = "spin"
	ModeToken = "token"
)

// New 按模式创建节流器
func New(mode string, c clock.Clock, opsPerSecond float64) (Throttler, error) {
	switch mode {
	case "", ModeSpin:
		return NewController(c, opsPerSecond), nil
	case ModeToken:
		return NewTokenBucket(opsPerSecond, 1), nil
	default:
		return nil, fmt.Errorf("unsupported throttle mode: %s", mode)
	}
}
