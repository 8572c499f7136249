//go:build !linux && !darwin && !freebsd

package clock

import (
	"time"
)

var base = time.Now()

// Monotonic 基于进程内单调时钟的纳秒时钟
//
// 该平台上时间域仅在进程内有效，跨进程延迟需使用 tsc 时钟。
type Monotonic struct {
	ticks
}

// NewMonotonic 创建单调时钟
func NewMonotonic() *Monotonic {
	return &Monotonic{ticks: ticks{perSecond: 1e9}}
}

// Now 返回自进程启动以来的纳秒数
func (m *Monotonic) Now() uint64 {
	return uint64(time.Since(base))
}
