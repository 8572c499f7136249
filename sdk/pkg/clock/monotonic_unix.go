//go:build linux || darwin || freebsd

package clock

import (
	"golang.org/x/sys/unix"
)

// Monotonic 基于 CLOCK_MONOTONIC 的纳秒时钟，同一主机上的进程共享同一时间域
type Monotonic struct {
	ticks
}

// NewMonotonic 创建单调时钟
func NewMonotonic() *Monotonic {
	return &Monotonic{ticks: ticks{perSecond: 1e9}}
}

// Now 返回 CLOCK_MONOTONIC 纳秒数
func (m *Monotonic) Now() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic("clock: CLOCK_MONOTONIC unavailable: " + err.Error())
	}
	return uint64(ts.Nano())
}
