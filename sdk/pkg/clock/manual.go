package clock

import (
	"sync/atomic"
	"time"
)

// Manual 手动推进的时钟，用于测试
type Manual struct {
	ticks
	now  atomic.Uint64
	step uint64
}

// NewManual 创建手动时钟，perSecond 为 0 时使用纳秒精度
func NewManual(start uint64, perSecond float64) *Manual {
	if perSecond <= 0 {
		perSecond = 1e9
	}
	m := &Manual{ticks: ticks{perSecond: perSecond}}
	m.now.Store(start)
	return m
}

// WithStep 设置每次 Now 调用后自动推进的 tick 数
func (m *Manual) WithStep(step uint64) *Manual {
	m.step = step
	return m
}

// Now 返回当前时间戳
func (m *Manual) Now() uint64 {
	if m.step == 0 {
		return m.now.Load()
	}
	return m.now.Add(m.step) - m.step
}

// Set 设置当前时间戳
func (m *Manual) Set(ts uint64) {
	m.now.Store(ts)
}

// Advance 推进指定时长
func (m *Manual) Advance(d time.Duration) {
	m.now.Add(uint64(d.Seconds() * m.perSecond))
}
