package clock

import (
	"fmt"
	"math"
	"time"
)

// Clock 单调高精度时钟，时间戳为不透明的 tick 计数
//
// 生产者与消费者需使用同一种时钟来源，时间戳才能跨进程比较。
type Clock interface {
	// Now 返回单调不减的时间戳
	Now() uint64
	// ToDuration 将两个时间戳之差换算为时长
	ToDuration(delta uint64) time.Duration
	// FromRate 将目标速率（次/秒）换算为 tick 间隔，0 表示不限速
	FromRate(opsPerSecond float64) uint64
	// TicksPerSecond 每秒 tick 数，用于 TraceLog 校准行
	TicksPerSecond() float64
}

// New 按名称创建时钟：monotonic 或 tsc
func New(source string) (Clock, error) {
	switch source {
	case "", "monotonic":
		return NewMonotonic(), nil
	case "tsc":
		return NewTSC()
	default:
		return nil, fmt.Errorf("unsupported clock source: %s", source)
	}
}

// Elapsed 计算 end-start，end 早于 start 时返回 0
func Elapsed(start, end uint64) uint64 {
	if end < start {
		return 0
	}
	return end - start
}

// Microseconds 将 tick 差换算为微秒
func Microseconds(c Clock, delta uint64) float64 {
	return float64(delta) * 1e6 / c.TicksPerSecond()
}

// ticks 提供 tick 与时长之间的换算
type ticks struct {
	perSecond float64
}

func (t ticks) TicksPerSecond() float64 {
	return t.perSecond
}

func (t ticks) ToDuration(delta uint64) time.Duration {
	ns := float64(delta) * 1e9 / t.perSecond
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

// FromRate 间隔超出 uint64 时饱和而不是回绕
func (t ticks) FromRate(opsPerSecond float64) uint64 {
	if opsPerSecond <= 0 || math.IsNaN(opsPerSecond) {
		return 0
	}
	interval := t.perSecond / opsPerSecond
	if interval >= math.MaxUint64 || math.IsInf(interval, 1) {
		return math.MaxUint64
	}
	if interval < 1 {
		return 1
	}
	return uint64(math.Round(interval))
}
