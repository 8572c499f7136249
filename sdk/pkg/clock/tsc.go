package clock

import (
	"errors"

	"github.com/loov/hrtime"
)

// calibrationCounts 用于换算 tick 频率的计数
const calibrationCounts = 1_000_000_000

// TSC 基于 CPU 时间戳计数器的时钟
type TSC struct {
	ticks
}

// NewTSC 创建 TSC 时钟，平台不支持时返回错误
func NewTSC() (*TSC, error) {
	if !hrtime.TSCSupported() {
		return nil, errors.New("clock: TSC is not supported on this platform")
	}
	d := hrtime.Count(calibrationCounts).ApproxDuration()
	if d <= 0 {
		return nil, errors.New("clock: TSC calibration failed")
	}
	return &TSC{ticks: ticks{perSecond: calibrationCounts / d.Seconds()}}, nil
}

// Now 返回当前 TSC 计数
func (t *TSC) Now() uint64 {
	return uint64(hrtime.TSC())
}
