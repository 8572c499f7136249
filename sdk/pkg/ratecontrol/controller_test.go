package ratecontrol

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/clock"
)

// TestController_Unthrottled 测试不限速时 Throttle 不阻塞
func TestController_Unthrottled(t *testing.T) {
	ctl := NewController(clock.NewMonotonic(), 0)
	require.False(t, ctl.Enabled())

	ctx := context.Background()
	const calls = 100000
	start := time.Now()
	for i := 0; i < calls; i++ {
		require.NoError(t, ctl.Throttle(ctx))
	}
	perCall := time.Since(start) / calls

	assert.Less(t, perCall, time.Microsecond, "不限速时每次调用开销应低于1微秒")
}

// TestController_RateFidelity 测试实际速率与目标速率一致
func TestController_RateFidelity(t *testing.T) {
	c := clock.NewMonotonic()
	const ops = 1000.0
	const sends = 100

	ctl := NewController(c, ops)
	origin := ctl.Deadline() - ctl.Interval()
	ctx := context.Background()

	returns := make([]uint64, 0, sends)
	for i := 0; i < sends; i++ {
		require.NoError(t, ctl.Throttle(ctx))
		returns = append(returns, c.Now())
	}

	// 第 k 次返回不早于第 k 个截止时间
	for k, ts := range returns {
		assert.GreaterOrEqual(t, ts, origin+uint64(k+1)*ctl.Interval(), "send %d returned early", k+1)
	}

	mean := c.ToDuration(returns[sends-1]-origin) / sends
	target := time.Duration(float64(time.Second) / ops)
	assert.InEpsilon(t, float64(target), float64(mean), 0.05)
}

// TestController_NoDrift 测试慢发送不会让节奏整体后移
func TestController_NoDrift(t *testing.T) {
	c := clock.NewManual(1000, 1e6) // 1 tick = 1us
	ctl := NewController(c, 1000, WithSpinWindow(0))
	require.Equal(t, uint64(1000), ctl.Interval())
	require.Equal(t, uint64(2000), ctl.Deadline())
	ctx := context.Background()

	// 一次耗时 3.5 个间隔的发送
	c.Set(5500)
	require.NoError(t, ctl.Throttle(ctx))
	assert.Equal(t, uint64(3000), ctl.Deadline(), "截止时间只从上一个截止时间推算")

	// 落后时立即返回以追赶
	require.NoError(t, ctl.Throttle(ctx))
	require.NoError(t, ctl.Throttle(ctx))
	assert.Equal(t, uint64(5000), ctl.Deadline())

	// 追上之后重新开始等待
	c.WithStep(1)
	require.NoError(t, ctl.Throttle(ctx))
	assert.GreaterOrEqual(t, c.Now(), uint64(5000))
	require.NoError(t, ctl.Throttle(ctx))
	assert.GreaterOrEqual(t, c.Now(), uint64(6000))
	assert.Equal(t, uint64(7000), ctl.Deadline())
}

// TestController_Saturates 测试超大间隔时截止时间饱和而不回绕
func TestController_Saturates(t *testing.T) {
	c := clock.NewManual(math.MaxUint64-10, 1e9)
	ctl := NewController(c, 1e-30)

	assert.Equal(t, uint64(math.MaxUint64), ctl.Interval())
	assert.Equal(t, uint64(math.MaxUint64), ctl.Deadline())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ctl.Throttle(ctx), context.Canceled)
	assert.Equal(t, uint64(math.MaxUint64), ctl.Deadline())
}

// TestController_CancelWhileSpinning 测试自旋等待可被取消
func TestController_CancelWhileSpinning(t *testing.T) {
	c := clock.NewManual(0, 1e6)
	ctl := NewController(c, 1000, WithSpinWindow(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ctl.Throttle(ctx), context.Canceled)
	assert.Equal(t, uint64(1000), ctl.Deadline(), "取消时不推进截止时间")
}

// TestNew 测试按模式创建节流器
func TestNew(t *testing.T) {
	c := clock.NewMonotonic()

	th, err := New(ModeSpin, c, 10)
	require.NoError(t, err)
	assert.IsType(t, &Controller{}, th)

	th, err = New(ModeToken, c, 10)
	require.NoError(t, err)
	assert.IsType(t, &TokenBucket{}, th)

	_, err = New("lazy", c, 10)
	assert.Error(t, err)
}
