package bench

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/clock"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/envelope"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/ratecontrol"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/shutdown"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/tracelog"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/transport"
)

// retryCounter 由带重试的发送端实现
type retryCounter interface {
	Retries() uint64
}

// Producer 生产循环
//
// 单协程运行：打时间戳、发送、记录 PRODUCE、节流，直到收到停止信号、
// 达到条数上限或发送出现不可恢复错误。
type Producer struct {
	sender transport.Sender
	trace  Recorder
	clock  clock.Clock
	stop   *shutdown.Signal
	opts   *loopOptions

	buf   []byte
	seq   uint64
	state atomic.Int32
}

// NewProducer 创建生产循环，序列号从 1 开始
func NewProducer(sender transport.Sender, trace Recorder, c clock.Clock, stop *shutdown.Signal, opts ...Option) *Producer {
	o := buildLoopOptions(opts)
	if o.throttler == nil {
		o.throttler = ratecontrol.NewController(c, 0)
	}
	return &Producer{
		sender: sender,
		trace:  trace,
		clock:  c,
		stop:   stop,
		opts:   o,
		buf:    envelope.NewBuffer(o.payloadSize),
		seq:    1,
	}
}

// State 当前状态
func (p *Producer) State() State {
	return State(p.state.Load())
}

// Run 运行到停止，返回运行结果；TraceLog 在停止时刷新且只刷新一次
func (p *Producer) Run(ctx context.Context) *Result {
	ctx, cancel := p.stop.Context(ctx)
	defer cancel()

	res := &Result{Role: RoleProducer, Transport: p.opts.transport}
	p.state.Store(int32(StateRunning))
	p.trace.RecordCalibration()
	p.trace.Record(tracelog.Start(RoleProducer, p.opts.transport))
	p.opts.logger.Info("Producer started",
		zap.Int("payloadSize", len(p.buf)),
		zap.Bool("throttled", p.opts.throttler.Enabled()),
		zap.Uint64("maxMessages", p.opts.maxMessages))

	start := p.clock.Now()
	reason, err := p.loop(ctx, res)
	elapsed := p.clock.ToDuration(clock.Elapsed(start, p.clock.Now()))

	return p.finish(res, reason, elapsed, err)
}

func (p *Producer) loop(ctx context.Context, res *Result) (string, error) {
	for {
		if p.stop.IsSet() || ctx.Err() != nil {
			return tracelog.ReasonShutdown, nil
		}

		// 时间戳在节流结束之后、发送之前获取
		ts := p.clock.Now()
		envelope.Stamp(p.buf, p.seq, ts)
		if err := p.sender.Send(ctx, p.buf); err != nil {
			if ctx.Err() != nil {
				return tracelog.ReasonShutdown, nil
			}
			p.opts.metrics.sendError()
			return tracelog.ReasonError, fmt.Errorf("send sequence %d: %w", p.seq, err)
		}
		p.trace.RecordAt(ts, tracelog.Produce(p.seq))
		p.opts.metrics.produced()
		res.Sent++
		res.LastSequence = p.seq
		p.seq++

		if p.opts.maxMessages > 0 && res.Sent >= p.opts.maxMessages {
			return tracelog.ReasonLimit, nil
		}
		if err := p.opts.throttler.Throttle(ctx); err != nil {
			return tracelog.ReasonShutdown, nil
		}
	}
}

func (p *Producer) finish(res *Result, reason string, elapsed time.Duration, err error) *Result {
	if rc, ok := p.sender.(retryCounter); ok {
		res.Retries = rc.Retries()
	}
	stopLoop(p.trace, &p.state, res, reason, elapsed, err)
	p.opts.logger.Info("Producer stopped",
		zap.String("reason", res.Reason),
		zap.Uint64("sent", res.Sent),
		zap.Uint64("retries", res.Retries),
		zap.Duration("elapsed", elapsed),
		zap.Float64("rate", res.RatePerSecond),
		zap.Error(res.Err))
	return res
}
