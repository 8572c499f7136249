package bench

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/clock"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/envelope"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/shutdown"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/tracelog"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/transport"
)

// Consumer 消费循环
//
// 单协程运行：有界超时接收，按消息内嵌的发送时间戳计算端到端延迟并记录 CONSUME。
// 收到停止信号后最多再等待一个接收超时即停止。
type Consumer struct {
	receiver transport.Receiver
	trace    Recorder
	clock    clock.Clock
	stop     *shutdown.Signal
	opts     *loopOptions

	state atomic.Int32
}

// NewConsumer 创建消费循环
func NewConsumer(receiver transport.Receiver, trace Recorder, c clock.Clock, stop *shutdown.Signal, opts ...Option) *Consumer {
	return &Consumer{
		receiver: receiver,
		trace:    trace,
		clock:    c,
		stop:     stop,
		opts:     buildLoopOptions(opts),
	}
}

// State 当前状态
func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Run 运行到停止，返回运行结果
func (c *Consumer) Run(ctx context.Context) *Result {
	ctx, cancel := c.stop.Context(ctx)
	defer cancel()

	res := &Result{Role: RoleConsumer, Transport: c.opts.transport, Latency: &LatencyStats{}}
	c.state.Store(int32(StateRunning))
	c.trace.RecordCalibration()
	c.trace.Record(tracelog.Start(RoleConsumer, c.opts.transport))
	c.opts.logger.Info("Consumer started",
		zap.Duration("receiveTimeout", c.opts.receiveTimeout),
		zap.Uint64("maxMessages", c.opts.maxMessages))

	start := c.clock.Now()
	reason, err := c.loop(ctx, res)
	elapsed := c.clock.ToDuration(clock.Elapsed(start, c.clock.Now()))

	stopLoop(c.trace, &c.state, res, reason, elapsed, err)
	fields := []zap.Field{
		zap.String("reason", res.Reason),
		zap.Uint64("received", res.Received),
		zap.Uint64("noMessage", res.NoMessage),
		zap.Duration("elapsed", elapsed),
		zap.Error(res.Err),
	}
	if res.Latency != nil {
		fields = append(fields,
			zap.Float64("latencyMeanUs", res.Latency.MeanUS),
			zap.Float64("latencyMinUs", res.Latency.MinUS),
			zap.Float64("latencyMaxUs", res.Latency.MaxUS))
	}
	c.opts.logger.Info("Consumer stopped", fields...)
	return res
}

func (c *Consumer) loop(ctx context.Context, res *Result) (string, error) {
	for {
		if c.stop.IsSet() || ctx.Err() != nil {
			return tracelog.ReasonShutdown, nil
		}
		if c.opts.maxMessages > 0 && res.Received >= c.opts.maxMessages {
			return tracelog.ReasonLimit, nil
		}

		// 不支持 ctx 的传输（NATS NextMsg）最坏停止延迟为一个接收超时
		msg, err := c.receiver.Receive(ctx, c.opts.receiveTimeout)
		switch {
		case err == nil:
			c.handle(msg, res)
		case transport.IsNoMessage(err):
			res.NoMessage++
			c.opts.metrics.noMessage()
			if c.opts.logNoMessage {
				c.trace.Record(tracelog.NoMessage())
			}
		case ctx.Err() != nil:
			return tracelog.ReasonShutdown, nil
		default:
			c.opts.metrics.receiveError()
			return tracelog.ReasonError, fmt.Errorf("receive: %w", err)
		}
	}
}

// handle 处理一条消息，无论如何都会释放消息
func (c *Consumer) handle(msg *transport.Message, res *Result) {
	defer msg.Release()

	received := c.clock.Now()
	h := envelope.Read(msg.Value)
	delta := clock.Elapsed(h.SendTimestamp, received)
	latencyUS := clock.Microseconds(c.clock, delta)

	c.trace.RecordAt(received, tracelog.Consume(h.SequenceID, latencyUS))
	c.opts.metrics.consumed(time.Duration(latencyUS * float64(time.Microsecond)))
	res.Received++
	res.LastSequence = h.SequenceID
	res.Latency.Observe(latencyUS)
}
