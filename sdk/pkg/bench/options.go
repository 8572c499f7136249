package bench

import (
	"time"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/ratecontrol"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/tracelog"
)

// Recorder 循环写入 TraceLog 所需的能力
type Recorder interface {
	Record(ev tracelog.Event)
	RecordAt(ts uint64, ev tracelog.Event)
	RecordCalibration()
	Flush() error
}

// Option 循环选项
type Option func(*loopOptions)

type loopOptions struct {
	throttler      ratecontrol.Throttler
	payloadSize    int
	maxMessages    uint64
	receiveTimeout time.Duration
	logNoMessage   bool
	transport      string
	metrics        *Metrics
	logger         *zap.Logger
}

func buildLoopOptions(opts []Option) *loopOptions {
	o := &loopOptions{
		payloadSize:    config.DefaultPayloadSize,
		receiveTimeout: config.DefaultReceiveTimeout,
		transport:      config.DefaultTransport,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithThrottler 生产者节流器，默认不限速
func WithThrottler(t ratecontrol.Throttler) Option {
	return func(o *loopOptions) { o.throttler = t }
}

// WithPayloadSize 消息总长度（含消息头）
func WithPayloadSize(n int) Option {
	return func(o *loopOptions) { o.payloadSize = n }
}

// WithMaxMessages 处理 n 条消息后正常停止，0 表示不限
func WithMaxMessages(n uint64) Option {
	return func(o *loopOptions) { o.maxMessages = n }
}

// WithReceiveTimeout 单次接收超时
func WithReceiveTimeout(d time.Duration) Option {
	return func(o *loopOptions) {
		if d > 0 {
			o.receiveTimeout = d
		}
	}
}

// WithLogNoMessage 接收超时时记录 NOMSG 事件
func WithLogNoMessage(on bool) Option {
	return func(o *loopOptions) { o.logNoMessage = on }
}

// WithTransportName START 事件中记录的传输名称
func WithTransportName(name string) Option {
	return func(o *loopOptions) { o.transport = name }
}

// WithMetrics 注入指标，nil 表示不采集
func WithMetrics(m *Metrics) Option {
	return func(o *loopOptions) { o.metrics = m }
}

// WithLogger 诊断日志
func WithLogger(l *zap.Logger) Option {
	return func(o *loopOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
