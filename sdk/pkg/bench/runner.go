package bench

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/clock"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/ratecontrol"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/shutdown"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/tracelog"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/transport"
)

// Runner 按角色装配并运行循环
//
// INIT 阶段依次创建传输、TraceLog、安装中断处理；Both 角色下生产与消费循环
// 各自在独立协程中单线程运行，共用停止信号。
type Runner struct {
	Config *config.Bench
	Role   Role
	Logger *zap.Logger
	Signal *shutdown.Signal
	// Clock 为空时按配置创建
	Clock clock.Clock

	closers []func() error
}

// NewRunner 创建运行器，日志默认使用全局 Logger
func NewRunner(cfg *config.Bench, role Role) *Runner {
	return &Runner{
		Config: cfg,
		Role:   role,
		Logger: logger.Named("bench"),
		Signal: shutdown.New(),
	}
}

// Validate 校验角色所需配置，在创建任何资源之前调用
func (r *Runner) Validate() error {
	if r.Config == nil {
		return fmt.Errorf("bench config is required")
	}
	if r.Role.Produces() {
		if err := r.Config.ValidateProducer(); err != nil {
			return err
		}
	}
	if r.Role.Consumes() {
		if err := r.Config.ValidateConsumer(); err != nil {
			return err
		}
	}
	if !r.Role.Produces() && !r.Role.Consumes() {
		return fmt.Errorf("unsupported role: %s", r.Role)
	}
	return nil
}

// Run 运行到停止；返回的错误为配置、构造错误、循环中的不可恢复错误或资源释放失败
func (r *Runner) Run(ctx context.Context) (results []*Result, err error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	cfg := r.Config
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("role", r.Role.String()), zap.String("transport", cfg.Transport.Type))

	c := r.Clock
	if c == nil {
		if c, err = clock.New(cfg.Clock.Source); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metrics *Metrics
	if cfg.Metrics.Addr != "" {
		metrics = NewMetrics(cfg.Metrics.Namespace, prometheus.Labels{
			"transport": cfg.Transport.Type,
			"topic":     cfg.Transport.Topic,
		})
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, log); err != nil {
				log.Warn("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	defer func() {
		err = multierr.Append(err, r.close(log))
	}()
	common := []Option{
		WithPayloadSize(cfg.PayloadSize),
		WithTransportName(cfg.Transport.Type),
		WithMetrics(metrics),
	}

	var (
		consumer *Consumer
		producer *Producer
		shared   Recorder
	)
	if r.Role == Both && cfg.LogDir == "" {
		// 两个循环共用标准输出，需要串行化写入
		trace, err := r.openTrace("", c)
		if err != nil {
			return nil, err
		}
		shared = &syncRecorder{rec: trace}
	}

	if r.Role.Consumes() {
		receiver, err := transport.NewReceiver(&cfg.Transport, transport.WithLogger(log))
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, receiver.Close)

		trace := shared
		if trace == nil {
			if trace, err = r.openTrace(cfg.TracePath(RoleConsumer), c); err != nil {
				return nil, err
			}
		}

		// loopback 下消费者默认收满生产者发送的条数后停止
		limit := cfg.Consumer.MaxMessages
		if r.Role == Both && limit == 0 {
			limit = cfg.Producer.MaxMessages
		}
		consumer = NewConsumer(receiver, trace, c, r.Signal, append(common,
			WithReceiveTimeout(cfg.Consumer.ReceiveTimeout),
			WithMaxMessages(limit),
			WithLogNoMessage(cfg.Consumer.LogNoMessage),
			WithLogger(log.Named(RoleConsumer)))...)
	}

	if r.Role.Produces() {
		sender, err := transport.NewSender(&cfg.Transport, transport.WithLogger(log))
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, sender.Close)

		trace := shared
		if trace == nil {
			if trace, err = r.openTrace(cfg.TracePath(RoleProducer), c); err != nil {
				return nil, err
			}
		}

		throttler, err := ratecontrol.New(cfg.Producer.ThrottleMode, c, cfg.Producer.ThroughputOps)
		if err != nil {
			return nil, err
		}
		producer = NewProducer(sender, trace, c, r.Signal, append(common,
			WithThrottler(throttler),
			WithMaxMessages(cfg.Producer.MaxMessages),
			WithLogger(log.Named(RoleProducer)))...)
	}

	r.Signal.Arm()
	defer r.Signal.Disarm()

	results = r.run(ctx, producer, consumer)
	r.report(log, results)

	for _, res := range results {
		err = multierr.Append(err, res.Err)
	}
	return results, err
}

func (r *Runner) run(ctx context.Context, producer *Producer, consumer *Consumer) []*Result {
	switch {
	case producer != nil && consumer != nil:
		var pr, cr *Result
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			cr = consumer.Run(gctx)
			return cr.Err
		})
		g.Go(func() error {
			pr = producer.Run(gctx)
			return pr.Err
		})
		_ = g.Wait()
		return []*Result{pr, cr}
	case producer != nil:
		return []*Result{producer.Run(ctx)}
	default:
		return []*Result{consumer.Run(ctx)}
	}
}

func (r *Runner) report(log *zap.Logger, results []*Result) {
	path := r.Config.Summary.Path
	if path == "" {
		return
	}
	if err := NewSummary(r.Config.Transport.Topic, results...).WriteFile(path); err != nil {
		log.Warn("Failed to write summary", zap.String("path", path), zap.Error(err))
		return
	}
	log.Info("Summary written", zap.String("path", path))
}

func (r *Runner) openTrace(path string, c clock.Clock) (*tracelog.TraceLog, error) {
	trace, err := tracelog.New(path, c)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, trace.Close)
	return trace, nil
}

// close 按创建的逆序释放资源；发送端关闭时报告的未投递消息会使运行失败
func (r *Runner) close(log *zap.Logger) error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i]())
	}
	r.closers = nil
	if err != nil {
		log.Error("Failed to release resources", zap.Error(err))
	}
	return err
}

// syncRecorder 供两个循环共用同一个 TraceLog
type syncRecorder struct {
	mu  sync.Mutex
	rec Recorder
}

func (s *syncRecorder) Record(ev tracelog.Event) {
	s.mu.Lock()
	s.rec.Record(ev)
	s.mu.Unlock()
}

func (s *syncRecorder) RecordAt(ts uint64, ev tracelog.Event) {
	s.mu.Lock()
	s.rec.RecordAt(ts, ev)
	s.mu.Unlock()
}

func (s *syncRecorder) RecordCalibration() {
	s.mu.Lock()
	s.rec.RecordCalibration()
	s.mu.Unlock()
}

func (s *syncRecorder) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Flush()
}
