package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
)

// nsqLogger 将 go-nsq 的日志输出转到 zap
type nsqLogger struct {
	logger *zap.Logger
}

func (l nsqLogger) Output(_ int, s string) error {
	l.logger.Debug(s)
	return nil
}

type nsqSender struct {
	producer *nsq.Producer
	topic    string
}

func newNSQSender(cfg *config.TransportConfig, logger *zap.Logger) (*nsqSender, error) {
	producer, err := nsq.NewProducer(cfg.Brokers[0], nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	producer.SetLogger(nsqLogger{logger: logger}, nsq.LogLevelWarning)
	if err := producer.Ping(); err != nil {
		producer.Stop()
		return nil, fmt.Errorf("failed to connect to nsqd: %w", err)
	}
	return &nsqSender{producer: producer, topic: cfg.Topic}, nil
}

func (s *nsqSender) Send(ctx context.Context, payload []byte) error {
	err := s.producer.Publish(s.topic, payload)
	if errors.Is(err, nsq.ErrStopped) {
		return ErrClosed
	}
	return err
}

func (s *nsqSender) Close() error {
	s.producer.Stop()
	return nil
}

type nsqReceiver struct {
	consumer *nsq.Consumer
	messages chan *nsq.Message
	quit     chan struct{}
	once     sync.Once
}

// nsqChannel 未指定 channel 时使用消费者组，否则生成临时 channel
func nsqChannel(cfg *config.TransportConfig) string {
	switch {
	case cfg.NSQ.Channel != "":
		return cfg.NSQ.Channel
	case cfg.GroupID != "":
		return cfg.GroupID
	default:
		return "jxt-bench-" + uuid.NewString()[:8] + "#ephemeral"
	}
}

func newNSQReceiver(cfg *config.TransportConfig, logger *zap.Logger) (*nsqReceiver, error) {
	nc := nsq.NewConfig()
	if cfg.NSQ.MaxInFlight > 0 {
		nc.MaxInFlight = cfg.NSQ.MaxInFlight
	}
	consumer, err := nsq.NewConsumer(cfg.Topic, nsqChannel(cfg), nc)
	if err != nil {
		return nil, err
	}
	consumer.SetLogger(nsqLogger{logger: logger}, nsq.LogLevelWarning)

	r := &nsqReceiver{
		consumer: consumer,
		messages: make(chan *nsq.Message),
		quit:     make(chan struct{}),
	}
	consumer.AddHandler(nsq.HandlerFunc(r.handle))
	if err := consumer.ConnectToNSQDs(cfg.Brokers); err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("failed to connect to nsqd: %w", err)
	}
	return r, nil
}

// handle 在 go-nsq 的处理协程中运行，消息交给 Receive 后由 Release 确认
func (r *nsqReceiver) handle(m *nsq.Message) error {
	m.DisableAutoResponse()
	select {
	case r.messages <- m:
	case <-r.quit:
		m.Requeue(-1)
	}
	return nil
}

func (r *nsqReceiver) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-r.messages:
		return NewMessage(m.Body, m.Finish), nil
	case <-timer.C:
		return nil, ErrNoMessage
	case <-r.quit:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *nsqReceiver) Close() error {
	r.once.Do(func() { close(r.quit) })
	r.consumer.Stop()
	select {
	case <-r.consumer.StopChan:
		return nil
	case <-time.After(config.DefaultCloseTimeout):
		return fmt.Errorf("nsq consumer stop timed out after %s", config.DefaultCloseTimeout)
	}
}
