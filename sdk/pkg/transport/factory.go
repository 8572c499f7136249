package transport

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
)

// Option 传输创建选项
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger 指定诊断日志，默认不输出
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewSender 按配置创建发送端，返回的发送端已包装重试策略
func NewSender(cfg *config.TransportConfig, opts ...Option) (*RetrySender, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}
	o := buildOptions(opts)
	log := o.logger.With(zap.String("transport", cfg.Type), zap.String("topic", cfg.Topic))

	var (
		inner Sender
		err   error
	)
	switch cfg.Type {
	case config.TransportKafka:
		inner, err = newKafkaSender(cfg, log)
	case config.TransportNATS:
		inner, err = newNATSSender(cfg, log)
	case config.TransportRedis:
		inner, err = newRedisSender(cfg, log)
	case config.TransportNSQ:
		inner, err = newNSQSender(cfg, log)
	case config.TransportMemory:
		inner = newMemorySender(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s sender: %w", cfg.Type, err)
	}

	log.Info("Sender created successfully")
	return NewRetrySender(inner, cfg.Retry, log), nil
}

// NewReceiver 按配置创建接收端
func NewReceiver(cfg *config.TransportConfig, opts ...Option) (Receiver, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}
	o := buildOptions(opts)
	log := o.logger.With(zap.String("transport", cfg.Type), zap.String("topic", cfg.Topic))

	var (
		r   Receiver
		err error
	)
	switch cfg.Type {
	case config.TransportKafka:
		r, err = newKafkaReceiver(cfg, log)
	case config.TransportNATS:
		r, err = newNATSReceiver(cfg, log)
	case config.TransportRedis:
		r, err = newRedisReceiver(cfg, log)
	case config.TransportNSQ:
		r, err = newNSQReceiver(cfg, log)
	case config.TransportMemory:
		r = newMemoryReceiver(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s receiver: %w", cfg.Type, err)
	}

	log.Info("Receiver created successfully", zap.String("group", cfg.GroupID))
	return r, nil
}

// validateConfig 验证配置
func validateConfig(cfg *config.TransportConfig) error {
	if cfg == nil {
		return fmt.Errorf("transport config is required")
	}
	if cfg.Topic == "" {
		return config.ErrMissingTopic
	}

	switch cfg.Type {
	case config.TransportKafka, config.TransportNATS, config.TransportRedis, config.TransportNSQ:
		if len(cfg.Brokers) == 0 {
			return config.ErrMissingBrokers
		}
	case config.TransportMemory:
	case "":
		return fmt.Errorf("transport type is required")
	default:
		return fmt.Errorf("unsupported transport type: %s", cfg.Type)
	}
	return nil
}
