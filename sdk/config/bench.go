package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/envelope"
)

// ==========================================================================
// 基准测试配置 - 生产者/消费者共用的统一入口
// ==========================================================================

// 传输类型
const (
	TransportKafka  = "kafka"
	TransportNATS   = "nats"
	TransportRedis  = "redis"
	TransportNSQ    = "nsq"
	TransportMemory = "memory"
)

// 时钟来源
const (
	ClockMonotonic = "monotonic"
	ClockTSC       = "tsc"
)

// 节流模式
const (
	ThrottleSpin  = "spin"
	ThrottleToken = "token"
)

// 默认值（命令行参数默认值与此保持一致）
const (
	DefaultTransport       = TransportKafka
	DefaultPayloadSize     = 100
	DefaultReceiveTimeout  = time.Second
	DefaultClock           = ClockMonotonic
	DefaultThrottleMode    = ThrottleSpin
	DefaultKafkaPartition  = 0
	DefaultMemoryBuffer    = 1024
	DefaultRetrySpin       = 64
	DefaultRetryBackoff    = 50 * time.Microsecond
	DefaultRetryMaxBackoff = 10 * time.Millisecond
	DefaultRetryFactor     = 2.0
	DefaultCloseTimeout    = 10 * time.Second
	DefaultMetricsNS       = "jxt_bench"
)

var (
	ErrMissingBrokers = errors.New("no brokers list provided")
	ErrMissingTopic   = errors.New("no topic provided")
)

// Bench 顶层配置结构
type Bench struct {
	Transport   TransportConfig `mapstructure:"transport"`
	PayloadSize int             `mapstructure:"payloadSize"` // 消息总长度，生产者与消费者需一致
	LogDir      string          `mapstructure:"logDir"`      // TraceLog 目录，为空时输出到 stdout
	Clock       ClockConfig     `mapstructure:"clock"`
	Producer    ProducerConfig  `mapstructure:"producer"`
	Consumer    ConsumerConfig  `mapstructure:"consumer"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Summary     SummaryConfig   `mapstructure:"summary"`
	Logger      *Logger         `mapstructure:"logger"`
}

// TransportConfig 传输层配置
type TransportConfig struct {
	Type    string   `mapstructure:"type"`    // kafka, nats, redis, nsq, memory
	Brokers []string `mapstructure:"brokers"` // 服务地址（kafka broker / nats url / redis addr / nsqd addr）
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"groupId"` // 消费者组，可选

	Kafka  KafkaConfig  `mapstructure:"kafka"`
	NATS   NATSConfig   `mapstructure:"nats"`
	Redis  RedisConfig  `mapstructure:"redis"`
	NSQ    NSQConfig    `mapstructure:"nsq"`
	Memory MemoryConfig `mapstructure:"memory"`
	Retry  RetryConfig  `mapstructure:"retry"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Partition           int32  `mapstructure:"partition"`           // 生产/消费的分区（无消费者组时）
	RequiredAcks        int    `mapstructure:"requiredAcks"`        // 消息确认级别 (0, 1, -1)
	Compression         string `mapstructure:"compression"`         // none, gzip, snappy, lz4, zstd
	AutoOffsetReset     string `mapstructure:"autoOffsetReset"`     // earliest, latest
	FetchWaitMaxMs      int    `mapstructure:"fetchWaitMaxMs"`      // fetch.wait.max.ms
	QueueBufferingMaxMs int    `mapstructure:"queueBufferingMaxMs"` // queue.buffering.max.ms
	ClientID            string `mapstructure:"clientId"`
	Version             string `mapstructure:"version"`
}

// NATSConfig NATS配置
type NATSConfig struct {
	ClientID          string        `mapstructure:"clientId"`
	MaxReconnects     int           `mapstructure:"maxReconnects"`
	ReconnectWait     time.Duration `mapstructure:"reconnectWait"`
	ConnectionTimeout time.Duration `mapstructure:"connectionTimeout"`
}

// RedisConfig Redis Stream配置
type RedisConfig struct {
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MaxLen   int64  `mapstructure:"maxLen"` // XADD MAXLEN ~，0表示不裁剪
}

// NSQConfig NSQ配置
type NSQConfig struct {
	Channel     string `mapstructure:"channel"` // 为空时使用 groupId 或自动生成
	MaxInFlight int    `mapstructure:"maxInFlight"`
}

// MemoryConfig 内存传输配置
type MemoryConfig struct {
	BufferSize int `mapstructure:"bufferSize"`
}

// RetryConfig 发送队列满时的重试配置（不限次数，保证不丢消息）
type RetryConfig struct {
	SpinAttempts   int           `mapstructure:"spinAttempts"`   // 进入退避前的紧密重试次数
	InitialBackoff time.Duration `mapstructure:"initialBackoff"` // 初始退避时间
	MaxBackoff     time.Duration `mapstructure:"maxBackoff"`     // 最大退避时间
	BackoffFactor  float64       `mapstructure:"backoffFactor"`  // 退避因子
}

// ClockConfig 时钟配置
type ClockConfig struct {
	Source string `mapstructure:"source"` // monotonic, tsc
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	ThroughputOps float64 `mapstructure:"throughputOps"` // 目标发送速率，0表示不限速
	ThrottleMode  string  `mapstructure:"throttleMode"`  // spin, token
	MaxMessages   uint64  `mapstructure:"maxMessages"`   // 发送条数上限，0表示不限
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	ReceiveTimeout time.Duration `mapstructure:"receiveTimeout"` // 单次接收超时，同时是最坏停止延迟
	MaxMessages    uint64        `mapstructure:"maxMessages"`    // 接收条数上限，0表示不限
	LogNoMessage   bool          `mapstructure:"logNoMessage"`   // 超时未收到消息时是否记录 NOMSG
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"` // Prometheus 监听地址，为空时不启用
	Namespace string `mapstructure:"namespace"`
}

// SummaryConfig 运行结果汇总
type SummaryConfig struct {
	Path string `mapstructure:"path"` // JSON 汇总文件路径，为空时只打印日志
}

// Default 返回带默认值的配置
func Default() *Bench {
	logCfg := *LoggerConfig
	return &Bench{
		Transport: TransportConfig{
			Type: DefaultTransport,
			Kafka: KafkaConfig{
				Partition:       DefaultKafkaPartition,
				RequiredAcks:    1,
				Compression:     "none",
				AutoOffsetReset: "latest",
			},
			NATS: NATSConfig{
				MaxReconnects:     60,
				ReconnectWait:     2 * time.Second,
				ConnectionTimeout: 5 * time.Second,
			},
			NSQ: NSQConfig{
				MaxInFlight: 1,
			},
			Memory: MemoryConfig{
				BufferSize: DefaultMemoryBuffer,
			},
			Retry: RetryConfig{
				SpinAttempts:   DefaultRetrySpin,
				InitialBackoff: DefaultRetryBackoff,
				MaxBackoff:     DefaultRetryMaxBackoff,
				BackoffFactor:  DefaultRetryFactor,
			},
		},
		PayloadSize: DefaultPayloadSize,
		Clock:       ClockConfig{Source: DefaultClock},
		Producer: ProducerConfig{
			ThrottleMode: DefaultThrottleMode,
		},
		Consumer: ConsumerConfig{
			ReceiveTimeout: DefaultReceiveTimeout,
		},
		Metrics: MetricsConfig{
			Namespace: DefaultMetricsNS,
		},
		Logger: &logCfg,
	}
}

// ValidateProducer 校验生产者所需配置
func (c *Bench) ValidateProducer() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.Producer.ThroughputOps < 0 {
		return fmt.Errorf("throughput.ops must not be negative: %v", c.Producer.ThroughputOps)
	}
	switch c.Producer.ThrottleMode {
	case ThrottleSpin, ThrottleToken:
	default:
		return fmt.Errorf("unsupported throttle mode: %s", c.Producer.ThrottleMode)
	}
	return nil
}

// ValidateConsumer 校验消费者所需配置
func (c *Bench) ValidateConsumer() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.Consumer.ReceiveTimeout <= 0 {
		return fmt.Errorf("receive.timeout must be positive: %v", c.Consumer.ReceiveTimeout)
	}
	return nil
}

func (c *Bench) validateCommon() error {
	switch c.Transport.Type {
	case TransportKafka, TransportNATS, TransportRedis, TransportNSQ:
		if len(c.Transport.Brokers) == 0 {
			return ErrMissingBrokers
		}
	case TransportMemory:
	default:
		return fmt.Errorf("unsupported transport type: %s", c.Transport.Type)
	}
	if strings.TrimSpace(c.Transport.Topic) == "" {
		return ErrMissingTopic
	}
	if c.PayloadSize < envelope.HeaderSize {
		return fmt.Errorf("payload.size must be at least %d bytes: %d", envelope.HeaderSize, c.PayloadSize)
	}
	switch c.Clock.Source {
	case ClockMonotonic, ClockTSC:
	default:
		return fmt.Errorf("unsupported clock source: %s", c.Clock.Source)
	}
	return nil
}

// TracePath 返回指定角色的 TraceLog 文件路径，未配置目录时返回空串（输出到 stdout）
func (c *Bench) TracePath(role string) string {
	if c.LogDir == "" {
		return ""
	}
	return traceFile(c.LogDir, role)
}
