package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 JXTBENCH_TRANSPORT_TOPIC
const EnvPrefix = "JXTBENCH"

// 配置键（命令行参数通过这些键绑定到 viper）
const (
	KeyTransportType       = "transport.type"
	KeyBrokers             = "transport.brokers"
	KeyTopic               = "transport.topic"
	KeyGroupID             = "transport.groupId"
	KeyFetchWaitMaxMs      = "transport.kafka.fetchWaitMaxMs"
	KeyQueueBufferingMaxMs = "transport.kafka.queueBufferingMaxMs"
	KeyPayloadSize         = "payloadSize"
	KeyLogDir              = "logDir"
	KeyClockSource         = "clock.source"
	KeyThroughputOps       = "producer.throughputOps"
	KeyThrottleMode        = "producer.throttleMode"
	KeyProducerMax         = "producer.maxMessages"
	KeyReceiveTimeout      = "consumer.receiveTimeout"
	KeyConsumerMax         = "consumer.maxMessages"
	KeyLogNoMessage        = "consumer.logNoMessage"
	KeyMetricsAddr         = "metrics.addr"
	KeySummaryPath         = "summary.path"
	KeyLogLevel            = "logger.level"
)

// Setup 读取配置文件（可为空）并与 v 中已绑定的环境变量、命令行参数合并
func Setup(v *viper.Viper, configYml string) (*Bench, error) {
	if configYml != "" {
		v.SetConfigFile(configYml)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configYml, err)
		}
	}
	return Load(v)
}

// NewViper 创建绑定了环境变量的 viper 实例
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load 将 viper 中的配置映射为 Bench，未出现的字段保持默认值
func Load(v *viper.Viper) (*Bench, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// AutomaticEnv 只对 Get 生效，Unmarshal 不会读取未注册的键
	var brokers interface{} = cfg.Transport.Brokers
	if v.IsSet(KeyBrokers) {
		brokers = v.Get(KeyBrokers)
	}
	cfg.Transport.Brokers = splitList(brokers)
	if cfg.Logger == nil {
		cfg.Logger = LoggerConfig
	}
	return cfg, nil
}

// splitList 拆分逗号分隔的地址并去除空白
func splitList(in interface{}) []string {
	var out []string
	for _, item := range cast.ToStringSlice(in) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func traceFile(dir, role string) string {
	return filepath.Join(filepath.Clean(filepath.FromSlash(dir)), role+"_trace.log")
}
