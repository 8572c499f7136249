package cli

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/bench"
)

// 命令行参数名
const (
	FlagConfig              = "config"
	FlagBrokers             = "brokers"
	FlagTopic               = "topic"
	FlagGroupID             = "group.id"
	FlagThroughputOps       = "throughput.ops"
	FlagLogDir              = "logDir"
	FlagTransport           = "transport"
	FlagPayloadSize         = "payload.size"
	FlagReceiveTimeout      = "receive.timeout"
	FlagMaxMessages         = "max.messages"
	FlagClock               = "clock"
	FlagThrottleMode        = "throttle.mode"
	FlagLogNoMessage        = "log.nomsg"
	FlagLogLevel            = "log.level"
	FlagMetricsAddr         = "metrics.addr"
	FlagSummaryPath         = "summary.path"
	FlagFetchWaitMaxMs      = "fetch.wait.max.ms"
	FlagQueueBufferingMaxMs = "queue.buffering.max.ms"
)

// binding 参数名到配置键
type binding struct {
	flag string
	key  string
}

// registerFlags 按角色注册参数，返回需要绑定到 viper 的映射
func registerFlags(fs *pflag.FlagSet, role bench.Role) []binding {
	def := config.Default()

	fs.StringP(FlagConfig, "c", "", "Path to a YAML/JSON config file")
	fs.StringP(FlagBrokers, "b", "", "Broker address list, comma separated (required unless transport is memory)")
	fs.StringP(FlagTopic, "t", "", "Topic name (required)")
	fs.StringP(FlagGroupID, "g", "", "Consumer group id (optional)")
	fs.StringP(FlagLogDir, "L", "", "Directory for trace output; stdout when empty")
	fs.String(FlagTransport, def.Transport.Type, "Transport: kafka, nats, redis, nsq or memory")
	fs.Int(FlagPayloadSize, def.PayloadSize, "Total message size in bytes, header included")
	fs.String(FlagClock, def.Clock.Source, "Clock source: monotonic or tsc")
	fs.Uint64(FlagMaxMessages, 0, "Stop cleanly after this many messages (0 = unlimited)")
	fs.String(FlagLogLevel, def.Logger.Level, "Diagnostic log level")
	fs.String(FlagMetricsAddr, "", "Serve Prometheus metrics on this address")
	fs.String(FlagSummaryPath, "", "Write a JSON run summary to this path")

	bindings := []binding{
		{FlagBrokers, config.KeyBrokers},
		{FlagTopic, config.KeyTopic},
		{FlagGroupID, config.KeyGroupID},
		{FlagLogDir, config.KeyLogDir},
		{FlagTransport, config.KeyTransportType},
		{FlagPayloadSize, config.KeyPayloadSize},
		{FlagClock, config.KeyClockSource},
		{FlagLogLevel, config.KeyLogLevel},
		{FlagMetricsAddr, config.KeyMetricsAddr},
		{FlagSummaryPath, config.KeySummaryPath},
	}

	if role.Produces() {
		fs.Float64(FlagThroughputOps, 0, "Target send rate in messages per second (0 = unthrottled)")
		fs.String(FlagThrottleMode, def.Producer.ThrottleMode, "Throttle mode: spin or token")
		fs.Int(FlagQueueBufferingMaxMs, 0, "Kafka producer linger (queue.buffering.max.ms)")
		bindings = append(bindings,
			binding{FlagThroughputOps, config.KeyThroughputOps},
			binding{FlagThrottleMode, config.KeyThrottleMode},
			binding{FlagQueueBufferingMaxMs, config.KeyQueueBufferingMaxMs},
			binding{FlagMaxMessages, config.KeyProducerMax},
		)
	} else {
		bindings = append(bindings, binding{FlagMaxMessages, config.KeyConsumerMax})
	}

	if role.Consumes() {
		fs.Duration(FlagReceiveTimeout, def.Consumer.ReceiveTimeout, "Receive timeout; also the worst-case stop latency")
		fs.Bool(FlagLogNoMessage, false, "Record NOMSG events when a receive times out")
		fs.Int(FlagFetchWaitMaxMs, 0, "Kafka consumer fetch wait (fetch.wait.max.ms)")
		bindings = append(bindings,
			binding{FlagReceiveTimeout, config.KeyReceiveTimeout},
			binding{FlagLogNoMessage, config.KeyLogNoMessage},
			binding{FlagFetchWaitMaxMs, config.KeyFetchWaitMaxMs},
		)
	}
	return bindings
}

// bindFlags 将参数绑定到 viper 键，命令行优先于环境变量和配置文件
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, bindings []binding) error {
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, fs.Lookup(b.flag)); err != nil {
			return err
		}
	}
	return nil
}
