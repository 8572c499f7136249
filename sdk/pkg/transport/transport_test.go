package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
)

// TestMessage_Release 测试释放回调只执行一次
func TestMessage_Release(t *testing.T) {
	calls := 0
	m := NewMessage([]byte("x"), func() { calls++ })
	m.Release()
	m.Release()
	assert.Equal(t, 1, calls)

	var nilMsg *Message
	assert.NotPanics(t, func() { nilMsg.Release() })
	assert.NotPanics(t, func() { NewMessage(nil, nil).Release() })
}

// TestErrorClassification 测试错误分类
func TestErrorClassification(t *testing.T) {
	cause := errors.New("reconnect buffer full")

	assert.True(t, IsTransient(ErrQueueFull))
	assert.True(t, IsTransient(Transient(cause)))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", ErrQueueFull)))
	assert.True(t, errors.Is(Transient(cause), cause))
	assert.False(t, IsTransient(cause))
	assert.Nil(t, Transient(nil))

	assert.True(t, IsNoMessage(ErrNoMessage))
	assert.True(t, IsNoMessage(NoMessage(cause)))
	assert.True(t, errors.Is(NoMessage(cause), cause))
	assert.Equal(t, ErrNoMessage, NoMessage(nil))
	assert.False(t, IsNoMessage(ErrClosed))
}

// TestKafkaTransient 测试 Kafka 错误分类
func TestKafkaTransient(t *testing.T) {
	assert.True(t, isKafkaTransient(sarama.ErrLeaderNotAvailable))
	assert.True(t, isKafkaTransient(fmt.Errorf("produce: %w", sarama.ErrRequestTimedOut)))
	assert.True(t, isKafkaTransient(sarama.ErrOutOfBrokers))
	assert.False(t, isKafkaTransient(sarama.ErrUnknownTopicOrPartition))
	assert.False(t, isKafkaTransient(errors.New("boom")))
}

// TestRedisTransient 测试 Redis 错误分类
func TestRedisTransient(t *testing.T) {
	assert.True(t, isRedisTransient(errors.New("LOADING Redis is loading the dataset in memory")))
	assert.True(t, isRedisTransient(errors.New("TRYAGAIN Multiple keys request during rehashing")))
	assert.False(t, isRedisTransient(errors.New("OOM command not allowed")))
}

// TestNewSaramaConfig 测试 Kafka 参数映射
func TestNewSaramaConfig(t *testing.T) {
	cfg := config.Default().Transport
	cfg.Kafka.FetchWaitMaxMs = 5
	cfg.Kafka.QueueBufferingMaxMs = 2
	cfg.Kafka.Compression = "lz4"
	cfg.Kafka.AutoOffsetReset = "earliest"

	sc, err := newSaramaConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "5ms", sc.Consumer.MaxWaitTime.String())
	assert.Equal(t, "2ms", sc.Producer.Flush.Frequency.String())
	assert.Equal(t, sarama.CompressionLZ4, sc.Producer.Compression)
	assert.Equal(t, sarama.OffsetOldest, sc.Consumer.Offsets.Initial)
	assert.Equal(t, sarama.V2_6_0_0, sc.Version)
	assert.Contains(t, sc.ClientID, "jxt-bench-")

	cfg.Kafka.Version = "not-a-version"
	_, err = newSaramaConfig(&cfg)
	assert.Error(t, err)
}

// TestNSQChannel 测试 NSQ channel 选择
func TestNSQChannel(t *testing.T) {
	cfg := config.Default().Transport
	assert.Contains(t, nsqChannel(&cfg), "#ephemeral")

	cfg.GroupID = "group"
	assert.Equal(t, "group", nsqChannel(&cfg))

	cfg.NSQ.Channel = "chan"
	assert.Equal(t, "chan", nsqChannel(&cfg))
}
