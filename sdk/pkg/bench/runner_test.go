package bench

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/tracelog"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/transport"
)

func memoryBench(t *testing.T) *config.Bench {
	t.Helper()
	cfg := config.Default()
	cfg.Transport.Type = config.TransportMemory
	cfg.Transport.Topic = t.Name()
	cfg.LogDir = t.TempDir()
	t.Cleanup(func() { transport.ResetMemory(cfg.Transport.Topic) })
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Bench, role Role) *Runner {
	r := NewRunner(cfg, role)
	r.Logger = zaptest.NewLogger(t)
	return r
}

// TestRunner_Validate 配置错误在创建任何资源之前返回
func TestRunner_Validate(t *testing.T) {
	cfg := config.Default()
	cfg.Transport.Brokers = []string{"localhost:9092"}
	_, err := newTestRunner(t, cfg, ProducerOnly).Run(context.Background())
	assert.ErrorIs(t, err, config.ErrMissingTopic)

	cfg = config.Default()
	cfg.Transport.Topic = "bench"
	_, err = newTestRunner(t, cfg, ConsumerOnly).Run(context.Background())
	assert.ErrorIs(t, err, config.ErrMissingBrokers)

	cfg = memoryBench(t)
	cfg.Consumer.ReceiveTimeout = 0
	assert.Error(t, newTestRunner(t, cfg, Both).Validate())
	assert.NoError(t, newTestRunner(t, cfg, ProducerOnly).Validate())

	assert.Error(t, newTestRunner(t, memoryBench(t), Role(0)).Validate())
}

// TestRunner_Loopback 进程内收发指定条数后正常停止
func TestRunner_Loopback(t *testing.T) {
	cfg := memoryBench(t)
	cfg.Producer.MaxMessages = 200
	cfg.Summary.Path = filepath.Join(cfg.LogDir, "summary.json")

	results, err := newTestRunner(t, cfg, Both).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, ExitCode(results...))

	producer, consumer := results[0], results[1]
	assert.Equal(t, RoleProducer, producer.Role)
	assert.Equal(t, uint64(200), producer.Sent)
	assert.Equal(t, tracelog.ReasonLimit, producer.Reason)
	assert.Equal(t, RoleConsumer, consumer.Role)
	assert.Equal(t, uint64(200), consumer.Received)
	assert.Equal(t, uint64(200), consumer.LastSequence)
	assert.Equal(t, tracelog.ReasonLimit, consumer.Reason)

	data, err := os.ReadFile(cfg.TracePath(RoleProducer))
	require.NoError(t, err)
	assert.Equal(t, 200, countLines(data, "PRODUCE "))
	data, err = os.ReadFile(cfg.TracePath(RoleConsumer))
	require.NoError(t, err)
	assert.Equal(t, 200, countLines(data, "CONSUME "))

	raw, err := os.ReadFile(cfg.Summary.Path)
	require.NoError(t, err)
	var summary Summary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, 0, summary.ExitCode)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, uint64(200), summary.Results[1].Received)
}

// TestRunner_ShutdownBeforeStart 已置位的停止信号使循环立即停止
func TestRunner_ShutdownBeforeStart(t *testing.T) {
	cfg := memoryBench(t)
	r := newTestRunner(t, cfg, ConsumerOnly)
	r.Signal.Set()

	results, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tracelog.ReasonShutdown, results[0].Reason)

	data, err := os.ReadFile(cfg.TracePath(RoleConsumer))
	require.NoError(t, err)
	assert.Equal(t, 1, countLines(data, "STOP reason=shutdown"))
}

// TestRunner_UnsupportedClock 时钟来源错误属于配置错误
func TestRunner_UnsupportedClock(t *testing.T) {
	cfg := memoryBench(t)
	cfg.Clock.Source = "sundial"

	_, err := newTestRunner(t, cfg, ProducerOnly).Run(context.Background())
	assert.Error(t, err)
	_, statErr := os.Stat(cfg.TracePath(RoleProducer))
	assert.True(t, os.IsNotExist(statErr))
}

// TestRunner_CloseErrorFailsRun 资源释放失败（例如发送端报告未投递的消息）使运行失败
func TestRunner_CloseErrorFailsRun(t *testing.T) {
	cfg := memoryBench(t)
	r := newTestRunner(t, cfg, ConsumerOnly)
	r.Signal.Set()
	undelivered := errors.New("3 kafka messages undelivered")
	r.closers = append(r.closers, func() error { return undelivered })

	results, err := r.Run(context.Background())
	require.ErrorIs(t, err, undelivered)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].ExitCode())
	assert.Nil(t, r.closers)
}
