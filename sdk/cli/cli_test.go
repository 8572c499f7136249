package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/bench"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/transport"
)

func execute(t *testing.T, role bench.Role, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), role, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func memoryTopic(t *testing.T) string {
	topic := strings.ReplaceAll(t.Name(), "/", "_")
	t.Cleanup(func() { transport.ResetMemory(topic) })
	return topic
}

func countPrefixed(t *testing.T, path, prefix string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		if _, msg, ok := strings.Cut(line, "|"); ok && strings.HasPrefix(msg, prefix) {
			n++
		}
	}
	return n
}

// TestExecute_Help --help 打印用法并返回 0
func TestExecute_Help(t *testing.T) {
	code, stdout, _ := execute(t, bench.ProducerOnly, "--help")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "--brokers")
	assert.Contains(t, stdout, "--throughput.ops")

	code, stdout, _ = execute(t, bench.ConsumerOnly, "-h")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "--receive.timeout")
	assert.NotContains(t, stdout, "--throughput.ops")
}

// TestExecute_MissingRequired 缺少必填参数时打印用法到 stderr 并返回 1
func TestExecute_MissingRequired(t *testing.T) {
	tests := []struct {
		name string
		role bench.Role
		args []string
		want string
	}{
		{name: "producer brokers", role: bench.ProducerOnly, args: []string{"-t", "bench"}, want: config.ErrMissingBrokers.Error()},
		{name: "producer topic", role: bench.ProducerOnly, args: []string{"-b", "localhost:9092"}, want: config.ErrMissingTopic.Error()},
		{name: "consumer brokers", role: bench.ConsumerOnly, args: []string{"--topic", "bench"}, want: config.ErrMissingBrokers.Error()},
		{name: "consumer topic", role: bench.ConsumerOnly, args: []string{"--brokers", "a:1,b:2"}, want: config.ErrMissingTopic.Error()},
		{name: "negative rate", role: bench.ProducerOnly, args: []string{"-b", "x", "-t", "y", "--throughput.ops", "-1"}, want: "throughput.ops"},
		{name: "unknown flag", role: bench.ConsumerOnly, args: []string{"--throughput.ops", "5"}, want: "unknown flag"},
		{name: "positional", role: bench.ProducerOnly, args: []string{"extra"}, want: "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := execute(t, tt.role, tt.args...)
			assert.Equal(t, ExitFailure, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, tt.want)
			assert.Contains(t, stderr, "Usage:")
		})
	}
}

// TestExecute_Loopback 进程内收发后正常退出
func TestExecute_Loopback(t *testing.T) {
	dir := t.TempDir()
	summary := filepath.Join(dir, "summary.json")
	code, _, stderr := execute(t, bench.Both,
		"--transport", "memory",
		"-t", memoryTopic(t),
		"-L", dir,
		"--max.messages", "50",
		"--throughput.ops", "5000",
		"--summary.path", summary,
		"--log.level", "error")

	require.Equal(t, ExitOK, code, stderr)
	assert.Equal(t, 50, countPrefixed(t, filepath.Join(dir, "producer_trace.log"), "PRODUCE "))
	assert.Equal(t, 50, countPrefixed(t, filepath.Join(dir, "consumer_trace.log"), "CONSUME "))
	assert.FileExists(t, summary)
}

// TestExecute_ConfigFileAndEnv 配置文件与环境变量
func TestExecute_ConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yml")
	yml := `
transport:
  type: memory
producer:
  maxMessages: 5
logger:
  stdout: false
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("JXTBENCH_TRANSPORT_TOPIC", memoryTopic(t))

	code, _, stderr := execute(t, bench.ProducerOnly, "-c", path, "-L", dir)
	require.Equal(t, ExitOK, code, stderr)
	assert.Equal(t, 5, countPrefixed(t, filepath.Join(dir, "producer_trace.log"), "PRODUCE "))
	assert.Empty(t, stderr)
}

// TestExecute_MissingConfigFile 配置文件不存在属于配置错误
func TestExecute_MissingConfigFile(t *testing.T) {
	code, _, stderr := execute(t, bench.ProducerOnly, "-c", filepath.Join(t.TempDir(), "nope.yml"))
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "failed to read config file")
}
