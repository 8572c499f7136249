package bench

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/clock"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/envelope"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/tracelog"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/transport"
)

// captureRecorder 写入内存并统计 Flush 次数
type captureRecorder struct {
	*tracelog.TraceLog
	buf     *bytes.Buffer
	flushes int
}

func newCaptureRecorder(c clock.Clock) *captureRecorder {
	buf := &bytes.Buffer{}
	return &captureRecorder{TraceLog: tracelog.NewWriter(buf, c), buf: buf}
}

func (r *captureRecorder) Flush() error {
	r.flushes++
	return r.TraceLog.Flush()
}

type tracedEvent struct {
	ts uint64
	ev tracelog.Event
}

// events 解析已刷新的事件，跳过 CPS 行
func (r *captureRecorder) events(t *testing.T) []tracedEvent {
	t.Helper()
	var out []tracedEvent
	sc := bufio.NewScanner(bytes.NewReader(r.buf.Bytes()))
	for sc.Scan() {
		line, err := tracelog.ParseLine(sc.Text())
		require.NoError(t, err)
		if line.IsCPS {
			continue
		}
		ev, err := tracelog.ParseEvent(line.Message)
		require.NoError(t, err)
		out = append(out, tracedEvent{ts: line.Timestamp, ev: ev})
	}
	return out
}

func (r *captureRecorder) kinds(t *testing.T, kind tracelog.Kind) []tracedEvent {
	var out []tracedEvent
	for _, e := range r.events(t) {
		if e.ev.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *captureRecorder) last(t *testing.T) tracelog.Event {
	events := r.events(t)
	require.NotEmpty(t, events)
	return events[len(events)-1].ev
}

// stubSender 立即成功的发送端，记录每条消息的消息头
type stubSender struct {
	headers []envelope.Header
	failAt  int
	err     error
	onSend  func(n int)
}

func (s *stubSender) Send(_ context.Context, payload []byte) error {
	n := len(s.headers) + 1
	if s.failAt > 0 && n == s.failAt {
		return s.err
	}
	s.headers = append(s.headers, envelope.Read(payload))
	if s.onSend != nil {
		s.onSend(n)
	}
	return nil
}

func (s *stubSender) Close() error { return nil }

// stubReceiver 按脚本返回接收结果
type stubReceiver struct {
	next func(ctx context.Context, timeout time.Duration) (*transport.Message, error)
}

func (r *stubReceiver) Receive(ctx context.Context, timeout time.Duration) (*transport.Message, error) {
	return r.next(ctx, timeout)
}

func (r *stubReceiver) Close() error { return nil }

func stampedMessage(size int, seq, ts uint64, release func()) *transport.Message {
	buf := envelope.NewBuffer(size)
	envelope.Stamp(buf, seq, ts)
	return transport.NewMessage(buf, release)
}

func countLines(data []byte, prefix string) int {
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		_, msg, ok := strings.Cut(line, "|")
		if ok && strings.HasPrefix(msg, prefix) {
			n++
		}
	}
	return n
}
