package tracelog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap/buffer"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/clock"
)

// CalibrationKey 校准行前缀，格式为 CPS|<每秒tick数>
const CalibrationKey = "CPS"

const writerBufferSize = 64 * 1024

var pool = buffer.NewPool()

// TraceLog 追加写入、带时间戳前缀的事件日志
//
// 每行格式为 <uint64时间戳>|<消息>。目标在创建时确定，之后不再改变。
// 不是并发安全的，每个循环持有自己的实例。
type TraceLog struct {
	clock clock.Clock
	w     *bufio.Writer
	file  *os.File
}

// New 创建 TraceLog。path 为空时输出到标准输出，否则截断并写入该文件
func New(path string, c clock.Clock) (*TraceLog, error) {
	if path == "" {
		return NewWriter(os.Stdout, c), nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create trace log directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace log: %w", err)
	}
	t := NewWriter(f, c)
	t.file = f
	return t, nil
}

// NewWriter 创建写入任意 io.Writer 的 TraceLog
func NewWriter(w io.Writer, c clock.Clock) *TraceLog {
	return &TraceLog{
		clock: c,
		w:     bufio.NewWriterSize(w, writerBufferSize),
	}
}

// Record 以当前时间记录事件
func (t *TraceLog) Record(ev Event) {
	t.RecordAt(t.clock.Now(), ev)
}

// RecordAt 以指定时间戳记录事件，时间戳应反映事件实际发生的时刻
func (t *TraceLog) RecordAt(ts uint64, ev Event) {
	b := pool.Get()
	b.AppendUint(ts)
	b.AppendByte('|')
	ev.appendTo(b)
	b.AppendByte('\n')
	// bufio.Writer 会保留首个写错误，由 Flush 返回
	_, _ = t.w.Write(b.Bytes())
	b.Free()
}

// RecordCalibration 写入 CPS 校准行
func (t *TraceLog) RecordCalibration() {
	b := pool.Get()
	b.AppendString(CalibrationKey)
	b.AppendByte('|')
	b.AppendFloat(t.clock.TicksPerSecond(), 64)
	b.AppendByte('\n')
	_, _ = t.w.Write(b.Bytes())
	b.Free()
}

// Flush 将缓冲数据写出，文件目标会同步到磁盘
func (t *TraceLog) Flush() error {
	if err := t.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace log: %w", err)
	}
	if t.file != nil {
		if err := t.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync trace log: %w", err)
		}
	}
	return nil
}

// Close 关闭文件目标；仍有未写出的数据时先刷新。标准输出不会被关闭
func (t *TraceLog) Close() error {
	var err error
	if t.w.Buffered() > 0 {
		err = t.Flush()
	}
	if t.file != nil {
		if cerr := t.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		t.file = nil
	}
	return err
}

// Line 解析后的一行
type Line struct {
	Timestamp   uint64
	Message     string
	Calibration float64 // 仅 CPS 行有效
	IsCPS       bool
}

var ErrMalformedLine = errors.New("malformed trace log line")

// ParseLine 在第一个 '|' 处拆分一行
func ParseLine(line string) (Line, error) {
	line = strings.TrimSuffix(line, "\n")
	head, msg, ok := strings.Cut(line, "|")
	if !ok {
		return Line{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	if head == CalibrationKey {
		cps, err := strconv.ParseFloat(msg, 64)
		if err != nil {
			return Line{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
		}
		return Line{Message: msg, Calibration: cps, IsCPS: true}, nil
	}
	ts, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return Line{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	return Line{Timestamp: ts, Message: msg}, nil
}
