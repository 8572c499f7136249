package tracelog

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap/buffer"
)

// Kind 事件类型
type Kind uint8

const (
	KindText Kind = iota
	KindStart
	KindProduce
	KindConsume
	KindNoMessage
	KindStop
)

var kindNames = [...]string{
	KindText:      "",
	KindStart:     "START",
	KindProduce:   "PRODUCE",
	KindConsume:   "CONSUME",
	KindNoMessage: "NOMSG",
	KindStop:      "STOP",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// 停止原因
const (
	ReasonShutdown = "shutdown"
	ReasonLimit    = "limit"
	ReasonError    = "error"
)

// Event 一条 TraceLog 事件，只包含固定的几类字段
type Event struct {
	Kind      Kind
	Seq       uint64
	LatencyUS float64
	Role      string
	Transport string
	Reason    string
	Text      string
}

// Produce 生产事件
func Produce(seq uint64) Event {
	return Event{Kind: KindProduce, Seq: seq}
}

// Consume 消费事件，latencyUS 为端到端延迟（微秒）
func Consume(seq uint64, latencyUS float64) Event {
	return Event{Kind: KindConsume, Seq: seq, LatencyUS: latencyUS}
}

// NoMessage 接收超时事件
func NoMessage() Event {
	return Event{Kind: KindNoMessage}
}

// Start 循环开始事件
func Start(role, transport string) Event {
	return Event{Kind: KindStart, Role: role, Transport: transport}
}

// Stop 循环结束事件
func Stop(reason string) Event {
	return Event{Kind: KindStop, Reason: reason}
}

// Text 自由文本事件
func Text(msg string) Event {
	return Event{Kind: KindText, Text: msg}
}

// appendTo 是事件的唯一序列化入口
func (e Event) appendTo(b *buffer.Buffer) {
	switch e.Kind {
	case KindText:
		appendEscaped(b, e.Text, false)
		return
	case KindStart:
		b.AppendString(KindStart.String())
		appendField(b, "role", e.Role)
		appendField(b, "transport", e.Transport)
	case KindProduce:
		b.AppendString(KindProduce.String())
		b.AppendString(" seq=")
		b.AppendUint(e.Seq)
	case KindConsume:
		b.AppendString(KindConsume.String())
		b.AppendString(" seq=")
		b.AppendUint(e.Seq)
		b.AppendString(" latency_us=")
		b.AppendFloat(e.LatencyUS, 64)
	case KindNoMessage:
		b.AppendString(KindNoMessage.String())
	case KindStop:
		b.AppendString(KindStop.String())
		appendField(b, "reason", e.Reason)
	default:
		b.AppendString(e.Kind.String())
	}
}

// String 返回事件的消息文本（不含时间戳）
func (e Event) String() string {
	b := pool.Get()
	defer b.Free()
	e.appendTo(b)
	return b.String()
}

func appendField(b *buffer.Buffer, key, value string) {
	b.AppendByte(' ')
	b.AppendString(key)
	b.AppendByte('=')
	appendEscaped(b, value, true)
}

// appendEscaped 转义换行和反斜杠，保证一条事件只占一行；
// 字段值中的空格也要转义，否则会被当作字段分隔符
func appendEscaped(b *buffer.Buffer, s string, inField bool) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == ' ' && inField:
			b.AppendString(`\s`)
		case c == '\\':
			b.AppendString(`\\`)
		case c == '\n':
			b.AppendString(`\n`)
		case c == '\r':
			b.AppendString(`\r`)
		default:
			b.AppendByte(c)
		}
	}
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 's':
			sb.WriteByte(' ')
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// ParseEvent 解析事件消息文本，无法识别的消息作为文本事件返回
func ParseEvent(msg string) (Event, error) {
	fields := strings.Split(msg, " ")
	var ev Event
	switch fields[0] {
	case KindStart.String():
		ev.Kind = KindStart
	case KindProduce.String():
		ev.Kind = KindProduce
	case KindConsume.String():
		ev.Kind = KindConsume
	case KindNoMessage.String():
		ev.Kind = KindNoMessage
	case KindStop.String():
		ev.Kind = KindStop
	default:
		return Text(unescape(msg)), nil
	}

	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return ev, fmt.Errorf("malformed field %q in %q", f, msg)
		}
		var err error
		switch key {
		case "seq":
			ev.Seq, err = strconv.ParseUint(value, 10, 64)
		case "latency_us":
			ev.LatencyUS, err = strconv.ParseFloat(value, 64)
		case "role":
			ev.Role = unescape(value)
		case "transport":
			ev.Transport = unescape(value)
		case "reason":
			ev.Reason = unescape(value)
		}
		if err != nil {
			return ev, fmt.Errorf("invalid %s in %q: %w", key, msg, err)
		}
	}
	return ev, nil
}
