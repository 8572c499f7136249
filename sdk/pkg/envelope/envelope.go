package envelope

import (
	"encoding/binary"
	"fmt"
)

// 消息头布局（小端）：
//
//	offset 0:  sequenceId    uint64
//	offset 8:  sendTimestamp uint64
//	offset 16: payload
const (
	SequenceOffset  = 0
	TimestampOffset = 8
	HeaderSize      = 16
)

// Filler 消息头之后填充的文本
const Filler = "Message ID #"

// Header 消息包络头
type Header struct {
	SequenceID    uint64
	SendTimestamp uint64
}

// NewBuffer 创建指定长度的发送缓冲区，并预先写入填充文本
func NewBuffer(size int) []byte {
	mustFit(size)
	buf := make([]byte, size)
	copy(Payload(buf), Filler)
	return buf
}

// Stamp 将序列号和发送时间戳写入缓冲区头部
func Stamp(buf []byte, sequenceID, timestamp uint64) {
	mustFit(len(buf))
	binary.LittleEndian.PutUint64(buf[SequenceOffset:], sequenceID)
	binary.LittleEndian.PutUint64(buf[TimestampOffset:], timestamp)
}

// Read 解析接收缓冲区的消息头
func Read(buf []byte) Header {
	mustFit(len(buf))
	return Header{
		SequenceID:    binary.LittleEndian.Uint64(buf[SequenceOffset:]),
		SendTimestamp: binary.LittleEndian.Uint64(buf[TimestampOffset:]),
	}
}

// Payload 返回消息头之后的负载部分
func Payload(buf []byte) []byte {
	mustFit(len(buf))
	return buf[HeaderSize:]
}

// 缓冲区小于消息头说明协议不匹配或传输层损坏，属于程序错误
func mustFit(n int) {
	if n < HeaderSize {
		panic(fmt.Sprintf("envelope: buffer of %d bytes is shorter than the %d byte header", n, HeaderSize))
	}
}
