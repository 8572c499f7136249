package json

import (
	jsoniter "github.com/json-iterator/go"
)

// JSON 统一的 jsoniter 配置实例，与标准库行为兼容
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalIndent 带缩进的序列化，用于写给人看的汇总文件
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return JSON.MarshalIndent(v, prefix, indent)
}

// Unmarshal 从 JSON 字节数组反序列化对象
func Unmarshal(data []byte, v interface{}) error {
	return JSON.Unmarshal(data, v)
}
