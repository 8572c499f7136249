package logger

import (
	"go.uber.org/zap"
)

// Logger 全局ZapLogger，SetupWith 之前为空日志记录器
var Logger = zap.NewNop()

// Named 返回带名称的子日志记录器
func Named(name string) *zap.Logger {
	return Logger.Named(name)
}

// Sync 刷新日志缓冲
func Sync() {
	_ = Logger.Sync()
}
