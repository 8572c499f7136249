package logger

import (
	"io"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	toolsConfig "github.com/ChenBigdata421/jxt-bench/sdk/config"
)

/*
诊断日志使用 zap.Logger；TraceLog 的事件行不经过这里。
控制台输出写到 stderr，stdout 留给未配置目录时的 TraceLog。
*/

// LogConfig 日志配置
type LogConfig struct {
	Path          string
	ConsoleOutput bool
	Level         string
	MaxSize       int
	InfoMaxAge    int
	ErrorMaxAge   int
	MaxBackups    int
	Compress      bool
}

// SetupWith 使用指定配置初始化日志记录器，console 为控制台输出目标
func SetupWith(cfg *toolsConfig.Logger, console io.Writer) {
	if cfg == nil {
		cfg = toolsConfig.LoggerConfig
	}

	// 配置日志编码器
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	config := LogConfig{
		Path:          cfg.Path,
		ConsoleOutput: cfg.Stdout,
		Level:         cfg.Level,
		MaxSize:       cfg.MaxSize,     // 日志文件最大大小，单位MB
		InfoMaxAge:    cfg.InfoMaxAge,  // 保留info日志文件的时间，单位天
		ErrorMaxAge:   cfg.ErrorMaxAge, // 保留error日志文件的时间，单位天
		MaxBackups:    cfg.MaxBackups,
		Compress:      true, // 压缩旧的日志文件
	}

	// 解析日志级别
	var logLevel zapcore.Level
	if err := logLevel.UnmarshalText([]byte(config.Level)); err != nil {
		// 默认使用info级别
		logLevel = zapcore.InfoLevel
	}

	var cores []zapcore.Core

	// 配置了目录时才写文件
	if config.Path != "" {
		if logLevel <= zapcore.WarnLevel {
			cores = append(cores, zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				getInfoLogWriter(config),
				zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
					return lvl >= logLevel && lvl < zapcore.ErrorLevel
				}),
			))
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			getErrorLogWriter(config),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= zapcore.ErrorLevel
			}),
		))
	}

	// 根据配置决定是否输出到控制台
	if config.ConsoleOutput && console != nil {
		consoleEncoderConfig := encoderConfig
		consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderConfig),
			zapcore.Lock(zapcore.AddSync(console)),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= logLevel
			}),
		))
	}

	if len(cores) == 0 {
		Logger = zap.NewNop()
		return
	}

	Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// 创建info日志文件写入器
func getInfoLogWriter(config LogConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(config.Path, "info.log"),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.InfoMaxAge,
		Compress:   config.Compress,
	})
}

// 创建error日志文件写入器
func getErrorLogWriter(config LogConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(config.Path, "error.log"),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.ErrorMaxAge,
		Compress:   config.Compress,
	})
}
