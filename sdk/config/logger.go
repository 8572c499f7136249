package config

// Logger 诊断日志配置（与 TraceLog 无关）
type Logger struct {
	Path        string `mapstructure:"path"`        // 日志文件目录，为空时只输出到控制台
	Level       string `mapstructure:"level"`       // 日志级别
	Stdout      bool   `mapstructure:"stdout"`      // 是否输出到控制台（stderr，stdout 留给 TraceLog）
	MaxSize     int    `mapstructure:"maxSize"`     // 每个日志文件最大多少MB
	ErrorMaxAge int    `mapstructure:"errorMaxAge"` // error日志文件保留天数
	InfoMaxAge  int    `mapstructure:"infoMaxAge"`  // info日志文件保留天数
	MaxBackups  int    `mapstructure:"maxBackups"`  // 日志文件保留个数
}

var LoggerConfig = &Logger{
	Level:       "info",
	Stdout:      true,
	MaxSize:     50,
	ErrorMaxAge: 14,
	InfoMaxAge:  3,
	MaxBackups:  20,
}
