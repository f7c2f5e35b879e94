package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const logTimestampFormat = "2006-01-02 15:04:05.000"

// 日志格式与输出目标
var (
	logFormats = map[string]bool{"text": true, "json": true}
	logOutputs = map[string]bool{"stdout": true, "stderr": true, "file": true}
)

// LoggingConfig 日志配置
type LoggingConfig struct {
	// Level 日志等级 (trace, debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Format 日志格式 (text, json)
	Format string `yaml:"format" json:"format"`

	// Output 输出目标 (stdout, stderr, file)
	Output string `yaml:"output" json:"output"`

	// File 日志文件路径，仅 Output 为 file 时使用
	File string `yaml:"file" json:"file"`

	// EnableTimestamp 文本格式下输出完整时间戳
	EnableTimestamp bool `yaml:"enable_timestamp" json:"enable_timestamp"`

	// EnableCaller 输出调用位置
	EnableCaller bool `yaml:"enable_caller" json:"enable_caller"`

	// EnableColors 文本格式下强制彩色输出
	EnableColors bool `yaml:"enable_colors" json:"enable_colors"`
}

// DefaultLoggingConfig 返回默认日志配置
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:           "info",
		Format:          "text",
		Output:          "stdout",
		EnableTimestamp: true,
		EnableColors:    true,
	}
}

// Validate 验证日志配置
func (c *LoggingConfig) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	if !logFormats[c.Format] {
		return fmt.Errorf("invalid log format: %s, must be 'text' or 'json'", c.Format)
	}
	if !logOutputs[c.Output] {
		return fmt.Errorf("invalid log output: %s, must be 'stdout', 'stderr', or 'file'", c.Output)
	}
	if c.Output == "file" && c.File == "" {
		return fmt.Errorf("log file path is required when output is 'file'")
	}
	return nil
}

// Merge 合并日志配置，布尔开关总是取 other 的值
func (c *LoggingConfig) Merge(other *LoggingConfig) error {
	if other == nil {
		return nil
	}

	for _, field := range []struct {
		dst *string
		src string
	}{
		{&c.Level, other.Level},
		{&c.Format, other.Format},
		{&c.Output, other.Output},
		{&c.File, other.File},
	} {
		if field.src != "" {
			*field.dst = field.src
		}
	}

	c.EnableTimestamp = other.EnableTimestamp
	c.EnableCaller = other.EnableCaller
	c.EnableColors = other.EnableColors

	return c.Validate()
}

// LoadLoggingConfigFromEnv 默认配置叠加环境变量
func LoadLoggingConfigFromEnv() *LoggingConfig {
	config := DefaultLoggingConfig()
	config.ApplyEnv()
	return config
}

// ApplyEnv 使用 FRAMESINK_LOG_* 环境变量覆盖日志配置
func (c *LoggingConfig) ApplyEnv() {
	strs := map[string]*string{
		"FRAMESINK_LOG_LEVEL":  &c.Level,
		"FRAMESINK_LOG_FORMAT": &c.Format,
		"FRAMESINK_LOG_OUTPUT": &c.Output,
		"FRAMESINK_LOG_FILE":   &c.File,
	}
	for name, dst := range strs {
		if value := os.Getenv(name); value != "" {
			*dst = value
		}
	}
	c.Level = strings.ToLower(c.Level)

	flags := map[string]*bool{
		"FRAMESINK_LOG_TIMESTAMP": &c.EnableTimestamp,
		"FRAMESINK_LOG_CALLER":    &c.EnableCaller,
		"FRAMESINK_LOG_COLORS":    &c.EnableColors,
	}
	for name, dst := range flags {
		if value := os.Getenv(name); value != "" {
			*dst = strings.EqualFold(value, "true")
		}
	}
}

// 当前打开的日志文件，重新配置时关闭
var (
	logFileMutex sync.Mutex
	logFile      *os.File
)

// SetupLogger 根据配置设置全局 logrus，可重复调用
func SetupLogger(config *LoggingConfig) error {
	if config == nil {
		config = DefaultLoggingConfig()
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	level, _ := logrus.ParseLevel(config.Level)

	output, file, err := openLogOutput(config)
	if err != nil {
		return err
	}

	logFileMutex.Lock()
	defer logFileMutex.Unlock()

	logrus.SetLevel(level)
	logrus.SetFormatter(newFormatter(config))
	logrus.SetReportCaller(config.EnableCaller)
	logrus.SetOutput(output)

	// 新输出生效后才关闭旧的日志文件
	if logFile != nil && logFile != file {
		_ = logFile.Close()
	}
	logFile = file
	return nil
}

// openLogOutput 返回输出目标，输出到文件时同时返回该文件
func openLogOutput(config *LoggingConfig) (io.Writer, *os.File, error) {
	switch config.Output {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", config.File, err)
		}
		return f, f, nil
	default:
		return os.Stdout, nil, nil
	}
}

func newFormatter(config *LoggingConfig) logrus.Formatter {
	if config.Format == "json" {
		return &logrus.JSONFormatter{TimestampFormat: logTimestampFormat}
	}
	return &logrus.TextFormatter{
		TimestampFormat: logTimestampFormat,
		FullTimestamp:   config.EnableTimestamp,
		ForceColors:     config.EnableColors,
	}
}

// GetLoggerWithPrefix 返回带 component 字段的 logger
func GetLoggerWithPrefix(prefix string) *logrus.Entry {
	return logrus.WithField("component", prefix)
}
