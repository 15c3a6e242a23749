package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"render-engine/pkg/config"
)

// Logger logrus封装，支持结构化字段和文件输出
type Logger struct {
	entry *logrus.Logger
	file  *os.File
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// NewLogger 根据配置创建日志器
func NewLogger(cfg *config.Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Log.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger := &Logger{entry: l}

	switch strings.ToLower(cfg.Log.Output) {
	case "file":
		if cfg.Log.Filename != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.Log.Filename), 0o755); err == nil {
				if f, err := os.OpenFile(cfg.Log.Filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
					logger.file = f
					l.SetOutput(io.MultiWriter(os.Stdout, f))
				}
			}
		}
	default:
		l.SetOutput(os.Stdout)
	}

	return logger
}

// SetGlobalLogger 设置全局日志器（启动时调用一次）
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Close 关闭日志文件句柄
func (l *Logger) Close() {
	if l.file != nil {
		_ = l.file.Close()
	}
}

// Infof 格式化info日志
func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warnf 格式化warn日志
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Errorf 格式化error日志
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Debugf 格式化debug日志
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func std() *logrus.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger.entry
	}
	return logrus.StandardLogger()
}

// Debug 带字段的debug日志
func Debug(msg string, fields map[string]interface{}) {
	std().WithFields(logrus.Fields(fields)).Debug(msg)
}

// Info 带字段的info日志
func Info(msg string, fields map[string]interface{}) {
	std().WithFields(logrus.Fields(fields)).Info(msg)
}

// Warn 带字段的warn日志
func Warn(msg string, fields map[string]interface{}) {
	std().WithFields(logrus.Fields(fields)).Warn(msg)
}

// Error 带字段的error日志
func Error(msg string, fields map[string]interface{}) {
	std().WithFields(logrus.Fields(fields)).Error(msg)
}

// Debugf 格式化debug日志
func Debugf(format string, args ...interface{}) {
	std().Debugf(format, args...)
}

// Infof 格式化info日志
func Infof(format string, args ...interface{}) {
	std().Infof(format, args...)
}

// Warnf 格式化warn日志
func Warnf(format string, args ...interface{}) {
	std().Warnf(format, args...)
}

// Errorf 格式化error日志
func Errorf(format string, args ...interface{}) {
	std().Errorf(format, args...)
}

// Fatal 致命错误并退出
func Fatal(msg string) {
	std().Fatal(msg)
}
