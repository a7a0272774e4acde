// Package logger wraps sirupsen/logrus behind the printf-style
// Info/Warn/Error/Debug helpers (and their field-carrying InfoX/WarnX/
// ErrorX/DebugX variants) used throughout the engine and CLI.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	std.SetOutput(os.Stderr)
	std.SetLevel(logrus.InfoLevel)
}

var logFile *os.File

// InitLog points the logger at path in addition to stderr, creating
// parent directories as needed. Passing an empty path leaves the
// logger writing to stderr only.
func InitLog(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	std.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// FlushLog closes the log file opened by InitLog, if any.
func FlushLog() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// SetLevel adjusts the minimum logged level, parsing logrus level names
// ("debug", "info", "warn", "error").
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	std.SetLevel(lvl)
}

func Info(format string, args ...interface{})  { std.Infof(format, args...) }
func Warn(format string, args ...interface{})  { std.Warnf(format, args...) }
func Error(format string, args ...interface{}) { std.Errorf(format, args...) }
func Debug(format string, args ...interface{}) { std.Debugf(format, args...) }

// InfoX, WarnX, ErrorX and DebugX log msg with a "module" field plus
// whatever alternating key/value pairs are passed in kv.
func InfoX(module, msg string, kv ...interface{})  { withFields(module, kv).Info(msg) }
func WarnX(module, msg string, kv ...interface{})  { withFields(module, kv).Warn(msg) }
func ErrorX(module, msg string, kv ...interface{}) { withFields(module, kv).Error(msg) }
func DebugX(module, msg string, kv ...interface{}) { withFields(module, kv).Debug(msg) }

func withFields(module string, kv []interface{}) *logrus.Entry {
	fields := logrus.Fields{"module": module}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return std.WithFields(fields)
}
