// Package log configures the process-wide slog logger and the gorm log level.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
	gormlogger "gorm.io/gorm/logger"
)

var (
	mu           sync.Mutex
	gormLogLevel = gormlogger.Warn
	fileSink     io.Writer
)

// SetupGlobalLogger installs a text handler on stderr as the default slog
// logger. If EnableFileLogging was called first, output goes to both sinks.
func SetupGlobalLogger(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = os.Stderr
	if fileSink != nil {
		w = io.MultiWriter(os.Stderr, fileSink)
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// EnableFileLogging adds a size-rotated file sink. Call before
// SetupGlobalLogger.
func EnableFileLogging(path string, maxSizeMB, maxBackups int) {
	if path == "" {
		return
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}
	mu.Lock()
	defer mu.Unlock()
	fileSink = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
}

// SetGormLogLevel sets the log level used when opening the database.
func SetGormLogLevel(level gormlogger.LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	gormLogLevel = level
}

// GormLogLevel returns the configured gorm log level.
func GormLogLevel() gormlogger.LogLevel {
	mu.Lock()
	defer mu.Unlock()
	return gormLogLevel
}
