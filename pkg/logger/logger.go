package logger

import (
	"fmt"
	"log"
	"sync"

	"go.uber.org/zap"
)

var (
	mu          sync.RWMutex
	base        = zap.NewNop()
	serviceName = "stocktrigger"
)

// Init builds the process-wide logger. Development mode writes console output,
// anything else writes JSON.
func Init(env string) error {
	var (
		l   *zap.Logger
		err error
	)
	if env == "development" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	Set(l)
	return nil
}

// Set replaces the underlying zap logger. Tests use it with zaptest or zap.NewNop.
func Set(l *zap.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() {
	_ = current().Sync()
}

// Std returns a standard library logger writing at info level, for libraries
// that only accept *log.Logger.
func Std() *log.Logger {
	return zap.NewStdLog(current())
}

func Debug(format string, args ...interface{}) {
	current().Debug(fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	current().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	current().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	current().Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	current().Fatal(fmt.Sprintf(format, args...))
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With(zap.String("service", serviceName))
}
