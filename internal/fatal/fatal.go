// Package fatal terminates the process on unrecoverable host conditions:
// exhausted thread tables and allocation failures that leave no way to
// report an error.
package fatal

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ExitCode is the process status used by Exit.
const ExitCode = 1

var (
	mu     sync.Mutex
	exit   = os.Exit
	logger *zap.Logger
	once   sync.Once
)

func stderrLogger() *zap.Logger {
	once.Do(func() {
		enc := zap.NewProductionEncoderConfig()
		enc.TimeKey = ""
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), zap.ErrorLevel)
		logger = zap.New(core)
	})
	return logger
}

// Exit writes one diagnostic line to stderr and terminates the process.
func Exit(msg string, fields ...zap.Field) {
	l := stderrLogger()
	l.Error(msg, fields...)
	_ = l.Sync()

	mu.Lock()
	fn := exit
	mu.Unlock()
	fn(ExitCode)
}

// SetExit replaces process termination, for tests. It returns a function
// restoring the previous behavior.
func SetExit(fn func(code int)) (restore func()) {
	mu.Lock()
	prev := exit
	exit = fn
	mu.Unlock()
	return func() {
		mu.Lock()
		exit = prev
		mu.Unlock()
	}
}
