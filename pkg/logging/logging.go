// Package logging provides the process-wide structured logger used by every
// other package in the launcher.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base   *zap.Logger
	sugar  *zap.SugaredLogger
)

func init() {
	base = build(zapcore.Lock(zapcore.AddSync(newConsoleSink())))
	sugar = base.Sugar()
}

// S returns the package-wide sugared logger.
func S() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return sugar
}

// SetLevel adjusts the minimum level logged by the package-wide logger.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// NewLogger builds a logger that writes to the package-wide console sink
// *and* to the supplied extra sink, e.g. an HTTP response or a per-instance
// log file. Used to attach a request-scoped logger to a single call.
func NewLogger(extra zapcore.WriteSyncer) *zap.Logger {
	core := zapcore.NewTee(
		zapcore.NewCore(encoder(), zapcore.Lock(zapcore.AddSync(newConsoleSink())), level),
		zapcore.NewCore(encoder(), extra, level),
	)
	return zap.New(core)
}

func build(sink zapcore.WriteSyncer) *zap.Logger {
	core := zapcore.NewCore(encoder(), sink, level)
	return zap.New(core)
}

func newConsoleSink() *os.File {
	return os.Stdout
}

func encoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}
