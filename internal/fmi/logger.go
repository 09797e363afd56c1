package fmi

import (
	"sync"

	"go.uber.org/zap"
)

// FMUs report through a single process-wide logger callback that only
// carries the instance name, so loggers are looked up by name.
var instanceLoggers sync.Map // map[string]*zap.Logger

func registerInstanceLogger(name string, logger *zap.Logger) {
	instanceLoggers.Store(name, logger)
}

func unregisterInstanceLogger(name string) {
	instanceLoggers.Delete(name)
}

func logMessage(instance string, status Status, category, message string) {
	logger := zap.L()
	if v, ok := instanceLoggers.Load(instance); ok {
		logger = v.(*zap.Logger)
	}
	fields := []zap.Field{
		zap.String("instance", instance),
		zap.String("category", category),
		zap.Stringer("status", status),
	}
	switch status {
	case StatusErr, StatusFatal:
		logger.Warn(message, fields...)
	default:
		logger.Debug(message, fields...)
	}
}
