package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production ready structured logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

// WithOperation enriches the logger with operation and cycle identifiers.
func WithOperation(logger *zap.Logger, operation, cycleID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if cycleID != "" {
		fields = append(fields, zap.String("cycle_id", cycleID))
	}
	return logger.With(fields...)
}
