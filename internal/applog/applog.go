// Package applog builds the zap loggers used across the engine, following
// the per-subsystem structured-logging convention the teacher services use
// (a base logger plus static fields for the owning account/component).
package applog

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.Mutex
	base *zap.Logger
)

// Init configures the process-wide base logger from a level string
// (MAIL_RULEZ_LOG_LEVEL: debug, info, warn, error). Safe to call once at
// startup; subsequent calls replace the base logger used by New/Account.
func Init(level string) (*zap.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	base = logger
	return logger, nil
}

// Base returns the process-wide logger, building a sane default if Init
// was never called (useful in tests).
func Base() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		base, _ = zap.NewDevelopment()
	}
	return base
}

// New returns a named component logger, e.g. applog.New("retention.manager").
func New(component string) *zap.Logger {
	return Base().Named(component).With(zap.String("component", component))
}

// Account returns a per-account logger with a static account_email field,
// the Go equivalent of logging_config.get_logger(..., account_email=...).
func Account(component, email string) *zap.Logger {
	return Base().Named(component).With(
		zap.String("component", component),
		zap.String("account_email", email),
	)
}
