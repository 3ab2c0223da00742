// Package kglog builds the zap.Logger instances passed into
// internal/persist and internal/kg, one named sub-logger per subsystem,
// so a single process-wide logger can be filtered and formatted
// consistently across the parser, catalog, optimizer, evaluator, and
// persistence layers.
package kglog

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names the subsystem a logger is scoped to; With turns it
// into the zap logger's name rather than a separate log file per category.
type Component string

const (
	ComponentEngine   Component = "engine"
	ComponentParser   Component = "parser"
	ComponentCatalog  Component = "catalog"
	ComponentOptimize Component = "optimize"
	ComponentEval     Component = "eval"
	ComponentPersist  Component = "persist"
	ComponentExternal Component = "external"
)

// Options configures the root logger. JSON output is meant for
// production/log-aggregation use; the non-JSON console encoder is
// meant for interactive REPL sessions.
type Options struct {
	Debug bool
	JSON  bool
}

// New builds a root *zap.Logger from Options. A nil-safe no-op logger
// is what callers should pass instead of New when logging is disabled
// entirely (see Nop).
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      opts.Debug,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if opts.JSON {
		cfg.Encoding = "json"
		cfg.EncoderConfig = zap.NewProductionEncoderConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return cfg.Build()
}

// Nop returns a logger that discards everything, the default for
// library embedding where the caller hasn't configured logging.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// With returns a sub-logger scoped to one knowledge graph and
// subsystem component: the component becomes the logger's name and the
// knowledge graph is carried as a structured "kg" field on every
// subsequent entry.
func With(log *zap.Logger, kgName string, c Component) *zap.Logger {
	if log == nil {
		log = Nop()
	}
	return log.Named(string(c)).With(zap.String("kg", kgName))
}

// Timer measures and logs the duration of one operation at Debug level,
// or Warn if it exceeds a threshold; grounded on the same
// measure-then-log-on-Stop shape the teacher's performance category
// uses, expressed as zap fields instead of a formatted string.
type Timer struct {
	log   *zap.Logger
	op    string
	start time.Time
}

// StartTimer begins timing op against log.
func StartTimer(log *zap.Logger, op string) *Timer {
	return &Timer{log: log, op: op, start: time.Now()}
}

// Stop logs the elapsed duration at Debug level and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.log.Debug("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs at Warn level if elapsed exceeds threshold,
// Debug otherwise.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	fields := []zap.Field{zap.String("op", t.op), zap.Duration("elapsed", elapsed), zap.Duration("threshold", threshold)}
	if elapsed > threshold {
		t.log.Warn("operation exceeded threshold", fields...)
	} else {
		t.log.Debug("operation completed", fields...)
	}
	return elapsed
}
