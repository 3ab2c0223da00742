package kglog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"codenerd/internal/kglog"
)

func TestNew_BuildsLoggerAtRequestedLevel(t *testing.T) {
	log, err := kglog.New(kglog.Options{Debug: true})
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(-1)) // zapcore.DebugLevel
}

func TestWith_NamesSubLoggerAndTagsKG(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)
	sub := kglog.With(log, "default", kglog.ComponentEngine)
	assert.NotNil(t, sub)

	sub.Info("hello")
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "engine", entries[0].LoggerName)
	assert.Equal(t, "default", entries[0].ContextMap()["kg"])
}

func TestWith_NilLoggerIsSafe(t *testing.T) {
	sub := kglog.With(nil, "default", kglog.ComponentPersist)
	assert.NotNil(t, sub)
}

func TestTimer_StopReturnsNonNegativeDuration(t *testing.T) {
	timer := kglog.StartTimer(kglog.Nop(), "test-op")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()
	assert.Greater(t, elapsed, time.Duration(0))
}

func TestTimer_StopWithThreshold(t *testing.T) {
	timer := kglog.StartTimer(kglog.Nop(), "test-op")
	elapsed := timer.StopWithThreshold(time.Hour)
	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
}
