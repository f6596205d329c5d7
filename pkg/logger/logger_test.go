package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestComponentFieldsAreAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(zap.NewNop()) })

	WarnCF("router", "Reference fetch failed", map[string]interface{}{
		"listener_id": "node-1",
		"error":       errors.New("unknown message"),
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Reference fetch failed", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "router", ctx["component"])
	assert.Equal(t, "node-1", ctx["listener_id"])
	assert.Equal(t, "unknown message", ctx["error"])
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init("loud", "json")
	assert.Error(t, err)
}

func TestInitRejectsUnknownFormat(t *testing.T) {
	err := Init(LevelInfo, "xml")
	assert.Error(t, err)
}
