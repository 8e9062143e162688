package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecrets(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("connecting", "uri", "bolt://localhost:7687", "password", "hunter2", "llm_api_key", "sk-123")

	entries := logs.All()
	assert.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "bolt://localhost:7687", ctx["uri"])
	assert.Equal(t, "[REDACTED]", ctx["password"])
	assert.Equal(t, "[REDACTED]", ctx["llm_api_key"])
}

func TestWithKeepsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := (&Logger{SugaredLogger: zap.New(core).Sugar()}).With("url", "https://x")

	l.Warn("retrying", "attempt", 2)

	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "https://x", ctx["url"])
	assert.EqualValues(t, 2, ctx["attempt"])
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Error("ignored", "k", "v") })
}
