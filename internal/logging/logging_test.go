package logging

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", FormatJSON)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("phase finished", zap.Float64("rps", 2))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "phase finished", entry["msg"])
	assert.Equal(t, 2.0, entry["rps"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", FormatConsole)
	require.NoError(t, err)

	logger.Debug("visible")
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "visible")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", FormatJSON)
	assert.Error(t, err)

	_, err = New(&bytes.Buffer{}, "info", "xml")
	assert.ErrorContains(t, err, "unknown log format")
}

func TestWarnOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	w := NewWarnOnce()

	assert.True(t, w.Warn(logger, "input", "input tokens diverge"))
	assert.False(t, w.Warn(logger, "input", "input tokens diverge"))
	assert.True(t, w.Warn(logger, "output", "output tokens diverge"))
	assert.True(t, w.Seen("input"))
	assert.Equal(t, 2, logs.Len())

	w.Reset()
	assert.False(t, w.Seen("input"))
	assert.True(t, w.Warn(logger, "input", "input tokens diverge"))
	assert.Equal(t, 3, logs.Len())
}

func TestWarnOnce_Concurrent(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	w := NewWarnOnce()

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Warn(logger, "same", "once")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, logs.Len())
}
