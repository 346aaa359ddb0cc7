// Package logging builds the process logger and a warn-once filter.
package logging

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds a logger writing to w at the given level ("debug", "info",
// "warn", "error") in console or JSON form.
func New(w io.Writer, level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch format {
	case FormatConsole, "":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q (want %s or %s)", format, FormatConsole, FormatJSON)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core), nil
}

// WarnOnce emits each warning key at most once until Reset.
// Safe for concurrent use.
type WarnOnce struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewWarnOnce() *WarnOnce {
	return &WarnOnce{seen: make(map[string]struct{})}
}

// Warn logs msg at warn level the first time key is seen.
// It reports whether the message was logged.
func (w *WarnOnce) Warn(logger *zap.Logger, key, msg string, fields ...zap.Field) bool {
	w.mu.Lock()
	if _, ok := w.seen[key]; ok {
		w.mu.Unlock()
		return false
	}
	w.seen[key] = struct{}{}
	w.mu.Unlock()

	logger.Warn(msg, fields...)
	return true
}

// Seen reports whether key has been warned about since the last Reset.
func (w *WarnOnce) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[key]
	return ok
}

// Reset forgets every key.
func (w *WarnOnce) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.seen)
}
