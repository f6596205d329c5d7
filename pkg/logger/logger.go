// Package logger provides component-tagged structured logging for the router.
//
// Every call names the component it comes from ("router", "ipc", "discord", ...)
// and optionally a field map:
//
//	logger.InfoCF("router", "Listener registered", map[string]interface{}{
//		"listener_id": id,
//	})
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the zap levels the router uses.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// Init configures the process-wide logger. Format is "json" or "console".
func Init(level Level, format string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(string(level)))); err != nil {
		return fmt.Errorf("logger: invalid level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch format {
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json", "":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return fmt.Errorf("logger: unknown format %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(lvl))
	Set(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)))
	return nil
}

// Set replaces the underlying zap logger. Tests use it with zaptest/observer.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func log(lvl zapcore.Level, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	l := base
	mu.RUnlock()

	zf := make([]zap.Field, 0, len(fields)+1)
	zf = append(zf, zap.String("component", component))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			zf = append(zf, zap.NamedError(k, err))
			continue
		}
		zf = append(zf, zap.Any(k, v))
	}

	if ce := l.Check(lvl, msg); ce != nil {
		ce.Write(zf...)
	}
}

func DebugC(component, msg string) { log(zapcore.DebugLevel, component, msg, nil) }
func InfoC(component, msg string)  { log(zapcore.InfoLevel, component, msg, nil) }
func WarnC(component, msg string)  { log(zapcore.WarnLevel, component, msg, nil) }
func ErrorC(component, msg string) { log(zapcore.ErrorLevel, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	log(zapcore.DebugLevel, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	log(zapcore.InfoLevel, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	log(zapcore.WarnLevel, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	log(zapcore.ErrorLevel, component, msg, fields)
}
