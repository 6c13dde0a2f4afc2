package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu      sync.RWMutex
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugared *zap.SugaredLogger
	once    sync.Once
)

// initLogger builds the global logger: console encoding to stderr with
// ISO8601 timestamps, level controlled by SetLevel.
func initLogger() {
	once.Do(func() {
		cfg := newConfig()
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		mu.Lock()
		sugared = l.Sugar()
		mu.Unlock()
	})
}

// ParseLevel maps a config string (debug|info|warn|error, any case) to a
// Level. Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		level.SetLevel(zapcore.DebugLevel)
	case LevelWarn:
		level.SetLevel(zapcore.WarnLevel)
	case LevelError:
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

// Enabled reports whether messages at l are currently emitted.
func Enabled(l Level) bool {
	switch l {
	case LevelDebug:
		return level.Enabled(zapcore.DebugLevel)
	case LevelWarn:
		return level.Enabled(zapcore.WarnLevel)
	case LevelError:
		return level.Enabled(zapcore.ErrorLevel)
	default:
		return level.Enabled(zapcore.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	logger().Debugw(msg, pairs(kv)...)
}

func Info(msg string, kv ...any) {
	logger().Infow(msg, pairs(kv)...)
}

func Warn(msg string, kv ...any) {
	logger().Warnw(msg, pairs(kv)...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, pairs(kv)...)
	logger().Errorw(msg, extended...)
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	_ = logger().Sync()
}

func logger() *zap.SugaredLogger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return sugared
}

// pairs drops a trailing key without value and any non-string key so a
// malformed call site never makes zap log a DPANIC.
func pairs(kv []any) []any {
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		if _, ok := kv[i].(string); !ok {
			continue
		}
		out = append(out, kv[i], kv[i+1])
	}
	return out
}

// newConfig writes one line per entry; stack traces are never attached.
func newConfig() zap.Config {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	return zap.Config{
		Level:             level,
		Encoding:          "console",
		EncoderConfig:     encCfg,
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}
