package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// zap has no trace or critical level; trace sits one below debug and
// critical maps to DPanic, which only panics in development loggers.
const traceLevel = zapcore.DebugLevel - 1

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case TRACE:
		return traceLevel
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case CRITICAL:
		return zapcore.DPanicLevel
	default:
		return zapcore.InfoLevel
	}
}

func levelFromZap(l zapcore.Level) LogLevel {
	switch {
	case l <= traceLevel:
		return TRACE
	case l == zapcore.DebugLevel:
		return DEBUG
	case l == zapcore.InfoLevel:
		return INFO
	case l == zapcore.WarnLevel:
		return WARN
	case l == zapcore.ErrorLevel:
		return ERROR
	default:
		return CRITICAL
	}
}

// ParseLevel maps a flag value to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "critical":
		return CRITICAL
	default:
		return INFO
	}
}

// Logger is a leveled printf-style logger on top of zap. Lines look like
// "<RFC3339Nano> [LEVEL] message".
type Logger struct {
	mu    sync.Mutex
	level zap.AtomicLevel
	z     *zap.Logger
	file  *os.File
}

func NewFileLogger(filePath string, minLevel LogLevel, alsoStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	sinks := []zapcore.WriteSyncer{f}
	if alsoStdout {
		sinks = append(sinks, zapcore.Lock(os.Stdout))
	}
	l := newLogger(zapcore.NewMultiWriteSyncer(sinks...), minLevel)
	l.file = f
	return l, nil
}

// NewLogger writes to w, which is typically os.Stderr or a test buffer.
func NewLogger(w io.Writer, minLevel LogLevel) *Logger {
	return newLogger(zapcore.Lock(zapcore.AddSync(w)), minLevel)
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return &Logger{level: zap.NewAtomicLevelAt(zapcore.FatalLevel), z: zap.NewNop()}
}

func newLogger(ws zapcore.WriteSyncer, minLevel LogLevel) *Logger {
	level := zap.NewAtomicLevelAt(minLevel.zapLevel())
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		EncodeTime:       zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:      encodeLevel,
		ConsoleSeparator: " ",
	})
	return &Logger{
		level: level,
		z:     zap.New(zapcore.NewCore(enc, ws, level)),
	}
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + levelFromZap(l).String() + "]")
}

// Zap exposes the underlying logger for structured fields.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.z.Sync()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) SetMinLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

func (l *Logger) Enabled(level LogLevel) bool {
	return l.level.Enabled(level.zapLevel())
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	zl := level.zapLevel()
	if !l.level.Enabled(zl) {
		return
	}
	if ce := l.z.Check(zl, fmt.Sprintf(msg, args...)); ce != nil {
		ce.Write()
	}
}

func (l *Logger) Trace(msg string, args ...any)    { l.log(TRACE, msg, args...) }
func (l *Logger) Debug(msg string, args ...any)    { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)     { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)     { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any)    { l.log(ERROR, msg, args...) }
func (l *Logger) Critical(msg string, args ...any) { l.log(CRITICAL, msg, args...) }
