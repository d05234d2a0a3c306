package logging

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// output is the writer, encoder and level shared by a logger and all of its
// With children
type output struct {
	mu    sync.Mutex
	w     io.Writer
	enc   encoder
	level atomic.Int32
	now   func() time.Time
}

// StreamLogger writes encoded entries to an io.Writer
type StreamLogger struct {
	out    *output
	fields []Field
}

func newStreamLogger(w io.Writer, enc encoder, level Level) *StreamLogger {
	out := &output{w: w, enc: enc, now: time.Now}
	out.level.Store(int32(level))
	return &StreamLogger{out: out}
}

// NewJSONLogger writes one JSON object per entry:
//
//	{"time":"2026-01-02T15:04:05.123Z","level":"INFO","msg":"client connected","connection_id":3}
func NewJSONLogger(w io.Writer, level Level) *StreamLogger {
	return newStreamLogger(w, jsonEncoder{}, level)
}

// NewTextLogger writes one key=value line per entry:
//
//	2026-01-02T15:04:05Z INFO client connected connection_id=3 remote=127.0.0.1:51000
func NewTextLogger(w io.Writer, level Level) *StreamLogger {
	return newStreamLogger(w, textEncoder{}, level)
}

// NewLogger returns a text logger when format is "text" and a JSON logger
// otherwise
func NewLogger(format string, w io.Writer, level Level) Logger {
	if strings.EqualFold(format, "text") {
		return NewTextLogger(w, level)
	}
	return NewJSONLogger(w, level)
}

func (l *StreamLogger) log(level Level, msg string, fields []Field) {
	if int32(level) < l.out.level.Load() {
		return
	}
	all := fields
	if len(l.fields) > 0 {
		all = make([]Field, 0, len(l.fields)+len(fields))
		all = append(all, l.fields...)
		all = append(all, fields...)
	}

	var buf bytes.Buffer
	l.out.enc.encode(&buf, l.out.now(), level, msg, all)
	buf.WriteByte('\n')

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.w.Write(buf.Bytes())
}

func (l *StreamLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *StreamLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *StreamLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *StreamLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// With returns a child logger with fields appended to the parent's
func (l *StreamLogger) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &StreamLogger{out: l.out, fields: merged}
}

// SetLevel changes the minimum level of this logger, its parent and all
// children
func (l *StreamLogger) SetLevel(level Level) {
	l.out.level.Store(int32(level))
}

// GetLevel returns the current minimum level
func (l *StreamLogger) GetLevel() Level {
	return Level(l.out.level.Load())
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger
)

// DefaultLogger returns the process wide logger. Unless SetDefaultLogger was
// called it writes to stdout using LOG_FORMAT and LOG_LEVEL.
func DefaultLogger() Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(os.Getenv("LOG_FORMAT"), os.Stdout, ParseLevel(os.Getenv("LOG_LEVEL")))
	}
	return defaultLogger
}

// SetDefaultLogger replaces the process wide logger
func SetDefaultLogger(logger Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// Debug logs to the default logger
func Debug(msg string, fields ...Field) { DefaultLogger().Debug(msg, fields...) }

// Info logs to the default logger
func Info(msg string, fields ...Field) { DefaultLogger().Info(msg, fields...) }

// Warn logs to the default logger
func Warn(msg string, fields ...Field) { DefaultLogger().Warn(msg, fields...) }

// ErrorLog logs to the default logger. It is not called Error because that
// name is the error field constructor.
func ErrorLog(msg string, fields ...Field) { DefaultLogger().Error(msg, fields...) }
