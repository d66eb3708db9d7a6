package observability

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type field struct {
	key string
	val interface{}
}

func (f field) Key() string        { return f.key }
func (f field) Value() interface{} { return f.val }

func String(key, value string) Field          { return field{key, value} }
func Int(key string, value int) Field         { return field{key, value} }
func Int64(key string, value int64) Field     { return field{key, value} }
func Float64(key string, value float64) Field { return field{key, value} }
func Bool(key string, value bool) Field       { return field{key, value} }
func Error(key string, err error) Field       { return field{key, err} }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	}
	return "ERROR"
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// stdLogger writes "LEVEL msg key=value ..." lines through the log package.
type stdLogger struct {
	mu     *sync.Mutex
	out    *log.Logger
	level  Level
	fields []Field
}

func NewStdLogger(w io.Writer, level Level) Logger {
	return &stdLogger{mu: &sync.Mutex{}, out: log.New(w, "", log.LstdFlags), level: level}
}

func (l *stdLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *stdLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *stdLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *stdLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *stdLogger) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &stdLogger{mu: l.mu, out: l.out, level: l.level, fields: merged}
}

func (l *stdLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	var b strings.Builder
	b.WriteString(level.String())
	b.WriteByte(' ')
	b.WriteString(msg)
	for _, f := range append(append([]Field(nil), l.fields...), fields...) {
		b.WriteByte(' ')
		b.WriteString(f.Key())
		b.WriteByte('=')
		writeValue(&b, f.Value())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Println(b.String())
}

func writeValue(b *strings.Builder, v interface{}) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case error:
		if t == nil {
			s = "<nil>"
		} else {
			s = t.Error()
		}
	default:
		s = fmt.Sprint(t)
	}
	if strings.ContainsAny(s, " \t\"=") || s == "" {
		fmt.Fprintf(b, "%q", s)
		return
	}
	b.WriteString(s)
}

// Tracer provides tracing hooks around pipeline stages.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a tracing span.
type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// Span names emitted by the patch pipeline.
const (
	SpanParse  = "bookingpdf.parse"
	SpanFonts  = "bookingpdf.fonts.replace"
	SpanSubset = "bookingpdf.fonts.subset"
	SpanEdit   = "bookingpdf.content.edit"
	SpanWrite  = "bookingpdf.write"
)
