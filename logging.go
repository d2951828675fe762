package tardy

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Field is a single structured logging key/value pair, kept deliberately
// narrow: the runtime only ever logs strings, errors, and task/job
// indices.
type Field struct {
	Key string
	Val any
}

// Str builds a string Field.
func Str(key, val string) Field { return Field{Key: key, Val: val} }

// Err builds an error Field.
func Err(err error) Field { return Field{Key: "err", Val: err} }

// Int builds an integer Field.
func Int(key string, val int) Field { return Field{Key: key, Val: val} }

// Logger is the narrow structured-logging interface the runtime depends
// on. Implementations are expected to wrap a real logging framework; see
// NewDefaultLogger for the stumpy/logiface-backed default.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// logifaceLogger adapts a *logiface.Logger[*stumpy.Event] to Logger.
type logifaceLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

// NewDefaultLogger returns a Logger backed by stumpy's compact JSON event
// encoding, writing to w. This is the same logiface+stumpy pairing the
// teacher's monorepo composes for its own CLI/example logging.
func NewDefaultLogger(w io.Writer) Logger {
	return &logifaceLogger{
		l: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
			stumpy.L.WithLevel(logiface.LevelDebug),
		),
	}
}

func (g *logifaceLogger) log(b *logiface.Builder[*stumpy.Event], msg string, fields []Field) {
	for _, f := range fields {
		switch v := f.Val.(type) {
		case string:
			b = b.Str(f.Key, v)
		case error:
			b = b.Err(v)
		case int:
			b = b.Int(f.Key, v)
		default:
			b = b.Any(f.Key, v)
		}
	}
	b.Log(msg)
}

func (g *logifaceLogger) Debug(msg string, fields ...Field) { g.log(g.l.Debug(), msg, fields) }
func (g *logifaceLogger) Info(msg string, fields ...Field)  { g.log(g.l.Info(), msg, fields) }
func (g *logifaceLogger) Warn(msg string, fields ...Field)  { g.log(g.l.Warning(), msg, fields) }
func (g *logifaceLogger) Error(msg string, fields ...Field) { g.log(g.l.Err(), msg, fields) }

// noopLogger discards everything. It is the Runtime's zero-value default,
// so constructing a Runtime without WithLogger never risks a nil Logger.
type noopLogger struct{}

// NewNoopLogger returns a Logger that discards all messages.
func NewNoopLogger() Logger { return noopLogger{} }

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Warn(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}
