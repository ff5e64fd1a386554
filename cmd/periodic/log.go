package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	F "github.com/sagernet/sing/common/format"
	"github.com/sagernet/sing/common/logger"
)

var _ logger.Logger = (*apexLogger)(nil)

// apexLogger writes sing log calls as structured JSON lines.
type apexLogger struct {
	entry log.Interface
}

func newLogger(writer io.Writer, level string) (*log.Logger, error) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return &log.Logger{
		Handler: json.New(writer),
		Level:   parsed,
	}, nil
}

func newSingLogger(entry log.Interface) logger.Logger {
	return &apexLogger{entry: entry}
}

// apex has no trace level.
func (l *apexLogger) Trace(args ...any) {
	l.entry.Debug(toString(args...))
}

func (l *apexLogger) Debug(args ...any) {
	l.entry.Debug(toString(args...))
}

func (l *apexLogger) Info(args ...any) {
	l.entry.Info(toString(args...))
}

func (l *apexLogger) Warn(args ...any) {
	l.entry.Warn(toString(args...))
}

func (l *apexLogger) Error(args ...any) {
	l.entry.Error(toString(args...))
}

func (l *apexLogger) Fatal(args ...any) {
	l.entry.Fatal(toString(args...))
}

func (l *apexLogger) Panic(args ...any) {
	message := toString(args...)
	l.entry.Error(message)
	panic(message)
}

// toString joins args like F.ToString, which only accepts strings, ints,
// errors and Stringers.
func toString(args ...any) string {
	values := make([]any, len(args))
	for i, arg := range args {
		switch value := arg.(type) {
		case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, error, fmt.Stringer:
			values[i] = value
		case float64:
			values[i] = strconv.FormatFloat(value, 'g', -1, 64)
		case float32:
			values[i] = strconv.FormatFloat(float64(value), 'g', -1, 32)
		default:
			values[i] = fmt.Sprint(value)
		}
	}
	return F.ToString(values...)
}
