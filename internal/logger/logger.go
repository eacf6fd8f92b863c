// Package logger builds the structured zap logger shared by the server,
// the services and the queue consumers.
package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option customizes New.
type Option func(*options)

type options struct {
	writers []io.Writer
}

// WithWriters replaces the default stdout sink. Every writer receives every
// entry.
func WithWriters(w ...io.Writer) Option {
	return func(o *options) {
		o.writers = w
	}
}

// New returns a JSON logger at the given level ("debug", "info", "warn",
// "error"). Unknown levels fall back to info.
func New(level string, opts ...Option) *zap.Logger {
	o := options{writers: []io.Writer{os.Stdout}}
	for _, opt := range opts {
		opt(&o)
	}

	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		MessageKey:    "message",
		LevelKey:      "level",
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		TimeKey:       "time",
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		CallerKey:     "caller",
		EncodeCaller:  zapcore.ShortCallerEncoder,
		StacktraceKey: "stacktrace",
	})

	lvl := parseLevel(level)
	cores := make([]zapcore.Core, 0, len(o.writers))
	for _, w := range o.writers {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(w), lvl))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
