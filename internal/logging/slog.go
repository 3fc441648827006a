package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// Options configures the process logger.
type Options struct {
	// File, when set, receives a copy of every record with size-based rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Level      slog.Level
}

// New builds the JSON process logger: stdout, plus a rotated file when
// opts.File is set. The returned closer flushes the file sink.
func New(opts Options) (*SlogLogger, io.Closer) {
	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)

	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		w = io.MultiWriter(os.Stdout, lj)
		closer = lj
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	return NewSlogLogger(slog.New(h)), closer
}

// Nop returns a logger that discards everything.
func Nop() *SlogLogger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, withCorrelation(ctx, args)...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, withCorrelation(ctx, args)...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, withCorrelation(ctx, args)...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, withCorrelation(ctx, args)...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}

func withCorrelation(ctx context.Context, args []any) []any {
	if id := CorrelationID(ctx); id != "" {
		return append(args, "correlation_id", id)
	}
	return args
}
