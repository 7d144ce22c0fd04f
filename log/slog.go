// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"context"
	"io"
	"log/slog"

	"github.com/luxfi/log"
	"go.uber.org/zap"
)

// SlogLogger adapts a standard library slog handler to the log.Logger
// interface the rest of this repo threads around, so the CLI can turn
// real logging on without every package caring which backend is behind
// the facade.
type SlogLogger struct {
	l   *slog.Logger
	lvl *slog.LevelVar
	out io.Writer
}

// NewSlogLogger returns a leveled text logger writing to w.
func NewSlogLogger(w io.Writer, level slog.Level) log.Logger {
	lvl := new(slog.LevelVar)
	lvl.Set(level)
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	return &SlogLogger{l: slog.New(h), lvl: lvl, out: w}
}

func (s *SlogLogger) With(ctx ...interface{}) log.Logger {
	return &SlogLogger{l: s.l.With(ctx...), lvl: s.lvl, out: s.out}
}

func (s *SlogLogger) New(ctx ...interface{}) log.Logger { return s.With(ctx...) }

func (s *SlogLogger) Log(level slog.Level, msg string, ctx ...interface{}) {
	s.l.Log(context.Background(), level, msg, ctx...)
}

func (s *SlogLogger) Trace(msg string, ctx ...interface{}) {
	s.Log(slog.LevelDebug-4, msg, ctx...)
}

func (s *SlogLogger) Debug(msg string, ctx ...interface{}) { s.l.Debug(msg, ctx...) }
func (s *SlogLogger) Info(msg string, ctx ...interface{})  { s.l.Info(msg, ctx...) }
func (s *SlogLogger) Warn(msg string, ctx ...interface{})  { s.l.Warn(msg, ctx...) }
func (s *SlogLogger) Error(msg string, ctx ...interface{}) { s.l.Error(msg, ctx...) }

func (s *SlogLogger) Crit(msg string, ctx ...interface{}) {
	s.Log(slog.LevelError+4, msg, ctx...)
}

func (s *SlogLogger) WriteLog(level slog.Level, msg string, attrs ...any) {
	s.Log(level, msg, attrs...)
}

func (s *SlogLogger) Enabled(ctx context.Context, level slog.Level) bool {
	return s.l.Enabled(ctx, level)
}

func (s *SlogLogger) Handler() slog.Handler { return s.l.Handler() }

// Node compatibility methods; zap fields are not threaded through the
// slog backend, only the message survives.

func (s *SlogLogger) Fatal(msg string, fields ...zap.Field) { s.Crit(msg) }
func (s *SlogLogger) Verbo(msg string, fields ...zap.Field) { s.Trace(msg) }

func (s *SlogLogger) WithFields(fields ...zap.Field) log.Logger { return s }
func (s *SlogLogger) WithOptions(opts ...zap.Option) log.Logger { return s }

func (s *SlogLogger) SetLevel(level slog.Level) { s.lvl.Set(level) }
func (s *SlogLogger) GetLevel() slog.Level      { return s.lvl.Level() }

func (s *SlogLogger) EnabledLevel(lvl slog.Level) bool {
	return lvl >= s.lvl.Level()
}

func (s *SlogLogger) StopOnPanic() {}

func (s *SlogLogger) RecoverAndPanic(f func()) { f() }

func (s *SlogLogger) RecoverAndExit(f, exit func()) { f() }

func (s *SlogLogger) Stop() {}

func (s *SlogLogger) Write(p []byte) (n int, err error) {
	return s.out.Write(p)
}
