package pionrtc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

const levelTrace = slog.LevelDebug - 4

// LoggerFactory routes pion's internal logging into slog.
type LoggerFactory struct {
	Logger *slog.Logger
}

func (f LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	l := f.Logger
	if l == nil {
		l = slog.Default()
	}
	return leveled{l: l.With("pion", scope)}
}

type leveled struct {
	l *slog.Logger
}

func (x leveled) log(level slog.Level, msg string) {
	x.l.Log(context.Background(), level, msg)
}

func (x leveled) Trace(msg string) { x.log(levelTrace, msg) }
func (x leveled) Tracef(format string, args ...interface{}) {
	x.log(levelTrace, fmt.Sprintf(format, args...))
}
func (x leveled) Debug(msg string) { x.log(slog.LevelDebug, msg) }
func (x leveled) Debugf(format string, args ...interface{}) {
	x.log(slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (x leveled) Info(msg string) { x.log(slog.LevelInfo, msg) }
func (x leveled) Infof(format string, args ...interface{}) {
	x.log(slog.LevelInfo, fmt.Sprintf(format, args...))
}
func (x leveled) Warn(msg string) { x.log(slog.LevelWarn, msg) }
func (x leveled) Warnf(format string, args ...interface{}) {
	x.log(slog.LevelWarn, fmt.Sprintf(format, args...))
}
func (x leveled) Error(msg string) { x.log(slog.LevelError, msg) }
func (x leveled) Errorf(format string, args ...interface{}) {
	x.log(slog.LevelError, fmt.Sprintf(format, args...))
}
