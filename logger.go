package auth

import (
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

// ZapLogger adapts a zap logger to the Logger port
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps the given zap logger, falling back to a no-op logger
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{sugar: l.Sugar()}
}

// Named returns a child logger scoped to name
func (z *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{sugar: z.sugar.Named(name)}
}

func (z *ZapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

var _ Logger = (*ZapLogger)(nil)

func wrapInternal(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}

func wrapOperation(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, msg)
}
