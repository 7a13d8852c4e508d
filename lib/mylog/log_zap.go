package mylog

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MarcGrol/flowershop/lib/mycontext"
)

type zapLogger struct {
	componentName string
	logger        *zap.Logger
}

func newZapLogger(componentName string, core zapcore.Core) Logger {
	return zapLogger{
		componentName: componentName,
		logger:        zap.New(core),
	}
}

func (l zapLogger) Log(ctx context.Context, traceLabel string, severity Severity, format string, a ...any) {
	fields := []zap.Field{zap.String("component", l.componentName)}
	if traceLabel != "" {
		fields = append(fields, zap.Dict("labels", zap.String("aggregate", traceLabel)))
	}
	if ctx != nil {
		if trace := mycontext.TraceFromContext(ctx); trace != "" {
			fields = append(fields, zap.String("logging.googleapis.com/trace", trace))
		}
	}

	msg := fmt.Sprintf(format, a...)

	switch severity {
	case SeverityDebug:
		l.logger.Debug(msg, fields...)
	case SeverityWarn:
		l.logger.Warn(msg, fields...)
	case SeverityError:
		l.logger.Error(msg, fields...)
	default:
		l.logger.Info(msg, fields...)
	}
}
