package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

// Core implements zapcore.Core and records error logs as spans so they show
// up next to the traces of the same service.
type Core struct {
	zapcore.LevelEnabler
	tracer trace.Tracer
	fields []zapcore.Field
}

// NewCore creates a core that forwards entries at ErrorLevel and above.
func NewCore() zapcore.Core {
	return &Core{
		LevelEnabler: zapcore.ErrorLevel,
		tracer:       otel.Tracer("github.com/fibgame/fibs/internal/setup/telemetry"),
	}
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return &clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	_, span := c.tracer.Start(context.Background(), "error."+errorCategory(ent.Caller.Function))
	defer span.End()

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		field.AddTo(enc)
	}

	attrs := make([]attribute.KeyValue, 0, len(enc.Fields)+3)
	attrs = append(attrs,
		attribute.String("log.message", ent.Message),
		attribute.String("log.level", ent.Level.String()),
		attribute.String("log.caller", ent.Caller.String()),
	)
	if ent.LoggerName != "" {
		attrs = append(attrs, attribute.String("log.logger", ent.LoggerName))
	}
	for key, value := range enc.Fields {
		attrs = append(attrs, attribute.String("log.field."+key, fmt.Sprint(value)))
	}

	span.SetAttributes(attrs...)
	span.SetStatus(codes.Error, ent.Message)
	return nil
}

func (c *Core) Sync() error {
	return nil
}

// errorCategory buckets a caller by the package it lives in.
func errorCategory(function string) string {
	for _, pkg := range []string{"database", "redis", "rest", "worker", "scoring", "identity", "setup"} {
		if strings.Contains(function, "/"+pkg) {
			return pkg
		}
	}
	return "application"
}
