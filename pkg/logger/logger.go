// Package logger holds the process-wide zerolog logger. Records written through Ctx carry the
// trace and span ids of the active OpenTelemetry span so log lines join up with traces.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init replaces the base logger. Call once from main before anything logs.
func Init(w io.Writer, level string, service string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	base = zerolog.New(w).Level(lvl).With().Timestamp().Str("service", service).Logger()
}

// L returns the base logger.
func L() *zerolog.Logger {
	return &base
}

// Ctx returns the base logger decorated with the trace ids found in ctx, if any.
func Ctx(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return &base
	}
	l := base.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &l
}
