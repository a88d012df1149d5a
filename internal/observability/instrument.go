package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies this service's logs in OpenTelemetry backends.
const instrumentationName = "github.com/droid2api/droidproxy"

// Log exporters understood by Instrument.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Options configures the logging pipeline.
type Options struct {
	Level  slog.Level
	Format string
	// Exporter additionally ships logs through OpenTelemetry. Empty means none.
	// OTLP exporters read the standard OTEL_EXPORTER_OTLP_* variables.
	Exporter string
	// Output receives human-readable logs; nil means stdout.
	Output io.Writer
}

// Instrument installs the default slog logger and the W3C trace-context
// propagator. The returned function flushes and stops log export.
func Instrument(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handler, err := newStdoutHandler(out, opts.Level, opts.Format)
	if err != nil {
		return nil, err
	}

	shutdown = func(context.Context) error { return nil }

	exporter, err := newLogExporter(ctx, opts.Exporter)
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		provider := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), toSeverity(opts.Level))),
		)
		global.SetLoggerProvider(provider)

		handler = slogmulti.Fanout(handler, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)))
		shutdown = provider.Shutdown
	}

	slog.SetDefault(slog.New(newContextHandler(handler)))

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return shutdown, nil
}

// newStdoutHandler creates a handler for human-readable logs.
func newStdoutHandler(w io.Writer, level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}

	return handler, nil
}

// newLogExporter returns nil for the "none" exporter.
func newLogExporter(ctx context.Context, name string) (sdklog.Exporter, error) {
	switch strings.ToLower(name) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		return stdoutlog.New()
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		return otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter %q (expected: none, stdout, otlp-http, otlp-grpc)", name)
	}
}

// toSeverity maps a slog level to the export threshold.
func toSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
