// Package observability configures the process-wide logging pipeline for the
// authflow binary.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies this binary's logs in telemetry backends.
const instrumentationName = "github.com/loopbacklabs/authflow"

// Instrument installs the default slog handler for the given level and
// format. Formats "text" and "json" log to stderr; "otel" exports structured
// logs through an OpenTelemetry pipeline (see newLogExporter for transport
// selection). The returned shutdown function flushes buffered telemetry and
// must be called before exit.
func Instrument(ctx context.Context, level slog.Level, logFormat string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(logFormat) {
	case "text":
		slog.SetDefault(slog.New(withTraceAttrs(slog.NewTextHandler(os.Stderr, opts))))
		return noop, nil

	case "json":
		slog.SetDefault(slog.New(withTraceAttrs(slog.NewJSONHandler(os.Stderr, opts))))
		return noop, nil

	case "otel":
		provider, err := newLoggerProvider(ctx, level)
		if err != nil {
			return nil, fmt.Errorf("setting up log export: %w", err)
		}
		global.SetLoggerProvider(provider)
		slog.SetDefault(otelslog.NewLogger(instrumentationName, otelslog.WithLoggerProvider(provider)))
		return provider.Shutdown, nil

	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: text, json, otel)", logFormat)
	}
}

// newLoggerProvider builds the export pipeline: exporter → batch processor →
// severity filter, so records below the configured level never leave the
// process.
func newLoggerProvider(ctx context.Context, level slog.Level) (*sdklog.LoggerProvider, error) {
	exporter, err := newLogExporter(ctx)
	if err != nil {
		return nil, err
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severityFor(level))

	return sdklog.NewLoggerProvider(sdklog.WithProcessor(processor)), nil
}

// newLogExporter selects the exporter from standard OTel environment
// variables: OTEL_LOGS_EXPORTER=console writes to stdout, otherwise OTLP
// over the transport named by OTEL_EXPORTER_OTLP_PROTOCOL (http/protobuf by
// default). Endpoint, headers and TLS come from the usual OTEL_EXPORTER_*
// variables handled by the exporters themselves.
func newLogExporter(ctx context.Context) (sdklog.Exporter, error) {
	if os.Getenv("OTEL_LOGS_EXPORTER") == "console" {
		return stdoutlog.New()
	}

	switch protocol := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"); protocol {
	case "grpc":
		return otlploggrpc.New(ctx)
	case "", "http/protobuf":
		return otlploghttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q (expected: grpc, http/protobuf)", protocol)
	}
}

func severityFor(level slog.Level) minsev.Severity {
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
