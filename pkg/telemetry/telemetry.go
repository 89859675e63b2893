// pkg/telemetry/telemetry.go
package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
)

// Init configures OpenTelemetry; call this early in main().
// Spans are written as JSONL next to the logs when the telemetry switch file
// exists, and discarded otherwise.
func Init(service string) error {
	if !IsEnabled() {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		tracer = tp.Tracer(service)
		return nil
	}

	dir := shared.HwcertLogDir
	if err := os.MkdirAll(dir, shared.DirPermStandard); err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".hwcert", "telemetry")
		if err := os.MkdirAll(dir, shared.DirPermStandard); err != nil {
			return cerr.Wrap(err, "failed to create telemetry directory")
		}
	}

	file, err := os.OpenFile(filepath.Join(dir, "telemetry.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, shared.FilePermStandard)
	if err != nil {
		return cerr.Wrap(err, "failed to open telemetry file")
	}

	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(file),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		_ = file.Close()
		return cerr.Wrap(err, "failed to create file exporter")
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(
			sdkresource.NewWithAttributes(
				semconv.SchemaURL,
				attribute.String("service.name", service),
				attribute.String("host.name", hostname()),
				attribute.String("user_id", AnonTelemetryID()),
			),
		),
	)

	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(service)
	return nil
}

// Shutdown flushes pending spans. Safe to call when telemetry is disabled.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// Start a telemetry span with optional attributes.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	t := tracer
	if t == nil {
		t = otel.Tracer(shared.HwcertID)
	}
	return t.Start(ctx, name, trace.WithAttributes(attrs...))
}

// TruncateArgs joins command arguments for use as a span attribute.
func TruncateArgs(args []string) string {
	full := strings.Join(args, " ")
	if len(full) > 256 {
		return full[:256] + "..."
	}
	return full
}

func IsEnabled() bool {
	_, err := os.Stat(filepath.Join(os.Getenv("HOME"), ".hwcert", "telemetry_on"))
	return err == nil
}

func AnonTelemetryID() string {
	path := filepath.Join(os.Getenv("HOME"), ".hwcert", "telemetry_id")

	if data, err := os.ReadFile(path); err == nil {
		return strings.TrimSpace(string(data))
	}

	id := "anon-" + uuid.New().String()
	_ = os.MkdirAll(filepath.Dir(path), shared.FilePermOwnerRWX)
	_ = os.WriteFile(path, []byte(id), shared.FilePermOwnerReadWrite)

	return id
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
