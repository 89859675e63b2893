// pkg/hwcert_io/context.go

package hwcert_io

import (
	"context"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_err"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RuntimeContext carries everything a command needs for the lifetime of one
// invocation: its context, logger and tracing span.
type RuntimeContext struct {
	Ctx        context.Context
	Log        *zap.Logger
	Timestamp  time.Time
	Span       trace.Span
	Command    string
	Component  string
	Attributes map[string]string
}

// NewContext sets up tracing and a logger scoped to cmdName.
func NewContext(parent context.Context, cmdName string) *RuntimeContext {
	if parent == nil {
		parent = context.Background()
	}
	ctx, span := telemetry.Start(parent, cmdName)
	traceID := span.SpanContext().TraceID().String()
	if !span.SpanContext().HasTraceID() {
		traceID = logger.GenerateTraceID()
	}

	comp := resolveComponent(2)
	log := zap.L().With(
		zap.String("component", comp),
		zap.String("command", cmdName),
		zap.String("trace_id", traceID),
	).Named(comp)

	return &RuntimeContext{
		Ctx:        ctx,
		Log:        log,
		Timestamp:  time.Now(),
		Span:       span,
		Command:    cmdName,
		Component:  comp,
		Attributes: make(map[string]string),
	}
}

// HandlePanic recovers panics, logs them, and converts to an error.
func (rc *RuntimeContext) HandlePanic(errPtr *error) {
	if r := recover(); r != nil {
		*errPtr = cerr.AssertionFailedf("panic: %v", r)
		rc.Log.Error("panic recovered", zap.Any("panic", r))
	}
}

// End logs outcome, emits a telemetry span with key attributes, and flushes.
func (rc *RuntimeContext) End(errPtr *error) {
	defer rc.Span.End()

	var err error
	if errPtr != nil {
		err = *errPtr
	}
	duration := time.Since(rc.Timestamp)

	switch {
	case err == nil:
		rc.Log.Info("Command completed", zap.Duration("duration", duration))
	case hwcert_err.IsExpectedUserError(err):
		rc.Log.Warn("Command stopped", zap.Duration("duration", duration), zap.Error(err))
	default:
		rc.Log.Error("Command failed", zap.Duration("duration", duration), zap.Error(err))
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", err == nil),
		attribute.Int64("duration_ms", duration.Milliseconds()),
		attribute.String("os", runtime.GOOS),
		attribute.String("args", telemetry.TruncateArgs(os.Args[1:])),
		attribute.String("version", shared.Version),
		attribute.String("error_type", classifyError(err)),
	}
	for k, v := range rc.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	rc.Span.SetAttributes(attrs...)

	shared.SafeSync()
}

// LogRuntimeExecutionContext records who is running the binary and from where.
func (rc *RuntimeContext) LogRuntimeExecutionContext() {
	if u, err := user.Current(); err != nil {
		rc.Log.Warn("Failed to get current user", zap.Error(err))
	} else {
		rc.Log.Debug("User context",
			zap.String("username", u.Username),
			zap.String("uid", u.Uid),
			zap.Int("effective_uid", os.Geteuid()),
		)
	}
	if exe, err := os.Executable(); err == nil {
		rc.Log.Debug("Executing binary", zap.String("path", exe))
	}
}

func resolveComponent(skip int) string {
	_, file, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	parts := strings.Split(file, "/")
	if len(parts) < 2 {
		return strings.TrimSuffix(parts[0], ".go")
	}
	return parts[len(parts)-2]
}

func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case hwcert_err.IsExpectedUserError(err):
		return "user"
	default:
		return hwcert_err.CategoryOf(err).String()
	}
}
