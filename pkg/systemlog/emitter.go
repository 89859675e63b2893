package systemlog

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Emitter writes marker lines into the system log with logger(1).
type Emitter struct {
	markers Markers
	runner  execute.Runner
}

func NewEmitter(m Markers, runner execute.Runner) *Emitter {
	if runner == nil {
		runner = execute.Host{}
	}
	return &Emitter{markers: m, runner: runner}
}

func (e *Emitter) Markers() Markers { return e.markers }

// Emit logs msg verbatim.
func (e *Emitter) Emit(ctx context.Context, msg string) error {
	if _, err := e.runner.Run(ctx, execute.Options{
		Command: "logger",
		Args:    []string{"--", msg},
		Capture: true,
	}); err != nil {
		return cerr.Wrap(err, "write system log marker")
	}
	otelzap.Ctx(ctx).Debug("System log marker written", zap.String("marker", msg))
	return nil
}

// Mark emits the begin or end marker for name and returns the line written.
func (e *Emitter) Mark(ctx context.Context, name, mark string, withPID bool) (string, error) {
	msg := e.markers.Format(name, mark, withPID)
	return msg, e.Emit(ctx, msg)
}
