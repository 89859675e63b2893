// pkg/execute/execute.go

package execute

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_err"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrShellDisabled is returned for Options.Shell; pass the program and its
// arguments separately instead.
var ErrShellDisabled = cerr.New("shell execution mode disabled - use Args instead")

// Run executes a command with structured logging and proper error handling.
// Output is always returned when the command fails so callers can inspect it.
func Run(ctx context.Context, opts Options) (string, error) {
	cmdStr := buildCommandString(opts.Command, opts.Args...)

	logger := opts.Logger
	if logger == nil {
		logger = DefaultLogger
	}
	if logger == nil {
		logger = zap.L()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Shell {
		logger.Warn("Refusing shell execution", zap.String("command", opts.Command))
		return "", ErrShellDisabled
	}

	ctx, span := telemetry.Start(ctx, "execute.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("command", opts.Command),
		attribute.String("args", strings.Join(opts.Args, " ")),
	)

	if opts.DryRun || DefaultDryRun {
		logger.Info("Dry run mode - command not executed", zap.String("command", cmdStr))
		return "", nil
	}

	logger.Debug("Starting execution", zap.String("command", cmdStr))

	attempts := max(1, opts.Retries)
	var (
		output string
		err    error
	)
	for i := 1; i <= attempts; i++ {
		output, err = runOnce(ctx, opts)
		if err == nil {
			logger.Debug("Execution succeeded", zap.String("command", cmdStr), zap.Int("attempt", i))
			break
		}

		span.RecordError(err)
		logger.Warn("Execution failed",
			zap.Int("attempt", i),
			zap.String("command", cmdStr),
			zap.String("summary", hwcert_err.ExtractSummary(output, 2)),
			zap.Error(err),
		)

		if i < attempts {
			select {
			case <-ctx.Done():
				return output, cerr.Wrapf(ctx.Err(), "%s interrupted", opts.Command)
			case <-time.After(opts.Delay):
			}
		}
	}

	if err != nil {
		if cerr.Is(err, exec.ErrNotFound) {
			return output, hwcert_err.NewDependencyError(opts.Command, cmdStr)
		}
		return output, cerr.Wrapf(err, "%s failed after %d attempt(s)", cmdStr, attempts)
	}

	if opts.Capture {
		return output, nil
	}
	return "", nil
}

func runOnce(ctx context.Context, opts Options) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, defaultTimeout(opts.Timeout))
	defer cancel()

	cmd := exec.CommandContext(runCtx, opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	var buf bytes.Buffer
	var w io.Writer = &buf
	if !opts.Capture {
		w = io.MultiWriter(os.Stdout, &buf)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	err := cmd.Run()
	if err != nil && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = cerr.Wrapf(err, "timed out after %s", defaultTimeout(opts.Timeout))
	}
	return buf.String(), err
}

// ExitCode extracts the process exit status from a Run error, or -1 when the
// error did not come from a process that ran to completion.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if cerr.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
