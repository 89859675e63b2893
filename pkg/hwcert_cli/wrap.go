// pkg/hwcert_cli/wrap.go

package hwcert_cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_err"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RunFunc is the signature every hwcert subcommand implements.
type RunFunc func(rc *hwcert_io.RuntimeContext, cmd *cobra.Command, args []string) error

// Wrap ensures panic recovery, telemetry, logging and cancellation on SIGINT/SIGTERM.
func Wrap(fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()

		rc := hwcert_io.NewContext(sigCtx, cmd.Name())
		defer rc.End(&err)
		defer rc.HandlePanic(&err)

		rc.LogRuntimeExecutionContext()

		err = fn(rc, cmd, args)
		if err == nil {
			return nil
		}
		if cerr.Is(sigCtx.Err(), context.Canceled) && parent.Err() == nil {
			rc.Log.Warn("Interrupted by signal", zap.Error(err))
			return hwcert_err.NewUserCancelledError(cmd.Name())
		}
		if !hwcert_err.IsExpectedUserError(err) {
			err = cerr.WithStack(err)
		}
		return err
	}
}
