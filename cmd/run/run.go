// cmd/run/run.go

package run

import (
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_cli"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/runner"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/session"
)

var includeReboot bool

// RunCmd runs the named tests, or every test when none are named.
var RunCmd = &cobra.Command{
	Use:   "run [test...]",
	Short: "Run hardware certification tests",
	Long: `Run the named tests and write an HTML report plus a YAML summary into the
workdir. A name selects that test and every test below it. Without names all
tests run except reboot, which needs --include-reboot or to be named.

Examples:
  hwcert run
  hwcert run memory suspend
  hwcert run reboot`,
	RunE: hwcert_cli.Wrap(func(rc *hwcert_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		log := otelzap.Ctx(rc.Ctx)

		cfg, err := hwcert_cli.LoadConfig(cmd)
		if err != nil {
			return err
		}
		sess, err := session.Open(rc, cfg, session.Options{})
		if err != nil {
			return err
		}

		entries, err := sess.Registry.Select(args, includeReboot)
		if err != nil {
			return err
		}
		selected := make([]string, 0, len(entries))
		for _, e := range entries {
			selected = append(selected, e.Path)
		}

		r := runner.New(sess.Env)
		log.Info("Starting run",
			zap.String("run_id", r.RunID),
			zap.Strings("tests", selected),
			zap.String("report", cfg.ReportPath))

		if err := sess.Env.Report.Reset(r.RunID, sess.Registry.Names(), selected); err != nil {
			return err
		}

		sum, runErr := r.Run(runner.Build(cfg, entries))
		return sess.Finish(sum, runErr, cmd.OutOrStdout())
	}),
}

func init() {
	RunCmd.Flags().BoolVar(&includeReboot, "include-reboot", false, "Also run the reboot test when no tests are named")
}
