// cmd/resume/resume.go

package resume

import (
	"io/fs"

	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_cli"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/runner"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/session"
)

// ResumeCmd finishes tests interrupted by a reboot. The boot-time service
// installed by the reboot test runs it.
var ResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Finish tests waiting on a reboot",
	Long: `Verify the reboot recorded before the machine went down, append the result
to the report of the interrupted run and merge it into its summary. With
nothing pending, the boot-time service is removed and the command exits
cleanly.`,
	Args: cobra.NoArgs,
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

		entries, err := sess.Registry.Select(nil, true)
		if err != nil {
			return err
		}
		pending := sess.Pending(runner.Build(cfg, entries))
		if len(pending) == 0 {
			log.Info("Nothing to resume; removing boot service")
			return sess.Boot.DisableAutostart(rc.Ctx)
		}

		r := runner.New(sess.Env)
		prev, err := runner.LoadSummary(rc.Ctx, cfg.SummaryPath)
		switch {
		case err == nil:
			r.RunID = prev.RunID
		case cerr.Is(err, fs.ErrNotExist):
			log.Warn("No summary from the interrupted run; starting a new one", zap.String("path", cfg.SummaryPath))
		default:
			log.Warn("Could not read the previous summary", zap.String("path", cfg.SummaryPath), zap.Error(err))
			prev = runner.Summary{}
		}
		log.Info("Resuming run", zap.String("run_id", r.RunID), zap.Int("pending", len(pending)))

		sum, runErr := r.Run(pending)
		return sess.Finish(prev.Merge(sum), runErr, cmd.OutOrStdout())
	}),
}
