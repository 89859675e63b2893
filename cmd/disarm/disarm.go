// cmd/disarm/disarm.go

package disarm

import (
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_cli"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/session"
)

var discard bool

// DisarmCmd removes the boot-time service left behind by a reboot test.
var DisarmCmd = &cobra.Command{
	Use:   "disarm",
	Short: "Remove the boot-time resume service",
	Long: `Remove the service that resumes hwcert after a reboot. The recorded reboot
state is kept unless --discard is given, so a later 'hwcert resume' can still
verify it.`,
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

		c := sess.Env.Continuation
		armed := c.IsArmed()
		if err := c.Disarm(rc.Ctx); err != nil {
			return err
		}
		if discard && armed {
			if err := c.Discard(); err != nil {
				return err
			}
			log.Info("Reboot state discarded", zap.String("path", cfg.StatePath))
		}
		log.Info("Boot service removed", zap.Bool("was_armed", armed))
		return nil
	}),
}

func init() {
	DisarmCmd.Flags().BoolVar(&discard, "discard", false, "Also delete the recorded reboot state")
}
