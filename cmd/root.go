/* cmd/root.go */

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/cmd/disarm"
	"github.com/CodeMonkeyCybersecurity/hwcert/cmd/list"
	"github.com/CodeMonkeyCybersecurity/hwcert/cmd/resume"
	"github.com/CodeMonkeyCybersecurity/hwcert/cmd/run"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_cli"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_err"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/telemetry"
)

var helpLogged bool // log help only once

// RootCmd is the base command for hwcert.
var RootCmd = &cobra.Command{
	Use:     shared.HwcertID,
	Short:   "Hardware certification test runner",
	Version: shared.Version,
	Long: `hwcert runs hardware certification tests on the local machine, writes an
HTML report of every test, and survives reboots that a test triggers by
resuming from a boot-time service.`,
	SilenceUsage: true,
	RunE: hwcert_cli.Wrap(func(rc *hwcert_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), "No subcommand provided. Try `hwcert help`.")
		return cmd.Help()
	}),
}

// HelpCmd wraps help so that it can be invoked like a normal command.
var HelpCmd = &cobra.Command{
	Use:   "help",
	Short: "Help about any command",
	RunE: hwcert_cli.Wrap(func(rc *hwcert_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return RootCmd.Help()
		}
		c, _, err := RootCmd.Find(args)
		if err != nil || c == nil {
			return hwcert_err.NewValidationError(fmt.Sprintf("command not found: %s", strings.Join(args, " ")))
		}
		return c.Help()
	}),
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Path to a config file (default "+shared.HwcertConfigFile+")")
	RootCmd.PersistentFlags().String("workdir", config.DefaultWorkdir, "Directory holding the report, summary and state of a run")
}

// RegisterCommands adds all subcommands to the root command.
func RegisterCommands() {
	RootCmd.SetHelpCommand(HelpCmd)

	log := logger.L()
	RootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if !helpLogged {
			log.Debug("Help requested", zap.String("command", cmd.Name()))
			helpLogged = true
		}
		if err := cmd.Usage(); err != nil {
			log.Warn("Failed to print usage", zap.Error(err))
		}
	})

	for _, subCmd := range []*cobra.Command{
		run.RunCmd,
		resume.ResumeCmd,
		list.ListCmd,
		disarm.DisarmCmd,
	} {
		RootCmd.AddCommand(subCmd)
	}
}

// Execute initializes and runs the root command.
func Execute() {
	if err := telemetry.Init(shared.HwcertID); err != nil {
		logger.L().Warn("Telemetry disabled", zap.Error(err))
	}

	RegisterCommands()

	err := RootCmd.Execute()

	if serr := telemetry.Shutdown(context.Background()); serr != nil {
		logger.L().Debug("Telemetry shutdown failed", zap.Error(serr))
	}
	if serr := logger.Sync(); serr != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", serr)
	}

	if err != nil {
		hwcert_err.PrintError("hwcert failed", err)
		os.Exit(hwcert_err.GetExitCode(err))
	}
}
