package hwcert_cli

import (
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
)

// LoadConfig reads the file named by --config (if any) and overlays the
// command's flags and HWCERT_* environment.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, cmd.Flags())
}
