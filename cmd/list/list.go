// cmd/list/list.go

package list

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_cli"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_err"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtests"
)

var format string

// Item describes one available test.
type Item struct {
	Path        string `yaml:"path"`
	Description string `yaml:"description,omitempty"`
	Interactive bool   `yaml:"interactive"`
	Priority    int    `yaml:"priority"`
	Explicit    bool   `yaml:"explicit,omitempty"`
}

// ListCmd prints the registered tests.
var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available tests",
	Args:  cobra.NoArgs,
	RunE: hwcert_cli.Wrap(func(rc *hwcert_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		cfg, err := hwcert_cli.LoadConfig(cmd)
		if err != nil {
			return err
		}

		reg := hwtests.Registry()
		var items []Item
		for _, name := range reg.Names() {
			e, _ := reg.Entry(name)
			d := e.New(cfg).Descriptor()
			items = append(items, Item{
				Path:        d.Path(),
				Description: d.Description(),
				Interactive: d.IsInteractive(),
				Priority:    d.Priority(),
				Explicit:    e.Explicit,
			})
		}

		switch format {
		case "yaml":
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(items)
		case "table", "":
			renderTable(cmd.OutOrStdout(), items)
			return nil
		default:
			return hwcert_err.NewValidationError(
				fmt.Sprintf("unknown format %q", format),
				"use --format table or --format yaml",
			)
		}
	}),
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

func renderTable(w io.Writer, items []Item) {
	width := len("Test")
	for _, it := range items {
		width = max(width, len(it.Path))
	}
	pad := func(s string) string { return s + strings.Repeat(" ", width-len(s)+2) }

	fmt.Fprintln(w, headerStyle.Render(pad("Test")+"Mode         Description"))
	for _, it := range items {
		mode := "automatic"
		if it.Interactive {
			mode = "interactive"
		}
		desc := it.Description
		if it.Explicit {
			desc += mutedStyle.Render(" (run by name only)")
		}
		fmt.Fprintf(w, "%s%-13s%s\n", pad(it.Path), mode, desc)
	}
}

func init() {
	ListCmd.Flags().StringVar(&format, "format", "table", "Output format: table or yaml")
}
