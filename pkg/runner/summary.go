package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
)

// Summary is the persisted outcome of a run.
type Summary struct {
	RunID    string       `yaml:"run_id"`
	Started  time.Time    `yaml:"started"`
	Finished time.Time    `yaml:"finished"`
	Overall  result.Level `yaml:"overall"`
	Records  []Record     `yaml:"records"`
}

// Combined folds every record's result; an empty run passes.
func (s Summary) Combined() result.Level {
	levels := make([]result.Level, 0, len(s.Records))
	for _, r := range s.Records {
		levels = append(levels, r.Result)
	}
	return result.Worst(levels...)
}

// Merge replaces records in s with later ones for the same path and appends
// the rest. It is used when a run resumes after a reboot.
func (s Summary) Merge(later Summary) Summary {
	out := s
	out.Records = append([]Record(nil), s.Records...)
	index := make(map[string]int, len(out.Records))
	for i, r := range out.Records {
		index[r.Path] = i
	}
	for _, r := range later.Records {
		if i, ok := index[r.Path]; ok {
			out.Records[i] = r
			continue
		}
		index[r.Path] = len(out.Records)
		out.Records = append(out.Records, r)
	}
	if out.RunID == "" {
		out.RunID = later.RunID
	}
	if out.Started.IsZero() {
		out.Started = later.Started
	}
	out.Finished = later.Finished
	out.Overall = out.Combined()
	return out
}

func (s Summary) Write(ctx context.Context, path string) error {
	return hwcert_io.WriteYAML(ctx, path, s)
}

func LoadSummary(ctx context.Context, path string) (Summary, error) {
	var s Summary
	err := hwcert_io.ReadYAML(ctx, path, &s)
	return s, err
}

var (
	colorSuccess = lipgloss.Color("#00ff00")
	colorWarning = lipgloss.Color("#ffaa00")
	colorError   = lipgloss.Color("#ff0000")
	colorMuted   = lipgloss.Color("#666666")

	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
)

// LevelStyle colours a result the way the report buttons do.
func LevelStyle(level result.Level) lipgloss.Style {
	switch level.Kind() {
	case result.KindPass:
		return lipgloss.NewStyle().Foreground(colorSuccess)
	case result.KindFail:
		return lipgloss.NewStyle().Foreground(colorError).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(colorWarning)
	}
}

// Render draws the summary as a table for the terminal.
func (s Summary) Render() string {
	width := len("Test")
	for _, r := range s.Records {
		width = max(width, len(r.Path))
	}
	pathCol := lipgloss.NewStyle().Width(width + 2)
	resultCol := lipgloss.NewStyle().Width(8)

	var b strings.Builder
	b.WriteString(headerStyle.Render(pathCol.Render("Test") + resultCol.Render("Result") + "Duration"))
	b.WriteString("\n")
	for _, r := range s.Records {
		b.WriteString(pathCol.Render(r.Path))
		b.WriteString(resultCol.Render(LevelStyle(r.Result).Render(r.Result.String())))
		b.WriteString(mutedStyle.Render(r.Duration.Round(time.Millisecond).String()))
		b.WriteString("\n")
		if r.Error != "" {
			b.WriteString(mutedStyle.Render("  " + firstLine(r.Error)))
			b.WriteString("\n")
		}
	}
	b.WriteString(fmt.Sprintf("\n%s %s\n",
		headerStyle.Render("Overall:"),
		LevelStyle(s.Overall).Render(s.Overall.String())))
	return b.String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
