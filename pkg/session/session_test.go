package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap/zaptest"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/execute/executetest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/interaction"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/release"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/runner"
)

func open(t *testing.T, version string) (*Session, *executetest.Journal) {
	t.Helper()
	otelzap.ReplaceGlobals(otelzap.New(zaptest.NewLogger(t)))

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Workdir = filepath.Join(dir, "work")
	cfg.StatePath = filepath.Join(dir, "bootprint")
	cfg.UnitDir = filepath.Join(dir, "units")
	cfg.ReportPath = filepath.Join(cfg.Workdir, "output.html")
	cfg.SummaryPath = filepath.Join(cfg.Workdir, "results.yaml")

	journal := &executetest.Journal{Next: executetest.New()}
	rc := &hwcert_io.RuntimeContext{Ctx: context.Background()}
	s, err := Open(rc, cfg, Options{
		Runner: journal,
		Detector: &release.Detector{
			ReleaseFile: filepath.Join(dir, "no-release"),
			HostInfo: func(context.Context) (*host.InfoStat, error) {
				return &host.InfoStat{KernelVersion: "5.14.0", PlatformVersion: version}, nil
			},
		},
		Prompter: interaction.NewPrompter(strings.NewReader(""), io.Discard),
		Exe:      "/usr/local/bin/hwcert",
	})
	require.NoError(t, err)
	return s, journal
}

func TestOpen(t *testing.T) {
	s, _ := open(t, "9.3")
	assert.DirExists(t, s.Config.Workdir)
	assert.NotNil(t, s.Env.Continuation)
	assert.NotNil(t, s.Env.Prompter)
	assert.True(t, s.Boot.Systemd)
	assert.Equal(t, "5.14.0", s.Env.Release.Kernel)
	assert.Equal(t, []string{"battery", "lid", "memory", "reboot", "sosreport", "suspend"}, s.Registry.Names())
}

func TestOpenSysV(t *testing.T) {
	s, _ := open(t, "6.10")
	assert.False(t, s.Boot.Systemd)
	assert.False(t, s.Boot.Autostart.Systemd)
}

func TestPendingFollowsContinuation(t *testing.T) {
	s, journal := open(t, "9.3")
	entries, err := s.Registry.Select(nil, true)
	require.NoError(t, err)

	built := runner.Build(s.Config, entries)
	assert.Empty(t, s.Pending(built))

	_, err = s.Env.Continuation.Arm(s.Env.Ctx(), "reboot", "reboot")
	require.NoError(t, err)
	assert.Contains(t, journal.Text(), "reboot-")

	unit, err := os.ReadFile(filepath.Join(s.Config.UnitDir, "hwcert.service"))
	require.NoError(t, err)
	assert.Contains(t, string(unit), "ExecStart=/usr/local/bin/hwcert resume --workdir "+s.Config.Workdir)

	pending := s.Pending(built)
	require.Len(t, pending, 1)
	assert.Equal(t, "reboot", pending[0].Descriptor().Path())
}

func TestFinish(t *testing.T) {
	tests := []struct {
		name    string
		overall result.Level
		runErr  error
		wantErr string
	}{
		{name: "pass", overall: result.Pass},
		{name: "warn passes", overall: result.Warn},
		{name: "review fails", overall: result.Review, wantErr: "overall result REVIEW"},
		{name: "run error wins", overall: result.Fail, runErr: errors.New("memory: boom"), wantErr: "memory: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := open(t, "9.3")
			sum := runner.Summary{
				RunID:   "run-1",
				Overall: tt.overall,
				Records: []runner.Record{{Path: "memory", Suite: "memory", Name: "memory", Result: tt.overall}},
			}

			var out strings.Builder
			err := s.Finish(sum, tt.runErr, &out)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			assert.Contains(t, out.String(), "memory")

			saved, err := runner.LoadSummary(context.Background(), s.Config.SummaryPath)
			require.NoError(t, err)
			assert.Equal(t, "run-1", saved.RunID)
			assert.True(t, tt.overall.Equal(saved.Overall))
		})
	}
}

func TestOpenWorkdirIsAFile(t *testing.T) {
	otelzap.ReplaceGlobals(otelzap.New(zaptest.NewLogger(t)))
	file := filepath.Join(t.TempDir(), "busy")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	cfg := config.Default()
	cfg.Workdir = filepath.Join(file, "work")
	_, err := Open(&hwcert_io.RuntimeContext{Ctx: context.Background()}, cfg, Options{Runner: executetest.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create workdir")
}

func TestArmedUnitResumesWithSameConfig(t *testing.T) {
	otelzap.ReplaceGlobals(otelzap.New(zaptest.NewLogger(t)))
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"workdir: " + filepath.Join(dir, "work"),
		"state_path: " + filepath.Join(dir, "bootprint"),
		"unit_dir: " + filepath.Join(dir, "units"),
		"reboot_time_limit: 90m",
		"log_marker: lab/hwcert",
	}, "\n")), 0o644))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	journal := &executetest.Journal{Next: executetest.New()}
	s, err := Open(&hwcert_io.RuntimeContext{Ctx: context.Background()}, cfg, Options{
		Runner: journal,
		Detector: &release.Detector{
			ReleaseFile: filepath.Join(dir, "no-release"),
			HostInfo: func(context.Context) (*host.InfoStat, error) {
				return &host.InfoStat{KernelVersion: "5.14.0", PlatformVersion: "9.3"}, nil
			},
		},
		Prompter: interaction.NewPrompter(strings.NewReader(""), io.Discard),
		Exe:      "/usr/local/bin/hwcert",
	})
	require.NoError(t, err)

	_, err = s.Env.Continuation.Arm(s.Env.Ctx(), "reboot", "reboot")
	require.NoError(t, err)

	unit, err := os.ReadFile(filepath.Join(dir, "units", "hwcert.service"))
	require.NoError(t, err)
	var resumeConfig string
	for _, line := range strings.Split(string(unit), "\n") {
		if rest, ok := strings.CutPrefix(line, "ExecStart="); ok {
			_, after, found := strings.Cut(rest, "--config ")
			require.True(t, found, "ExecStart must name the config file: %s", rest)
			resumeConfig = strings.Fields(after)[0]
		}
	}
	require.Equal(t, path, resumeConfig)

	resumed, err := config.Load(resumeConfig, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.StatePath, resumed.StatePath)
	assert.Equal(t, 90*time.Minute, resumed.RebootTimeLimit)
	assert.Equal(t, "lab/hwcert", resumed.LogMarker)
	assert.FileExists(t, resumed.StatePath)
}
