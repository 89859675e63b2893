// Package hwtesttest builds hwtest environments for tests.
package hwtesttest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap/zaptest"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/continuation"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/execute/executetest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/report"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/service"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/systemlog"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/wait"
)

// PID is embedded in markers written by test environments.
const PID = 4242

// Host is a simulated machine: a temporary workdir and sysfs, an in-memory
// journal, a settable clock and kernel version. Commands other than
// logger and journalctl are answered by Fake.
type Host struct {
	Env     *hwtest.Env
	Fake    *executetest.Fake
	Journal *executetest.Journal
	Kernel  string
	Clock   time.Time
}

func New(t *testing.T) *Host {
	t.Helper()
	otelzap.ReplaceGlobals(otelzap.New(zaptest.NewLogger(t)))

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Workdir = dir
	cfg.ReportPath = filepath.Join(dir, "output.html")
	cfg.SummaryPath = filepath.Join(dir, "results.yaml")
	cfg.StatePath = filepath.Join(dir, "bootprint")
	cfg.StaticLogPath = filepath.Join(dir, "messages")
	cfg.SysfsRoot = filepath.Join(dir, "sys")
	cfg.UnitDir = filepath.Join(dir, "units")
	cfg.ShutdownWait = time.Millisecond
	cfg.Lull.Interval = time.Millisecond
	cfg.Lull.Attempts = 3
	cfg.MarkerWait.Interval = time.Millisecond
	cfg.MarkerWait.Attempts = 2
	require.NoError(t, os.MkdirAll(cfg.SysfsRoot, 0o755))

	h := &Host{
		Fake:   executetest.New(),
		Kernel: "5.14.0-362.el9.x86_64",
		Clock:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local),
	}
	h.Journal = &executetest.Journal{Next: h.Fake}
	markers := systemlog.Markers{Prefix: cfg.LogMarker, PID: PID}

	reader := systemlog.NewReader(
		systemlog.WithMarkers(markers),
		systemlog.StaticPath(cfg.StaticLogPath),
		systemlog.BootBanner(cfg.KernelTag, cfg.BootMarker),
		systemlog.WithRunner(h.Journal),
		systemlog.WaitOptions(wait.Options{Attempts: cfg.MarkerWait.Attempts, Interval: cfg.MarkerWait.Interval}),
	)
	emitter := systemlog.NewEmitter(markers, h.Journal)

	manager := service.NewManager(h.Journal)
	boot := &service.Boot{
		Manager: manager,
		Systemd: true,
		Autostart: &service.Autostart{
			Name:    cfg.ServiceName,
			Exe:     "/usr/bin/hwcert",
			Workdir: dir,
			UnitDir: cfg.UnitDir,
			Systemd: true,
			Manager: manager,
			SysV:    service.NewSysV(h.Journal),
		},
	}

	h.Env = &hwtest.Env{
		RC:      &hwcert_io.RuntimeContext{Ctx: context.Background(), Command: "test"},
		Config:  cfg,
		Report:  report.NewWriter(cfg.ReportPath),
		Runner:  h.Journal,
		Emitter: emitter,
		Log:     reader,
		Continuation: continuation.New(continuation.Config{
			Store:           &continuation.Store{Path: cfg.StatePath},
			RebootTimeLimit: cfg.RebootTimeLimit,
			Hooks:           boot,
			Log:             reader,
			Markers:         emitter,
			Kernel:          func(context.Context) (string, error) { return h.Kernel, nil },
			Now:             func() time.Time { return h.Clock },
		}),
		LoadAverage: func(context.Context) (float64, error) { return 0.1, nil },
		Now:         func() time.Time { return h.Clock },
	}
	return h
}

// NewEnv is New for tests that only need the environment and the fake.
func NewEnv(t *testing.T) (*hwtest.Env, *executetest.Fake) {
	t.Helper()
	h := New(t)
	return h.Env, h.Fake
}

// Boot appends a kernel boot banner for the current kernel to the journal.
func (h *Host) Boot() {
	h.Journal.Add("host kernel: Linux version " + h.Kernel + " (mockbuild@builder)")
}

// Report returns the report file's contents.
func Report(t *testing.T, env *hwtest.Env) string {
	t.Helper()
	data, err := os.ReadFile(env.Report.Path())
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}
