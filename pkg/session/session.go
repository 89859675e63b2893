// Package session assembles everything a command needs to run tests on the
// local machine: configuration, report, system log access, the reboot
// continuation and the operator prompt.
package session

import (
	"fmt"
	"io"
	"os"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/continuation"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_err"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtests"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/interaction"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/release"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/report"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/runner"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/service"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/systemlog"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/wait"
)

type Session struct {
	Config   *config.Config
	Env      *hwtest.Env
	Registry *runner.Registry
	Boot     *service.Boot
}

// Options replaces host-facing pieces, mostly for tests.
type Options struct {
	Runner   execute.Runner
	Detector *release.Detector
	Prompter *interaction.Prompter
	Exe      string
}

// Open builds a session on the host. A missing terminal only disables
// interactive prompts.
func Open(rc *hwcert_io.RuntimeContext, cfg *config.Config, opts Options) (*Session, error) {
	log := otelzap.Ctx(rc.Ctx)

	if err := os.MkdirAll(cfg.Workdir, shared.DirPermStandard); err != nil {
		if os.IsPermission(err) {
			return nil, hwcert_err.NewPermissionError(cfg.Workdir, "create workdir", "run hwcert as root or pass --workdir")
		}
		return nil, hwcert_err.NewFilesystemError("create workdir "+cfg.Workdir, err)
	}

	host := opts.Runner
	if host == nil {
		host = execute.Host{}
	}
	detector := release.Detector{}
	if opts.Detector != nil {
		detector = *opts.Detector
	}
	info, err := detector.Detect(rc.Ctx)
	if err != nil {
		log.Warn("Could not identify the release; assuming systemd", zap.Error(err))
	}
	log.Info("Release detected",
		zap.String("release", info.Text),
		zap.String("platform", info.Platform),
		zap.String("platform_version", info.PlatformVersion),
		zap.String("kernel", info.Kernel),
		zap.Bool("systemd", info.UsesSystemd()))

	exe := opts.Exe
	if exe == "" {
		if exe, err = os.Executable(); err != nil {
			return nil, cerr.Wrap(err, "locate hwcert executable")
		}
	}

	markers := systemlog.Markers{Prefix: cfg.LogMarker, PID: os.Getpid()}
	reader := systemlog.NewReader(
		systemlog.WithMarkers(markers),
		systemlog.StaticPath(cfg.StaticLogPath),
		systemlog.BootBanner(cfg.KernelTag, cfg.BootMarker),
		systemlog.WithRunner(host),
		systemlog.WaitOptions(wait.Options{Attempts: cfg.MarkerWait.Attempts, Interval: cfg.MarkerWait.Interval}),
	)
	emitter := systemlog.NewEmitter(markers, host)

	systemd := info.UsesSystemd()
	manager := service.NewManager(host)
	boot := &service.Boot{
		Manager: manager,
		Systemd: systemd,
		Autostart: &service.Autostart{
			Name:        cfg.ServiceName,
			Exe:         exe,
			Workdir:     cfg.Workdir,
			ConfigPath:  cfg.File,
			Environment: config.EnvOverrides(),
			UnitDir:     cfg.UnitDir,
			Systemd:     systemd,
			Manager:     manager,
			SysV:        service.NewSysV(host),
		},
	}

	prompter := opts.Prompter
	if prompter == nil {
		if p, err := interaction.Stdio(); err == nil {
			prompter = p
		} else {
			log.Debug("No terminal; interactive tests cannot prompt", zap.Error(err))
		}
	}

	env := &hwtest.Env{
		RC:      rc,
		Config:  cfg,
		Report:  report.NewWriter(cfg.ReportPath),
		Runner:  host,
		Log:     reader,
		Emitter: emitter,
		Continuation: continuation.New(continuation.Config{
			Store:           &continuation.Store{Path: cfg.StatePath},
			RebootTimeLimit: cfg.RebootTimeLimit,
			Hooks:           boot,
			Log:             reader,
			Markers:         emitter,
			Kernel:          detector.Kernel,
			Now:             time.Now,
		}),
		Release:  info,
		Prompter: prompter,
	}

	return &Session{
		Config:   cfg,
		Env:      env,
		Registry: hwtests.Registry(),
		Boot:     boot,
	}, nil
}

// Pending returns the selected tests that are waiting on a reboot.
func (s *Session) Pending(tests []hwtest.Test) []hwtest.Test {
	var out []hwtest.Test
	for _, t := range tests {
		if c, ok := t.(hwtest.Continuer); ok && c.Pending(s.Env) {
			out = append(out, t)
		}
	}
	return out
}

// Finish persists sum, prints it to out and turns the outcome into the
// command's error. WARN still counts as passing.
func (s *Session) Finish(sum runner.Summary, runErr error, out io.Writer) error {
	ctx := s.Env.Ctx()
	if err := sum.Write(ctx, s.Config.SummaryPath); err != nil {
		otelzap.Ctx(ctx).Warn("Could not save the run summary",
			zap.String("path", s.Config.SummaryPath), zap.Error(err))
	}
	fmt.Fprint(out, sum.Render())
	otelzap.Ctx(ctx).Info("Run finished",
		zap.String("run_id", sum.RunID),
		zap.String("overall", sum.Overall.String()),
		zap.String("report", s.Config.ReportPath))

	if runErr != nil {
		return runErr
	}
	if !sum.Overall.Passed() {
		return cerr.Newf("overall result %s; see %s", sum.Overall, s.Config.ReportPath)
	}
	return nil
}
