package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"mvdan.cc/sh/v3/syntax"
)

// DefaultInitDir holds SysV init scripts.
const DefaultInitDir = "/etc/rc.d/init.d"

// Autostart makes the next boot run "<exe> resume --workdir <dir>", plus
// "--config <file>" when the armed run read a config file.
type Autostart struct {
	Name       string // unit or init script name, without suffix
	Exe        string
	Workdir    string
	ConfigPath string
	// Environment holds KEY=VALUE pairs the resumed process needs, such as
	// HWCERT_* overrides given to the armed run.
	Environment []string
	UnitDir     string
	InitDir     string
	Systemd     bool

	Manager *Manager
	SysV    *SysV
}

func (a *Autostart) unitPath() string {
	return filepath.Join(a.UnitDir, a.Name+".service")
}

func (a *Autostart) initPath() string {
	dir := a.InitDir
	if dir == "" {
		dir = DefaultInitDir
	}
	return filepath.Join(dir, a.Name)
}

func (a *Autostart) args() []string {
	args := []string{a.Exe, "resume", "--workdir", a.Workdir}
	if a.ConfigPath != "" {
		args = append(args, "--config", a.ConfigPath)
	}
	return args
}

// Unit renders the systemd unit file.
func (a *Autostart) Unit() string {
	words := a.args()
	for i, w := range words {
		words[i] = systemdQuote(strings.ReplaceAll(w, "$", "$$"))
	}
	var env strings.Builder
	for _, kv := range a.Environment {
		env.WriteString("Environment=" + systemdQuote(kv) + "\n")
	}
	return fmt.Sprintf(`[Unit]
Description=hwcert continuation after reboot
After=multi-user.target systemd-journald.service
ConditionPathExists=%[2]s

[Service]
Type=oneshot
WorkingDirectory=%[2]s
%[3]sExecStart=%[1]s
StandardOutput=journal+console
TimeoutStartSec=0

[Install]
WantedBy=multi-user.target
`, strings.Join(words, " "), strings.ReplaceAll(a.Workdir, "%", "%%"), env.String())
}

func (a *Autostart) initScript() (string, error) {
	words := a.args()
	for i, w := range words {
		q, err := syntax.Quote(w, syntax.LangPOSIX)
		if err != nil {
			return "", cerr.Wrapf(err, "quote %q", w)
		}
		words[i] = q
	}
	var env strings.Builder
	for _, kv := range a.Environment {
		key, value, _ := strings.Cut(kv, "=")
		q, err := syntax.Quote(value, syntax.LangPOSIX)
		if err != nil {
			return "", cerr.Wrapf(err, "quote %s", key)
		}
		env.WriteString("export " + key + "=" + q + "\n")
	}
	return fmt.Sprintf(`#!/bin/sh
# chkconfig: 345 99 01
# description: hwcert continuation after reboot
%[3]scase "$1" in
  start) cd %[2]s && %[1]s ;;
  *) exit 0 ;;
esac
`, strings.Join(words, " "), words[3], env.String()), nil
}

// systemdQuote makes s a single ExecStart/Environment word with specifiers
// escaped. ExecStart words also need "$" doubled by the caller.
func systemdQuote(s string) string {
	s = strings.ReplaceAll(s, "%", "%%")
	if s != "" && !strings.ContainsAny(s, " \t\n\"'\\;") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`)
	return `"` + r.Replace(s) + `"`
}

// Enable installs and registers the boot entry.
func (a *Autostart) Enable(ctx context.Context) error {
	logger := otelzap.Ctx(ctx)

	if a.Systemd {
		path := a.unitPath()
		logger.Info("Installing autostart unit", zap.String("unit", path))
		if err := os.MkdirAll(a.UnitDir, shared.DirPermStandard); err != nil {
			return cerr.Wrap(err, "create unit directory")
		}
		if err := os.WriteFile(path, []byte(a.Unit()), shared.FilePermStandard); err != nil {
			return cerr.Wrapf(err, "write unit %s", path)
		}
		if err := a.Manager.DaemonReload(ctx); err != nil {
			return err
		}
		return a.Manager.Enable(ctx, a.Name+".service")
	}

	path := a.initPath()
	logger.Info("Installing autostart init script", zap.String("script", path))
	script, err := a.initScript()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return cerr.Wrapf(err, "write init script %s", path)
	}
	return a.SysV.Add(ctx, a.Name)
}

// Disable removes the boot entry. It does nothing when none is installed.
func (a *Autostart) Disable(ctx context.Context) error {
	logger := otelzap.Ctx(ctx)

	if !a.Installed() {
		logger.Debug("Autostart not installed, nothing to disable", zap.String("name", a.Name))
		return nil
	}

	if a.Systemd {
		if err := a.Manager.Disable(ctx, a.Name+".service"); err != nil {
			logger.Warn("Disabling autostart unit failed, removing it anyway", zap.Error(err))
		}
		if err := os.Remove(a.unitPath()); err != nil && !os.IsNotExist(err) {
			return cerr.Wrapf(err, "remove unit %s", a.unitPath())
		}
		return a.Manager.DaemonReload(ctx)
	}

	if err := a.SysV.Del(ctx, a.Name); err != nil {
		logger.Warn("chkconfig --del failed, removing script anyway", zap.Error(err))
	}
	if err := os.Remove(a.initPath()); err != nil && !os.IsNotExist(err) {
		return cerr.Wrapf(err, "remove init script %s", a.initPath())
	}
	return nil
}

// Installed reports whether the unit file or init script exists.
func (a *Autostart) Installed() bool {
	path := a.initPath()
	if a.Systemd {
		path = a.unitPath()
	}
	_, err := os.Stat(path)
	return err == nil
}
