// Package service registers hwcert to start at boot and drives systemctl.
package service

import (
	"context"
	"fmt"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Systemctl exit codes, see systemctl(1).
const (
	ExitSuccess     = 0
	ExitGenericFail = 1
	ExitInactive    = 3
	ExitUnknown     = 4
	ExitNotLoaded   = 5
)

type SystemctlCommand string

const (
	CmdIsActive     SystemctlCommand = "is-active"
	CmdIsEnabled    SystemctlCommand = "is-enabled"
	CmdRestart      SystemctlCommand = "restart"
	CmdEnable       SystemctlCommand = "enable"
	CmdDisable      SystemctlCommand = "disable"
	CmdDaemonReload SystemctlCommand = "daemon-reload"
)

// InterpretExitCode describes a systemctl exit status for the given verb.
func InterpretExitCode(cmd SystemctlCommand, exitCode int) string {
	switch cmd {
	case CmdIsActive:
		switch exitCode {
		case ExitSuccess:
			return "active"
		case ExitInactive:
			return "inactive"
		case ExitUnknown:
			return "unknown"
		case ExitNotLoaded:
			return "not loaded"
		}
	case CmdIsEnabled:
		switch exitCode {
		case ExitSuccess:
			return "enabled"
		case ExitGenericFail:
			return "disabled"
		}
	default:
		if exitCode == ExitSuccess {
			return "success"
		}
		return fmt.Sprintf("failed with exit code %d", exitCode)
	}
	return fmt.Sprintf("unknown exit code %d", exitCode)
}

// Manager runs systemctl verbs.
type Manager struct {
	runner execute.Runner
}

func NewManager(runner execute.Runner) *Manager {
	if runner == nil {
		runner = execute.Host{}
	}
	return &Manager{runner: runner}
}

func (m *Manager) run(ctx context.Context, cmd SystemctlCommand, units ...string) (string, error) {
	args := append([]string{string(cmd)}, units...)
	out, err := m.runner.Run(ctx, execute.Options{
		Command: "systemctl",
		Args:    args,
		Capture: true,
	})
	if err != nil {
		code := execute.ExitCode(err)
		otelzap.Ctx(ctx).Debug("systemctl returned non-zero",
			zap.Strings("args", args),
			zap.Int("exit_code", code),
			zap.String("meaning", InterpretExitCode(cmd, code)),
			zap.String("output", out))
		return out, cerr.Wrapf(err, "systemctl %s: %s", cmd, InterpretExitCode(cmd, code))
	}
	return out, nil
}

func (m *Manager) Restart(ctx context.Context, unit string) error {
	_, err := m.run(ctx, CmdRestart, unit)
	return err
}

func (m *Manager) Enable(ctx context.Context, unit string) error {
	_, err := m.run(ctx, CmdEnable, unit)
	return err
}

func (m *Manager) Disable(ctx context.Context, unit string) error {
	_, err := m.run(ctx, CmdDisable, unit)
	return err
}

func (m *Manager) DaemonReload(ctx context.Context) error {
	_, err := m.run(ctx, CmdDaemonReload)
	return err
}

// IsEnabled distinguishes "disabled" (false, nil) from systemctl failing.
func (m *Manager) IsEnabled(ctx context.Context, unit string) (bool, error) {
	_, err := m.run(ctx, CmdIsEnabled, unit)
	if err == nil {
		return true, nil
	}
	switch execute.ExitCode(err) {
	case ExitGenericFail, ExitNotLoaded:
		return false, nil
	}
	return false, err
}
