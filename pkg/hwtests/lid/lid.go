// Package lid asks the operator to close and reopen the laptop lid, watches
// the ACPI lid switch follow along, and has the operator confirm that the
// backlight went off while the lid was closed.
package lid

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/devices"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/wait"
)

const (
	Path = "lid"
	// SwitchName is the input device name the kernel gives the lid switch.
	SwitchName = "Lid Switch"
	// DefaultProcRoot is where procfs is mounted.
	DefaultProcRoot = "/proc"
)

type Test struct {
	hwtest.Base
	device string

	// State reports whether the lid is open.
	State func(ctx context.Context) (bool, error)
	// Interval and Attempts bound each wait for the lid to move.
	Interval time.Duration
	Attempts int
}

func New(_ *config.Config) hwtest.Test {
	return &Test{
		Base: hwtest.NewBase(hwtest.NewDescriptor(Path,
			hwtest.Description("Lid switch and backlight"),
			hwtest.Interactive(true),
			hwtest.Priority(5))),
		State:    ProcState(DefaultProcRoot),
		Interval: time.Second,
		Attempts: 20,
	}
}

// ProcState reads the ACPI lid state files under procRoot. The lid counts
// as open when any of them says so.
func ProcState(procRoot string) func(ctx context.Context) (bool, error) {
	return func(context.Context) (bool, error) {
		paths, err := filepath.Glob(filepath.Join(procRoot, "acpi", "button", "lid", "*", "state"))
		if err != nil {
			return false, cerr.Wrap(err, "find lid state")
		}
		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				return false, cerr.Wrapf(err, "read %s", p)
			}
			if strings.Contains(string(data), "open") {
				return true, nil
			}
		}
		return false, nil
	}
}

// Switches returns the input devices named like the lid switch.
func Switches(sysfsRoot string) ([]devices.Record, error) {
	inputs, err := devices.Class(sysfsRoot, "input")
	if err != nil {
		return nil, err
	}
	var out []devices.Record
	for _, r := range inputs {
		if strings.Trim(r.Get("NAME"), `"`) == SwitchName {
			out = append(out, r)
		}
	}
	return out, nil
}

// Plan yields one instance per lid switch.
func (t *Test) Plan(env *hwtest.Env) ([]hwtest.Test, error) {
	switches, err := Switches(env.Config.SysfsRoot)
	if err != nil {
		return nil, err
	}
	var planned []hwtest.Test
	for _, s := range switches {
		device := filepath.Base(s.Get("_PATH"))
		instance := *t
		instance.Base = hwtest.NewBase(t.Descriptor().With(hwtest.Param("device", device)))
		instance.device = device
		planned = append(planned, &instance)
	}
	return planned, nil
}

func (t *Test) Run(env *hwtest.Env) (result.Level, error) {
	level, err := hwtest.RunSubTest(env, "Lid verifying", "verify the lid and backlight", func() (result.Level, error) {
		return t.verify(env)
	})
	if err != nil {
		return result.Fail, err
	}
	if level.Passed() {
		env.Say("Lid test PASSED")
	} else {
		env.Say("Lid test FAILED")
	}
	return level, nil
}

func (t *Test) verify(env *hwtest.Env) (result.Level, error) {
	open, err := t.State(env.Ctx())
	if err != nil {
		return result.Fail, err
	}
	if !open {
		env.Say(result.Fail.MessagePrefix() + "lid must be open for this test")
		return result.Fail, nil
	}
	ok, err := env.Confirm("Ready to begin the lid/backlight test?")
	if err != nil || !ok {
		return result.Fail, err
	}

	env.Say("Please close the lid, verify the backlight turns off when the lid is closed, then reopen it.")
	if moved, err := t.waitFor(env, false); err != nil || !moved {
		return result.Fail, err
	}
	if moved, err := t.waitFor(env, true); err != nil || !moved {
		return result.Fail, err
	}

	ok, err = env.Confirm("Did the display backlight turn off when the lid was closed?")
	if err != nil {
		return result.Fail, err
	}
	if !ok {
		env.Say(result.Fail.MessagePrefix() + "backlight must turn off when the lid is closed")
		return result.Fail, nil
	}
	return result.Pass, nil
}

// waitFor polls until the lid is open (or closed). It reports false when
// the lid did not move in time.
func (t *Test) waitFor(env *hwtest.Env, open bool) (bool, error) {
	ctx := env.Ctx()
	want, action := "closed", "closed"
	if open {
		want, action = "open", "re-opened"
	}
	remaining := max(1, t.Attempts)
	err := wait.Poll(ctx, func(ctx context.Context) error {
		state, err := t.State(ctx)
		if err != nil {
			return wait.Break(err)
		}
		if state == open {
			return nil
		}
		env.Say(fmt.Sprintf("%d...", remaining))
		remaining--
		return cerr.Newf("lid is not %s", want)
	}, wait.Options{Attempts: t.Attempts, Interval: t.Interval})

	switch {
	case err == nil:
		return true, nil
	case cerr.Is(err, wait.ErrExhausted):
		otelzap.Ctx(ctx).Warn("Lid did not move", zap.String("want", want), zap.Error(err))
		env.Say(fmt.Sprintf("%sdid not detect the lid was %s within %s",
			result.Fail.MessagePrefix(), action, time.Duration(max(1, t.Attempts))*t.Interval))
		return false, nil
	}
	return false, err
}
