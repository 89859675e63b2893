// Package continuation carries a test across an OS reboot.
//
// Arm persists a timestamp, method and kernel fingerprint, registers hwcert
// to start on the next boot and writes a begin marker into the system log.
// After the reboot, Verify consumes that state, writes the end marker and
// checks the elapsed time, the kernel identity and the number of boot
// banners between the markers.
package continuation

import (
	"context"
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/systemlog"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var (
	ErrNotArmed       = cerr.New("no reboot in progress")
	ErrCorruptState   = cerr.New("reboot state file is corrupt")
	ErrRebootTooLong  = cerr.New("reboot took too long")
	ErrKernelMismatch = cerr.New("rebooted a different kernel")
	ErrTooManyReboots = cerr.New("system rebooted too many times")
)

// DefaultRebootTimeLimit is the soft limit; twice this fails verification.
const DefaultRebootTimeLimit = 60 * time.Minute

// BootHooks is the init-system side of a continuation.
type BootHooks interface {
	RestartJournal(ctx context.Context) error
	EnableAutostart(ctx context.Context) error
	DisableAutostart(ctx context.Context) error
}

// LogSource finds marker-bounded sections of the current boot's log.
type LogSource interface {
	Section(ctx context.Context, name string, withPID bool) (string, error)
	CountBootBanners(text string) int
}

// MarkerWriter writes markers into the system log.
type MarkerWriter interface {
	Mark(ctx context.Context, name, mark string, withPID bool) (string, error)
}

// Config wires a Continuation.
type Config struct {
	Store           *Store
	RebootTimeLimit time.Duration
	Hooks           BootHooks
	Log             LogSource
	Markers         MarkerWriter
	Kernel          func(ctx context.Context) (string, error)
	Now             func() time.Time
}

type Continuation struct {
	cfg Config
}

func New(cfg Config) *Continuation {
	if cfg.RebootTimeLimit <= 0 {
		cfg.RebootTimeLimit = DefaultRebootTimeLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Continuation{cfg: cfg}
}

// MarkerName is the log marker name for a continuation armed at ts.
func MarkerName(marker string, ts time.Time) string {
	return marker + "-" + ts.Format(TimestampLayout)
}

// IsArmed reports whether a reboot is in flight.
func (c *Continuation) IsArmed() bool {
	return c.cfg.Store.Exists()
}

// Arm records the pre-reboot state. The caller triggers the reboot.
func (c *Continuation) Arm(ctx context.Context, marker, method string) (State, error) {
	log := otelzap.Ctx(ctx)

	if err := c.cfg.Hooks.RestartJournal(ctx); err != nil {
		log.Warn("Could not restart journal before reboot", zap.Error(err))
	}
	if err := c.cfg.Hooks.EnableAutostart(ctx); err != nil {
		return State{}, cerr.WithHint(cerr.Wrap(err, "register autostart"),
			"hwcert must start automatically after the reboot to verify it")
	}

	kernel, err := c.cfg.Kernel(ctx)
	if err != nil {
		return State{}, cerr.Wrap(err, "read kernel before reboot")
	}

	st := State{
		Timestamp: c.cfg.Now().Truncate(time.Second),
		Method:    method,
		Kernel:    kernel,
	}
	if err := c.cfg.Store.Save(st); err != nil {
		return State{}, err
	}

	name := MarkerName(marker, st.Timestamp)
	if _, err := c.cfg.Markers.Mark(ctx, name, systemlog.MarkBegin, false); err != nil {
		log.Warn("Could not write begin marker; reboot detection will be limited", zap.Error(err))
	}

	log.Info("Continuation armed",
		zap.String("marker", name),
		zap.String("method", method),
		zap.String("kernel", kernel),
		zap.String("state_file", c.cfg.Store.Path))
	return st, nil
}

// Verification is the outcome of Verify.
type Verification struct {
	Started      time.Time
	Duration     time.Duration
	Method       string
	KernelBefore string
	KernelAfter  string
	Reboots      int
	Warnings     []string
	Result       result.Level
}

// Verify consumes the armed state and checks the reboot. A non-nil error
// always comes with Result FAIL. Calling Verify when nothing is armed
// returns ErrNotArmed.
func (c *Continuation) Verify(ctx context.Context, marker string, maxReboots int) (Verification, error) {
	log := otelzap.Ctx(ctx)
	v := Verification{Result: result.Fail}

	if err := c.cfg.Hooks.RestartJournal(ctx); err != nil {
		log.Warn("Could not restart journal", zap.Error(err))
	}

	st, err := c.cfg.Store.Consume()
	if err != nil {
		return v, cerr.Wrap(err, "could not verify reboot")
	}
	v.Started = st.Timestamp
	v.Method = st.Method
	v.KernelBefore = st.Kernel
	v.Duration = c.cfg.Now().Sub(st.Timestamp)

	say(ctx, "reboot took "+v.Duration.Round(time.Second).String())
	say(ctx, "method: "+st.Method)
	say(ctx, "kernel: "+st.Kernel)

	limit := c.cfg.RebootTimeLimit
	if v.Duration > 2*limit {
		say(ctx, fmt.Sprintf("%sreboot took longer than %s", result.Fail.MessagePrefix(), 2*limit))
		return v, cerr.Wrapf(ErrRebootTooLong, "%s exceeds %s", v.Duration.Round(time.Second), 2*limit)
	}
	if v.Duration > limit {
		v.warn(ctx, fmt.Sprintf("reboot took longer than %s", limit))
	}

	v.KernelAfter, err = c.cfg.Kernel(ctx)
	if err != nil {
		return v, cerr.Wrap(err, "read kernel after reboot")
	}
	if v.KernelAfter != v.KernelBefore {
		say(ctx, result.Fail.MessagePrefix()+"rebooted a different kernel:")
		say(ctx, "    before: "+v.KernelBefore)
		say(ctx, "    after:  "+v.KernelAfter)
		return v, cerr.Wrapf(ErrKernelMismatch, "before %q, after %q", v.KernelBefore, v.KernelAfter)
	}

	name := MarkerName(marker, st.Timestamp)
	if _, err := c.cfg.Markers.Mark(ctx, name, systemlog.MarkEnd, false); err != nil {
		log.Warn("Could not write end marker; searching to the end of the log", zap.Error(err))
	}
	section, err := c.cfg.Log.Section(ctx, name, false)
	if err != nil {
		return v, cerr.Wrap(err, "could not verify reboot")
	}

	v.Reboots = c.cfg.Log.CountBootBanners(section)
	if v.Reboots > maxReboots {
		say(ctx, fmt.Sprintf("%ssystem rebooted %d times", result.Fail.MessagePrefix(), v.Reboots))
		if maxReboots > 1 {
			say(ctx, fmt.Sprintf("Only %d reboots per test run are allowed.", maxReboots))
		}
		return v, cerr.Wrapf(ErrTooManyReboots, "%d boots seen, %d allowed", v.Reboots, maxReboots)
	}
	if v.Reboots == 0 {
		v.warn(ctx, "could not detect reboot")
	}

	v.Result = result.Pass
	if len(v.Warnings) > 0 {
		v.Result = result.Warn
	}
	say(ctx, "reboot verified or otherwise accepted")
	log.Info("Reboot verified",
		zap.Duration("duration", v.Duration),
		zap.Int("reboots", v.Reboots),
		zap.Strings("warnings", v.Warnings),
		zap.String("result", v.Result.String()))
	return v, nil
}

func (v *Verification) warn(ctx context.Context, msg string) {
	v.Warnings = append(v.Warnings, msg)
	say(ctx, result.Warn.MessagePrefix()+msg)
}

// Disarm removes the boot-time registration. It is safe to call repeatedly.
func (c *Continuation) Disarm(ctx context.Context) error {
	if err := c.cfg.Hooks.DisableAutostart(ctx); err != nil {
		return cerr.Wrap(err, "remove autostart")
	}
	return nil
}

// Discard drops an armed state without verifying it.
func (c *Continuation) Discard() error {
	return c.cfg.Store.Remove()
}

func say(ctx context.Context, msg string) {
	otelzap.Ctx(ctx).Info(logger.TerminalPrefix + " " + msg)
}
