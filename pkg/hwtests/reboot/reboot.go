// Package reboot restarts the machine and, when hwcert comes back up, checks
// that the reboot happened in time, on the same kernel and exactly once.
package reboot

import (
	"context"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/wait"
)

const (
	Path   = "reboot"
	Method = "reboot"
)

var ErrShutdownTimeout = cerr.New("shutdown took too long")

type Test struct {
	hwtest.Base
	maxReboots int
}

func New(cfg *config.Config) hwtest.Test {
	return &Test{
		Base: hwtest.NewBase(hwtest.NewDescriptor(Path,
			hwtest.Description("Reboot and verify the restart"),
			hwtest.Priority(10))),
		maxReboots: cfg.MaxReboots,
	}
}

// Pending reports whether a reboot is waiting to be verified.
func (t *Test) Pending(env *hwtest.Env) bool {
	return env.Continuation.IsArmed()
}

func (t *Test) Run(env *hwtest.Env) (result.Level, error) {
	if env.Continuation.IsArmed() {
		return t.verify(env)
	}
	return t.reboot(env)
}

func (t *Test) verify(env *hwtest.Env) (result.Level, error) {
	ctx := env.Ctx()
	level, err := hwtest.RunSubTest(env, "Reboot", "", func() (result.Level, error) {
		v, err := env.Continuation.Verify(ctx, t.Descriptor().Path(), t.maxReboots)
		return v.Result, err
	})
	if derr := env.Continuation.Disarm(ctx); derr != nil {
		otelzap.Ctx(ctx).Warn("Could not remove boot-time registration", zap.Error(derr))
	}
	if err != nil {
		return result.Fail, err
	}
	env.Say("Reboot test " + verdict(level))
	return level, nil
}

func (t *Test) reboot(env *hwtest.Env) (result.Level, error) {
	ctx := env.Ctx()
	log := otelzap.Ctx(ctx)
	cfg := env.Config

	env.Say("The system must be restarted for this test")
	if _, err := env.Continuation.Arm(ctx, t.Descriptor().Path(), Method); err != nil {
		return result.Fail, cerr.Wrap(err, "prepare reboot")
	}

	if err := hwtest.WaitForLull(env); err != nil {
		log.Warn("System did not go idle; rebooting anyway", zap.Error(err))
	}

	out, err := env.ExecLine(cfg.RebootCommand)
	if out != "" {
		env.Say(out)
	}
	if err != nil {
		t.abandon(ctx, env)
		return result.Fail, cerr.Wrapf(err, "run %q", cfg.RebootCommand)
	}

	env.Say("Waiting for shutdown...")
	if err := wait.Sleep(ctx, cfg.ShutdownWait); err != nil {
		// Shutdown is underway and took the process with it.
		log.Info("Interrupted while waiting for shutdown", zap.Error(err))
		return result.Fail, cerr.Wrap(err, "waiting for shutdown")
	}
	env.Say(result.Fail.MessagePrefix() + ErrShutdownTimeout.Error())
	t.abandon(ctx, env)
	return result.Fail, ErrShutdownTimeout
}

// abandon drops the armed state when the reboot never happened.
func (t *Test) abandon(ctx context.Context, env *hwtest.Env) {
	log := otelzap.Ctx(ctx)
	if err := env.Continuation.Discard(); err != nil {
		log.Warn("Could not remove reboot state", zap.Error(err))
	}
	if err := env.Continuation.Disarm(ctx); err != nil {
		log.Warn("Could not remove boot-time registration", zap.Error(err))
	}
}

func verdict(level result.Level) string {
	if level.Passed() {
		return "PASSED"
	}
	return "FAILED"
}
