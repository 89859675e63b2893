package hwtest

import (
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
)

// RunSubTest runs one reportable phase inside its own report block. The
// block is closed whatever fn returns; an error is summarised as FAIL and
// handed back so the caller can abort the test.
func RunSubTest(env *Env, name, description string, fn func() (result.Level, error)) (result.Level, error) {
	log := otelzap.Ctx(env.Ctx())

	if err := env.Report.Begin(name, description); err != nil {
		return result.Fail, err
	}
	env.Say("")
	env.Say(name + ": " + description)

	start := env.now()
	level, runErr := fn()
	if runErr != nil {
		level = result.Fail
		env.Say(result.Fail.MessagePrefix() + runErr.Error())
	}

	log.Info("Sub-test finished",
		zap.String("name", name),
		zap.String("result", level.String()),
		zap.Duration("duration", env.now().Sub(start)),
		zap.Error(runErr))

	if err := env.Report.Summary(level); err != nil {
		return result.Fail, cerr.CombineErrors(runErr, err)
	}
	if err := env.Report.Close(); err != nil {
		return result.Fail, cerr.CombineErrors(runErr, err)
	}
	return level, runErr
}

// Timed returns how long fn took alongside its outcome.
func Timed(env *Env, fn func() (result.Level, error)) (result.Level, time.Duration, error) {
	start := env.now()
	level, err := fn()
	return level, env.now().Sub(start), err
}
