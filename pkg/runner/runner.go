// Package runner plans, orders and runs hardware tests and records the
// outcome of each instance.
package runner

import (
	"fmt"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/telemetry"
)

// Record is the outcome of one test instance.
type Record struct {
	Path     string        `yaml:"path"`
	Suite    string        `yaml:"suite"`
	Name     string        `yaml:"name"`
	Result   result.Level  `yaml:"result"`
	Duration time.Duration `yaml:"duration"`
	Error    string        `yaml:"error,omitempty"`
}

type Runner struct {
	env *hwtest.Env
	// RunID tags the report and summary; New fills it with a UUID.
	RunID string
}

func New(env *hwtest.Env) *Runner {
	return &Runner{env: env, RunID: uuid.NewString()}
}

// Run installs required packages, plans every test, orders the instances
// and runs them one after another. A failing test is recorded as FAIL and
// the run moves on; the returned error aggregates every failure.
func (r *Runner) Run(tests []hwtest.Test) (Summary, error) {
	log := otelzap.Ctx(r.env.Ctx())
	sum := Summary{RunID: r.RunID, Started: r.now()}
	var errs *multierror.Error

	if err := r.preparePackages(tests); err != nil {
		errs = multierror.Append(errs, err)
	}

	var instances []hwtest.Test
	for _, t := range tests {
		planned, err := r.plan(t)
		if err != nil {
			d := t.Descriptor()
			sum.Records = append(sum.Records, failedRecord(d, 0, err))
			errs = multierror.Append(errs, cerr.Wrapf(err, "plan %s", d.Path()))
			continue
		}
		instances = append(instances, planned...)
	}
	Order(instances)

	log.Info("Running tests", zap.String("run_id", r.RunID), zap.Int("instances", len(instances)))
	for _, t := range instances {
		rec := r.runOne(t)
		if rec.Error != "" {
			errs = multierror.Append(errs, cerr.Newf("%s: %s", rec.Path, rec.Error))
		}
		sum.Records = append(sum.Records, rec)
	}

	sum.Finished = r.now()
	sum.Overall = sum.Combined()
	log.Info("Run finished",
		zap.String("run_id", r.RunID),
		zap.String("overall", sum.Overall.String()),
		zap.Duration("duration", sum.Finished.Sub(sum.Started)))
	return sum, errs.ErrorOrNil()
}

func (r *Runner) plan(t hwtest.Test) ([]hwtest.Test, error) {
	p, ok := t.(hwtest.Planner)
	if !ok {
		return []hwtest.Test{t}, nil
	}
	planned, err := p.Plan(r.env)
	if err != nil {
		return nil, err
	}
	if len(planned) > 0 {
		return planned, nil
	}

	d := t.Descriptor()
	otelzap.Ctx(r.env.Ctx()).Info("Test planned no instances", zap.String("test", d.Path()))
	adder, ok := t.(hwtest.Adder)
	if !ok || r.env.Prompter == nil {
		return nil, nil
	}
	add, err := r.env.Confirm(fmt.Sprintf("No hardware found for %s. Add one manually?", d.Name()))
	if err != nil || !add {
		return nil, err
	}
	manual, err := adder.Add(r.env)
	if err != nil {
		return nil, err
	}
	return []hwtest.Test{manual}, nil
}

func (r *Runner) runOne(t hwtest.Test) (rec Record) {
	d := t.Descriptor()
	ctx, span := telemetry.Start(r.env.Ctx(), "hwcert.test",
		attribute.String("hwcert.test.path", d.Path()),
		attribute.Bool("hwcert.test.interactive", d.IsInteractive()))
	defer span.End()

	env := *r.env
	if r.env.RC != nil {
		rc := *r.env.RC
		rc.Ctx = ctx
		env.RC = &rc
	}
	log := otelzap.Ctx(ctx)
	log.Info("Starting test", zap.String("test", d.Path()), zap.Int("priority", d.Priority()))
	defer func() { telemetry.RecordTest(ctx, rec.Path, rec.Result.String(), rec.Duration) }()

	level, took, err := hwtest.Timed(&env, func() (level result.Level, err error) {
		defer func() {
			if p := recover(); p != nil {
				level, err = result.Fail, cerr.AssertionFailedf("test panicked: %v", p)
			}
		}()
		return r.lifecycle(&env, t)
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Test failed", zap.String("test", d.Path()), zap.Error(err))
		return failedRecord(d, took, err)
	}
	if r.env.Report != nil && r.env.Report.IsOpen() {
		// A test that left a block open still gets its markup closed.
		_ = r.env.Report.Close()
	}
	span.SetAttributes(attribute.String("hwcert.test.result", level.String()))
	log.Info("Test finished",
		zap.String("test", d.Path()),
		zap.String("result", level.String()),
		zap.Duration("duration", took))
	return Record{Path: d.Path(), Suite: d.Suite(), Name: d.Name(), Result: level, Duration: took}
}

func (r *Runner) lifecycle(env *hwtest.Env, t hwtest.Test) (result.Level, error) {
	if s, ok := t.(hwtest.Starter); ok {
		if err := s.Start(env); err != nil {
			return result.Fail, cerr.Wrap(err, "start")
		}
	}
	level, runErr := t.Run(env)
	if f, ok := t.(hwtest.Finisher); ok {
		if err := f.Finish(env); err != nil {
			runErr = cerr.CombineErrors(runErr, cerr.Wrap(err, "finish"))
		}
	}
	if runErr != nil {
		return result.Fail, runErr
	}
	return level, nil
}

func failedRecord(d hwtest.Descriptor, took time.Duration, err error) Record {
	return Record{
		Path:     d.Path(),
		Suite:    d.Suite(),
		Name:     d.Name(),
		Result:   result.Fail,
		Duration: took,
		Error:    err.Error(),
	}
}

// preparePackages installs what the tests need and warns about packages
// known to interfere with them.
func (r *Runner) preparePackages(tests []hwtest.Test) error {
	log := otelzap.Ctx(r.env.Ctx())
	var required, harmful []string
	seen := map[string]bool{}
	for _, t := range tests {
		pr, ok := t.(hwtest.PackageRequirer)
		if !ok {
			continue
		}
		for _, p := range pr.RequiredPackages() {
			if !seen[p] {
				seen[p] = true
				required = append(required, p)
			}
		}
		harmful = append(harmful, pr.HarmfulPackages()...)
	}

	for _, p := range harmful {
		if _, err := r.env.Exec("rpm", "-q", p); err == nil {
			log.Warn("Installed package may interfere with testing", zap.String("package", p))
			r.env.Say(result.Warn.MessagePrefix() + "package " + p + " is installed and may interfere with testing")
		}
	}

	if len(required) == 0 {
		return nil
	}
	pm := r.env.Config.PackageManager
	log.Info("Installing required packages", zap.String("manager", pm), zap.Strings("packages", required))
	args := append([]string{"install", "-y"}, required...)
	if _, err := r.env.Exec(pm, args...); err != nil {
		return cerr.WithHint(cerr.Wrapf(err, "install %s", strings.Join(required, " ")),
			"install the packages by hand and rerun")
	}
	return nil
}

func (r *Runner) now() time.Time {
	if r.env.Now != nil {
		return r.env.Now()
	}
	return time.Now()
}
