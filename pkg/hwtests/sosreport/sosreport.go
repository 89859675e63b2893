// Package sosreport generates a full system report with sos and checks that
// a tarball small enough to attach came out of it.
package sosreport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
)

const (
	Path = "sosreport"

	// Per-plugin log collection limit, in MB.
	pluginLogSizeMB = 50
	// Largest tarball that can still be attached to a submission.
	maxAttachmentSize = 500 * 1024 * 1024
)

type Test struct {
	hwtest.Base
	// Command generates the report; the tarball lands in --tmp-dir.
	Command []string
}

func New(_ *config.Config) hwtest.Test {
	return &Test{
		Base: hwtest.NewBase(hwtest.NewDescriptor(Path,
			hwtest.Description("System report generation"),
			hwtest.Priority(9))),
		Command: []string{"sosreport", "--batch",
			"-n", "selinux", "-n", "logs",
			"--log-size", fmt.Sprint(pluginLogSizeMB),
			"-k", "rpm.rpmva=off"},
	}
}

func (t *Test) RequiredPackages() []string { return []string{"sos"} }

func (t *Test) HarmfulPackages() []string { return nil }

func (t *Test) Run(env *hwtest.Env) (result.Level, error) {
	dir := filepath.Join(env.Config.Workdir, Path)
	level, err := hwtest.RunSubTest(env, "Sosreport generation", "generate full system report", func() (result.Level, error) {
		return t.generate(env, dir)
	})
	if rmErr := os.RemoveAll(dir); rmErr != nil {
		otelzap.Ctx(env.Ctx()).Warn("Could not clean up the system report", zap.String("dir", dir), zap.Error(rmErr))
	}
	if err != nil {
		return result.Fail, err
	}
	if level.Passed() {
		env.Say("Sosreport test PASSED")
	} else {
		env.Say("Sosreport test FAILED")
	}
	return level, nil
}

func (t *Test) generate(env *hwtest.Env, dir string) (result.Level, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return result.Fail, cerr.Wrapf(err, "create %s", dir)
	}
	env.Say("Generating System Report(sosreport). It may take a while. Please wait ...")
	args := append(append([]string{}, t.Command[1:]...), "--tmp-dir", dir)
	if out, err := env.Exec(t.Command[0], args...); err != nil {
		otelzap.Ctx(env.Ctx()).Warn("System report generation failed", zap.String("output", out), zap.Error(err))
		env.Say(result.Fail.MessagePrefix() + "sosreport failed: " + err.Error())
		return result.Fail, nil
	}

	tarballs, err := filepath.Glob(filepath.Join(dir, "sosreport-*.tar.xz"))
	if err != nil {
		return result.Fail, cerr.Wrap(err, "find system report")
	}
	if len(tarballs) == 0 {
		env.Say(result.Fail.MessagePrefix() + "sosreport produced no tarball")
		return result.Fail, nil
	}
	env.Say("Script generated files: " + strings.Join(tarballs, " "))

	level := result.Pass
	for _, tb := range tarballs {
		info, err := os.Stat(tb)
		if err != nil {
			return result.Fail, cerr.Wrapf(err, "stat %s", tb)
		}
		if info.Size() > maxAttachmentSize {
			env.Say(fmt.Sprintf("%ssosreport is %d MB, and too large to attach (Max size: %d MB)",
				result.Fail.MessagePrefix(), info.Size()/(1024*1024), maxAttachmentSize/(1024*1024)))
			level = result.Fail
		}
	}
	return level, nil
}
