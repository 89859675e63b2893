package hwtest

import (
	"context"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"mvdan.cc/sh/v3/shell"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/continuation"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/interaction"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/release"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/report"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/systemlog"
)

// Env is what a running test can reach.
type Env struct {
	RC           *hwcert_io.RuntimeContext
	Config       *config.Config
	Report       *report.Writer
	Runner       execute.Runner
	Log          *systemlog.Reader
	Emitter      *systemlog.Emitter
	Continuation *continuation.Continuation
	Release      release.Info
	// Prompter is nil when nobody is at the keyboard.
	Prompter *interaction.Prompter
	// LoadAverage returns the one-minute load; nil means the host's.
	LoadAverage func(ctx context.Context) (float64, error)
	Now         func() time.Time
}

func (e *Env) Ctx() context.Context {
	if e.RC == nil || e.RC.Ctx == nil {
		return context.Background()
	}
	return e.RC.Ctx
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Say writes a line to the operator transcript.
func (e *Env) Say(msg string) {
	otelzap.Ctx(e.Ctx()).Info(logger.TerminalPrefix + " " + msg)
}

// Confirm asks the operator a yes/no question.
func (e *Env) Confirm(message string) (bool, error) {
	if e.Prompter == nil {
		return false, cerr.WithHint(shared.ErrNotTTY, "interactive tests need a terminal")
	}
	return e.Prompter.Confirm(e.Ctx(), message)
}

// Exec runs a command and returns its combined output.
func (e *Env) Exec(command string, args ...string) (string, error) {
	return e.runner().Run(e.Ctx(), execute.Options{
		Command: command,
		Args:    args,
		Capture: true,
	})
}

// ExecLine splits line with shell quoting rules and runs it without a shell.
// Environment references are expanded from the process environment.
func (e *Env) ExecLine(line string) (string, error) {
	fields, err := shell.Fields(line, nil)
	if err != nil {
		return "", cerr.Wrapf(err, "parse command %q", line)
	}
	if len(fields) == 0 {
		return "", cerr.New("empty command")
	}
	return e.Exec(fields[0], fields[1:]...)
}

func (e *Env) runner() execute.Runner {
	if e.Runner == nil {
		return execute.Host{}
	}
	return e.Runner
}
