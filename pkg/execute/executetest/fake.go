// Package executetest provides a scripted execute.Runner for tests.
package executetest

import (
	"context"
	"strings"
	"sync"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/execute"
)

// Response is what the fake returns for a matching command line.
type Response struct {
	Output string
	Err    error
}

// Fake records every invocation and answers from a table keyed by the
// command line ("systemctl restart systemd-journald"). A key may also be just
// the program name to match any arguments. Unmatched commands succeed with
// empty output.
type Fake struct {
	mu        sync.Mutex
	responses map[string]Response
	Calls     []execute.Options
	// Hook, when set, runs before the lookup.
	Hook func(opts execute.Options)
}

func New() *Fake {
	return &Fake{responses: map[string]Response{}}
}

// On registers the response for a command line.
func (f *Fake) On(cmdline string, output string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmdline] = Response{Output: output, Err: err}
	return f
}

func (f *Fake) Run(_ context.Context, opts execute.Options) (string, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, opts)
	hook := f.Hook
	resp, ok := f.responses[Line(opts)]
	if !ok {
		resp = f.responses[opts.Command]
	}
	f.mu.Unlock()

	if hook != nil {
		hook(opts)
	}
	return resp.Output, resp.Err
}

// Lines returns the recorded command lines in call order.
func (f *Fake) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		out = append(out, Line(c))
	}
	return out
}

// Line renders opts as "command arg1 arg2".
func Line(opts execute.Options) string {
	return strings.TrimSpace(opts.Command + " " + strings.Join(opts.Args, " "))
}
