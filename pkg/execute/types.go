// pkg/execute/types.go

package execute

import (
	"context"
	"time"

	"go.uber.org/zap"
)

var (
	// DefaultLogger is used when Options.Logger is nil.
	DefaultLogger *zap.Logger
	// DefaultDryRun forces every Run into dry-run mode.
	DefaultDryRun bool
)

// Options describes one external command invocation.
type Options struct {
	Command string
	Args    []string
	Dir     string
	Env     []string // appended to the current environment
	Stdin   string

	// Capture returns combined output instead of streaming it to stdout.
	Capture bool
	Shell   bool // refused; kept so callers get an explicit error
	DryRun  bool

	Timeout time.Duration // default 30s
	Retries int
	Delay   time.Duration

	Logger *zap.Logger
}

// Runner runs external commands. Packages that shell out accept a Runner so
// tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, opts Options) (string, error)
}

// Host runs commands on the local machine.
type Host struct{}

func (Host) Run(ctx context.Context, opts Options) (string, error) {
	return Run(ctx, opts)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, opts Options) (string, error)

func (f RunnerFunc) Run(ctx context.Context, opts Options) (string, error) {
	return f(ctx, opts)
}
