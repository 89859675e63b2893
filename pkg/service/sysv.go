package service

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/execute"
	cerr "github.com/cockroachdb/errors"
)

// SysV registers init scripts with chkconfig on releases before systemd.
type SysV struct {
	runner execute.Runner
}

func NewSysV(runner execute.Runner) *SysV {
	if runner == nil {
		runner = execute.Host{}
	}
	return &SysV{runner: runner}
}

func (s *SysV) Add(ctx context.Context, name string) error {
	return s.chkconfig(ctx, "--add", name)
}

func (s *SysV) Del(ctx context.Context, name string) error {
	return s.chkconfig(ctx, "--del", name)
}

func (s *SysV) chkconfig(ctx context.Context, flag, name string) error {
	if _, err := s.runner.Run(ctx, execute.Options{
		Command: "chkconfig",
		Args:    []string{flag, name},
		Capture: true,
	}); err != nil {
		return cerr.Wrapf(err, "chkconfig %s %s", flag, name)
	}
	return nil
}
