// Package memory measures RAM and swap and runs a stress command sized a
// little beyond free memory, so that the run pushes into swap.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
)

const (
	Path = "memory"
	// SizePlaceholder in the configured command is replaced by the test size in MB.
	SizePlaceholder = "{size}"

	mib = 1024 * 1024
	// Cap on how far beyond free memory the test reaches.
	maxOvershootMB = 1024
	// 32-bit address space limit for a single process.
	processLimitMB = 1024
)

var limitedArches = []string{"i386", "i686", "s390"}

// Info is what the limits sub-test learned about the machine.
type Info struct {
	SystemMB  uint64
	FreeMB    uint64
	SwapMB    uint64
	ProcessMB uint64
	Limited   bool
	NFSRoot   bool
}

type Test struct {
	hwtest.Base
	command string

	VirtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	SwapMemory    func(ctx context.Context) (*mem.SwapMemoryStat, error)
	Partitions    func(ctx context.Context, all bool) ([]disk.PartitionStat, error)
}

func New(cfg *config.Config) hwtest.Test {
	return &Test{
		Base: hwtest.NewBase(hwtest.NewDescriptor(Path,
			hwtest.Description("Memory and swap stress"),
			hwtest.Priority(5))),
		command:       cfg.Memory.Command,
		VirtualMemory: mem.VirtualMemoryWithContext,
		SwapMemory:    mem.SwapMemoryWithContext,
		Partitions:    disk.PartitionsWithContext,
	}
}

// RequiredPackages installs the stress command's program.
func (t *Test) RequiredPackages() []string {
	fields := strings.Fields(t.command)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "/") || strings.HasPrefix(fields[0], ".") {
		return nil
	}
	return fields[:1]
}

func (t *Test) HarmfulPackages() []string { return nil }

func (t *Test) Run(env *hwtest.Env) (result.Level, error) {
	var info Info
	limits, err := hwtest.RunSubTest(env, "Memory limits", "get test parameters based on hardware", func() (result.Level, error) {
		var err error
		info, err = t.limits(env)
		if err != nil {
			return result.Fail, err
		}
		return result.FromBool(info.SystemMB > 0), nil
	})
	if err != nil || !limits.Passed() {
		env.Say("Memory test FAILED")
		return result.Fail, err
	}

	stressed, err := hwtest.RunSubTest(env, "Memory main", "proceed main memory test", func() (result.Level, error) {
		return t.stress(env, info)
	})
	if err != nil || !stressed.Passed() {
		env.Say("Memory test FAILED")
		return result.Fail, err
	}
	env.Say("Memory test PASSED")
	return result.Worst(limits, stressed), nil
}

func (t *Test) limits(env *hwtest.Env) (Info, error) {
	ctx := env.Ctx()
	vm, err := t.VirtualMemory(ctx)
	if err != nil {
		return Info{}, cerr.Wrap(err, "read memory statistics")
	}
	swap, err := t.SwapMemory(ctx)
	if err != nil {
		return Info{}, cerr.Wrap(err, "read swap statistics")
	}

	info := Info{
		SystemMB: vm.Total / mib,
		FreeMB:   (vm.Free + vm.Cached + vm.Buffers) / mib,
		SwapMB:   swap.Total / mib,
		NFSRoot:  t.nfsRoot(ctx),
	}
	info.ProcessMB = info.FreeMB

	report := func(s string) {
		env.Say(s)
		_ = env.Report.Line(s)
	}
	report(fmt.Sprintf("System Memory: %d MB", info.SystemMB))
	report(fmt.Sprintf("Free Memory: %d MB", info.FreeMB))
	report(fmt.Sprintf("Swap Memory: %d MB", info.SwapMB))

	if info.SystemMB == 0 {
		env.Say(result.Fail.MessagePrefix() + "could not determine system RAM")
		return info, nil
	}
	if slices.Contains(limitedArches, env.Release.Arch) && info.FreeMB > processLimitMB {
		info.Limited = true
		info.ProcessMB = processLimitMB
		report(fmt.Sprintf("%s arch, Limiting Process Memory: %d", env.Release.Arch, info.ProcessMB))
	}
	return info, nil
}

func (t *Test) nfsRoot(ctx context.Context) bool {
	parts, err := t.Partitions(ctx, true)
	if err != nil {
		otelzap.Ctx(ctx).Debug("Could not list mounts", zap.Error(err))
		return false
	}
	for _, p := range parts {
		if p.Mountpoint == "/" && strings.HasPrefix(p.Fstype, "nfs") {
			return true
		}
	}
	return false
}

// Size is free memory plus the lesser of 5% of it or 1 GB, in MB.
func Size(info Info) uint64 {
	return info.ProcessMB + min(info.ProcessMB*5/100, maxOvershootMB)
}

func (t *Test) stress(env *hwtest.Env, info Info) (result.Level, error) {
	size := Size(info)
	env.Say("Starting Memory Test")

	// Diskless machines without swap run the stress within RAM.
	if !(info.NFSRoot && info.SwapMB == 0) {
		if info.SwapMB == 0 {
			env.Say(result.Fail.MessagePrefix() + "this test requires non-zero swap memory.")
			return result.Fail, nil
		}
		if size > info.SystemMB+info.SwapMB {
			env.Say(fmt.Sprintf("%sthis test requires a minimum of %d MB of swap memory (%d configured)",
				result.Fail.MessagePrefix(), size-info.SystemMB, info.SwapMB))
			return result.Fail, nil
		}
	} else {
		size = info.ProcessMB
	}

	line := strings.ReplaceAll(t.command, SizePlaceholder, strconv.FormatUint(size, 10))
	env.Say(fmt.Sprintf("running %q at %d MB", line, size))
	out, err := env.ExecLine(line)
	if err != nil {
		env.Say(result.Fail.MessagePrefix() + "memory stress command failed")
		otelzap.Ctx(env.Ctx()).Error("Memory stress failed", zap.String("command", line), zap.String("output", out), zap.Error(err))
		return result.Fail, nil
	}
	env.Say("done.")
	return result.Pass, nil
}
