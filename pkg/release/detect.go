package release

import (
	"context"
	"os"

	cerr "github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// DefaultReleaseFile is read by Detect when present.
const DefaultReleaseFile = "/etc/redhat-release"

// Info describes the running system.
type Info struct {
	Release
	Kernel          string
	Arch            string
	Platform        string
	PlatformFamily  string
	PlatformVersion string
}

// AtLeast uses the release file version, or the platform version reported by
// the host when no release file could be parsed.
func (i Info) AtLeast(min string) bool {
	if i.Release.Valid {
		return i.Release.AtLeast(min)
	}
	return versionAtLeast(i.PlatformVersion, min)
}

// UsesSystemd reports whether services are managed by systemd rather than
// SysV init scripts.
func (i Info) UsesSystemd() bool {
	if !i.Release.Valid && i.PlatformVersion == "" {
		return true
	}
	return i.AtLeast("7")
}

// Detector gathers Info. The zero value reads the real host.
type Detector struct {
	ReleaseFile string
	HostInfo    func(ctx context.Context) (*host.InfoStat, error)
}

// Detect gathers Info from the local host.
func Detect(ctx context.Context) (Info, error) {
	return Detector{}.Detect(ctx)
}

func (d Detector) Detect(ctx context.Context) (Info, error) {
	logger := otelzap.Ctx(ctx)

	hostInfo := d.HostInfo
	if hostInfo == nil {
		hostInfo = host.InfoWithContext
	}
	path := d.ReleaseFile
	if path == "" {
		path = DefaultReleaseFile
	}

	hi, err := hostInfo(ctx)
	if err != nil {
		return Info{}, cerr.Wrap(err, "read host information")
	}

	info := Info{
		Kernel:          hi.KernelVersion,
		Arch:            hi.KernelArch,
		Platform:        hi.Platform,
		PlatformFamily:  hi.PlatformFamily,
		PlatformVersion: hi.PlatformVersion,
	}

	if data, err := os.ReadFile(path); err == nil {
		info.Release = Parse(string(data))
	} else if !os.IsNotExist(err) {
		logger.Warn("Could not read release file", zap.String("path", path), zap.Error(err))
	}

	logger.Debug("Detected release",
		zap.String("product", info.Product),
		zap.String("version", info.VersionString()),
		zap.String("kernel", info.Kernel),
		zap.String("platform", info.Platform),
		zap.String("platform_version", info.PlatformVersion),
	)
	return info, nil
}

// Kernel returns the running kernel release, as uname -r prints it.
func Kernel(ctx context.Context) (string, error) {
	k, err := host.KernelVersionWithContext(ctx)
	if err != nil {
		return "", cerr.Wrap(err, "read kernel version")
	}
	return k, nil
}

// Kernel is the package-level Kernel, answered from HostInfo when set.
func (d Detector) Kernel(ctx context.Context) (string, error) {
	if d.HostInfo == nil {
		return Kernel(ctx)
	}
	hi, err := d.HostInfo(ctx)
	if err != nil {
		return "", cerr.Wrap(err, "read kernel version")
	}
	return hi.KernelVersion, nil
}
