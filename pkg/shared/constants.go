// pkg/shared/constants.go

package shared

import (
	"os"
	"path/filepath"
)

const (
	HwcertID = "hwcert"

	HwcertLogDir  = "/var/log/hwcert/"
	HwcertLogs    = HwcertLogDir + "hwcert.log"
	HwcertLogsPWD = "./hwcert.log"

	HwcertConfigDir  = "/etc/hwcert"
	HwcertConfigFile = HwcertConfigDir + "/hwcert.yaml"
	HwcertEnvPrefix  = "HWCERT"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

const (
	// Persisted reboot continuation record. Its presence means a reboot is in flight.
	DefaultStatePath = "/bootprint"

	DefaultStaticLogPath = "/var/log/messages"
	DefaultReportPath    = "output.html"
	DefaultSummaryPath   = "results.yaml"

	// Prefix embedded in every marker written to the system log.
	DefaultLogMarker = "hwcert/runtests"
	// Phrase the kernel prints once per boot.
	DefaultBootMarker = "Linux version"
	DefaultKernelTag  = "kernel:"

	DefaultUnitDir        = "/etc/systemd/system"
	DefaultPackageManager = "dnf"
	JournalService        = "systemd-journald"
)

const (
	DirPermStandard        = 0755
	FilePermOwnerRWX       = 0700
	FilePermStandard       = 0644
	FilePermOwnerReadWrite = 0600
)

// XDGStatePath returns $XDG_STATE_HOME/<app>/<file>, defaulting to ~/.local/state.
func XDGStatePath(app, file string) string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(base, app, file)
}
