/* pkg/logger/paths.go */

package logger

import (
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
)

// PlatformLogPaths returns candidate log paths in order of priority.
func PlatformLogPaths() []string {
	return []string{
		shared.HwcertLogs, // best if running as root, which certification runs require
		shared.XDGStatePath(shared.HwcertID, "hwcert.log"),
		shared.HwcertLogsPWD,
		"/tmp/hwcert/hwcert.log",
	}
}
