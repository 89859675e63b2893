// pkg/shared/vars.go

package shared

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrNotTTY = errors.New("cannot prompt: not a TTY")
)

var syncedAlready atomic.Bool

// SafeSync flushes the global logger once per process.
func SafeSync() {
	if syncedAlready.Swap(true) {
		return
	}
	_ = zap.L().Sync()
}
