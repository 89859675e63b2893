package service

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
)

// RestartJournal restarts systemd-journald so that entries written before a
// reboot are flushed to persistent storage. It is a no-op without systemd.
func RestartJournal(ctx context.Context, m *Manager, systemd bool) error {
	if !systemd {
		return nil
	}
	return m.Restart(ctx, shared.JournalService)
}
