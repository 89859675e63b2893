package service

import (
	"context"
)

// Boot bundles what a reboot continuation needs from the init system.
type Boot struct {
	Manager   *Manager
	Autostart *Autostart
	Systemd   bool
}

func (b *Boot) RestartJournal(ctx context.Context) error {
	return RestartJournal(ctx, b.Manager, b.Systemd)
}

func (b *Boot) EnableAutostart(ctx context.Context) error {
	return b.Autostart.Enable(ctx)
}

func (b *Boot) DisableAutostart(ctx context.Context) error {
	return b.Autostart.Disable(ctx)
}
