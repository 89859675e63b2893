// Package hwtests registers the hardware tests shipped with hwcert.
package hwtests

import (
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtests/battery"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtests/lid"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtests/memory"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtests/reboot"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtests/sosreport"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtests/suspend"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/runner"
)

// Register adds every test to r. Reboot only runs when asked for.
func Register(r *runner.Registry) {
	r.Register(battery.Path, battery.New)
	r.Register(lid.Path, lid.New)
	r.Register(memory.Path, memory.New)
	r.Register(sosreport.Path, sosreport.New)
	r.Register(suspend.Path, suspend.New)
	r.RegisterExplicit(reboot.Path, reboot.New)
}

// Registry returns a registry holding every test.
func Registry() *runner.Registry {
	r := runner.NewRegistry()
	Register(r)
	return r
}
