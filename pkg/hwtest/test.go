// Package hwtest defines the contract every hardware test implements and
// the helpers tests share: sub-test report blocks, disk sync and waiting for
// the machine to go quiet.
//
// A test is constructed once with defaults, optionally planned into zero or
// more hardware-bound instances, and each instance is started, run and
// finished in turn by the runner.
package hwtest

import "github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"

// Test is one runnable instance.
type Test interface {
	Descriptor() Descriptor
	Run(env *Env) (result.Level, error)
}

// Planner expands a test into instances bound to discovered hardware.
// Tests without a Plan method run once as themselves.
type Planner interface {
	Plan(env *Env) ([]Test, error)
}

type Starter interface {
	Start(env *Env) error
}

type Finisher interface {
	Finish(env *Env) error
}

// Adder lets the operator insert an instance by hand, for hardware the
// plan could not discover.
type Adder interface {
	Add(env *Env) (Test, error)
}

// PackageRequirer lists packages that must, or must not, be installed
// before the test runs.
type PackageRequirer interface {
	RequiredPackages() []string
	HarmfulPackages() []string
}

// Base carries the descriptor for embedding in concrete tests.
type Base struct {
	desc Descriptor
}

func NewBase(d Descriptor) Base { return Base{desc: d} }

func (b Base) Descriptor() Descriptor { return b.desc }

// Continuer is a test that spans a reboot. Pending reports whether it has
// armed state waiting to be verified.
type Continuer interface {
	Pending(env *Env) bool
}
