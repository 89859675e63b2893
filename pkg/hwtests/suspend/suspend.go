// Package suspend suspends the machine with each supported sleep state, once
// from the OS and once from the function key, and checks the kernel log for
// evidence of the suspend, the resume and the sleep state actually used.
package suspend

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/devices"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/systemlog"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/wait"
)

const Path = "suspend"

// Source is how the suspend is triggered.
type Source string

const (
	OSCommand   Source = "OSCommand"
	FunctionKey Source = "FunctionKey"
)

var Sources = []Source{OSCommand, FunctionKey}

const (
	msgFreezing   = "Freezing user space processes"
	msgRestarting = "Restarting tasks"
)

// Kernel messages that identify each sleep state.
type methodMessages struct {
	method  string
	start   string   // logged by systemd when the function key triggers it
	entries []string // logged by the kernel on entry
}

type Test struct {
	hwtest.Base
	methods []string
	// Delay before an OS-triggered suspend.
	Delay time.Duration

	memSleepReset bool
}

func New(_ *config.Config) hwtest.Test {
	return &Test{
		Base: hwtest.NewBase(hwtest.NewDescriptor(Path,
			hwtest.Description("Suspend and resume"),
			hwtest.Interactive(true),
			hwtest.Priority(5))),
		Delay: 5 * time.Second,
	}
}

func powerFile(env *hwtest.Env, name string) string {
	return filepath.Join(env.Config.SysfsRoot, "power", name)
}

// table lists the known sleep states in the order they are matched against
// the log. freeze only exists from release 8 on, and release 9 renamed the
// hibernation entry message.
func table(env *hwtest.Env) []methodMessages {
	hibernate := "PM: hibernation entry"
	if env.Release.AtLeast("9") {
		hibernate = "PM: hibernation: hibernation entry"
	}
	t := []methodMessages{
		{method: "mem", start: "Starting Suspend", entries: []string{"PM: suspend entry (deep)", "PM: Entering mem sleep"}},
		{method: "disk", start: "Starting Hibernate", entries: []string{hibernate, "PM: Creating hibernation image"}},
	}
	if env.Release.AtLeast("8") {
		t = append(t, methodMessages{method: "freeze", start: "Starting Freeze",
			entries: []string{"PM: suspend entry (s2idle)", "PM: Entering freeze sleep"}})
	}
	return t
}

// Methods returns the known sleep states the kernel offers. mem is left out
// when deep sleep is unavailable.
func Methods(env *hwtest.Env) []string {
	log := otelzap.Ctx(env.Ctx())
	data, err := os.ReadFile(powerFile(env, "state"))
	if err != nil {
		log.Warn("Could not read sleep states", zap.Error(err))
		return nil
	}

	var known []string
	for _, m := range table(env) {
		known = append(known, m.method)
	}
	var methods []string
	for _, state := range strings.Fields(string(data)) {
		if slices.Contains(known, state) && !slices.Contains(methods, state) {
			methods = append(methods, state)
		}
	}

	if slices.Contains(methods, "mem") {
		if ms, err := os.ReadFile(powerFile(env, "mem_sleep")); err == nil && !strings.Contains(string(ms), "deep") {
			env.Say(result.Warn.MessagePrefix() + "Removing suspend to memory option as `deep` is not present in `/sys/power/mem_sleep`")
			methods = slices.DeleteFunc(methods, func(m string) bool { return m == "mem" })
		}
	}
	if len(methods) == 0 {
		env.Say(result.Fail.MessagePrefix() + "could not determine allowable suspend methods")
	}
	return methods
}

// Plan yields one instance on battery-powered machines that can sleep.
func (t *Test) Plan(env *hwtest.Env) ([]hwtest.Test, error) {
	supplies, err := devices.PowerSupplies(env.Config.SysfsRoot)
	if err != nil {
		return nil, err
	}
	if !devices.HasBattery(supplies) {
		return nil, nil
	}
	methods := Methods(env)
	if len(methods) == 0 {
		return nil, nil
	}
	planned := *t
	planned.Base = hwtest.NewBase(t.Descriptor().With(hwtest.Param("methods", strings.Join(methods, " "))))
	planned.methods = methods
	return []hwtest.Test{&planned}, nil
}

func (t *Test) Run(env *hwtest.Env) (result.Level, error) {
	methods := t.methods
	if len(methods) == 0 {
		methods = Methods(env)
	}
	if len(methods) == 0 {
		return result.Fail, nil
	}

	overall := result.Pass
	for _, source := range Sources {
		for _, method := range methods {
			name := fmt.Sprintf("Suspend %s-%s", source, method)
			level, err := hwtest.RunSubTest(env, name, "", func() (result.Level, error) {
				return t.suspendResume(env, source, method)
			})
			if err != nil {
				return result.Fail, err
			}
			overall.Combine(level)
		}
	}

	if overall.Passed() {
		env.Say("Suspend test PASSED")
	} else {
		env.Say("Suspend test FAILED")
	}
	return overall, nil
}

func (t *Test) markerName(source Source, method string) string {
	return fmt.Sprintf("%s-%s-%s", t.Descriptor().Path(), source, method)
}

func (t *Test) suspendResume(env *hwtest.Env, source Source, method string) (result.Level, error) {
	defer t.restoreMemSleep(env)

	triggered, err := t.suspend(env, source, method)
	if err != nil {
		return result.Fail, err
	}
	if triggered {
		return t.checkResume(env, source, method)
	}
	if source == FunctionKey {
		// Not every machine has a suspend key; declining is not a failure.
		return result.Pass, nil
	}
	return result.Fail, nil
}

// suspend reports whether a suspend was triggered or is about to be.
func (t *Test) suspend(env *hwtest.Env, source Source, method string) (bool, error) {
	ctx := env.Ctx()
	env.Say("This test will suspend the operating system.")
	env.Say("Please resume by pressing the power button after suspend has completed.")
	if _, err := env.Emitter.Mark(ctx, t.markerName(source, method), systemlog.MarkBegin, true); err != nil {
		return false, err
	}

	switch source {
	case OSCommand:
		ok, err := env.Confirm(" suspend? ")
		if err != nil || !ok {
			return false, err
		}
		env.Say(fmt.Sprintf("Suspending in %d sec", int(t.Delay.Seconds())))
		if err := wait.Sleep(ctx, t.Delay); err != nil {
			return false, err
		}
		return true, t.writeState(env, method)

	case FunctionKey:
		ok, err := env.Confirm(fmt.Sprintf("Does this system have a function key (Fn) to suspend the system to %s?", method))
		if err != nil {
			return false, err
		}
		if !ok {
			env.Say(result.Warn.MessagePrefix() + "suspend test to " + method + " not run from function key")
			return false, nil
		}
		return env.Confirm(fmt.Sprintf("Are you ready to press the function key (Fn) to suspend the system to %s. "+
			"Answer the question and then press the function key (Fn) if you want to suspend the system", method))
	}
	return false, cerr.Newf("unknown suspend source %q", source)
}

// writeState suspends by writing method to /sys/power/state. For mem, an
// s2idle default is switched to deep first and restored afterwards.
func (t *Test) writeState(env *hwtest.Env, method string) error {
	memSleep := powerFile(env, "mem_sleep")
	if method == "mem" {
		if data, err := os.ReadFile(memSleep); err == nil && strings.Contains(string(data), "[s2idle]") {
			if err := os.WriteFile(memSleep, []byte("deep"), 0); err != nil {
				otelzap.Ctx(env.Ctx()).Warn("Could not select deep sleep", zap.Error(err))
			} else {
				t.memSleepReset = true
			}
		}
	}
	if err := os.WriteFile(powerFile(env, "state"), []byte(method), 0); err != nil {
		env.Say(result.Fail.MessagePrefix() + "could not suspend the system")
		return cerr.Wrapf(err, "suspend to %s", method)
	}
	return nil
}

func (t *Test) restoreMemSleep(env *hwtest.Env) {
	if !t.memSleepReset {
		return
	}
	if err := os.WriteFile(powerFile(env, "mem_sleep"), []byte("s2idle"), 0); err != nil {
		otelzap.Ctx(env.Ctx()).Warn("Could not restore s2idle", zap.Error(err))
		return
	}
	t.memSleepReset = false
}

func (t *Test) checkResume(env *hwtest.Env, source Source, method string) (result.Level, error) {
	ctx := env.Ctx()
	log := otelzap.Ctx(ctx)

	if _, err := env.Confirm("Has resume completed? "); err != nil {
		return result.Fail, err
	}
	name := t.markerName(source, method)
	end, err := env.Emitter.Mark(ctx, name, systemlog.MarkEnd, true)
	if err != nil {
		return result.Fail, err
	}
	if err := env.Log.WaitFor(ctx, end); err != nil {
		log.Warn("End marker not in the log yet; checking what is there", zap.Error(err))
	}
	section, err := env.Log.Section(ctx, name, true)
	if err != nil {
		return result.Fail, err
	}

	known := table(env)
	if source == FunctionKey {
		i := slices.IndexFunc(known, func(m methodMessages) bool { return m.method == method })
		if i < 0 {
			env.Say(result.Fail.MessagePrefix() + "unknown suspend method " + method)
			return result.Fail, nil
		}
		if !strings.Contains(section, known[i].start) {
			env.Say(result.Fail.MessagePrefix() + "could not verify suspend")
			return result.Fail, nil
		}
	}

	if !strings.Contains(section, msgFreezing) {
		env.Say(result.Fail.MessagePrefix() + "could not verify suspend")
		return result.Fail, nil
	}
	env.Say("Verified suspend")
	if !strings.Contains(section, msgRestarting) {
		env.Say(result.Fail.MessagePrefix() + "could not verify resume")
		return result.Fail, nil
	}

	verified := ""
	for _, m := range known {
		for _, msg := range m.entries {
			if strings.Contains(section, msg) {
				verified = m.method
				env.Say(fmt.Sprintf("Found '%s' in log messages", msg))
				break
			}
		}
		if verified != "" {
			break
		}
	}
	switch {
	case verified == "":
		env.Say(result.Fail.MessagePrefix() + "No valid suspend method found in logs")
		return result.Fail, nil
	case verified != method:
		env.Say(fmt.Sprintf("%sThe suspend method was %s and should have been %s", result.Fail.MessagePrefix(), verified, method))
		return result.Fail, nil
	}
	env.Say("Verified resume from " + verified)
	return result.Pass, nil
}
