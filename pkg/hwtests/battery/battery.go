// Package battery walks the operator through unplugging and replugging AC
// power and checks that each battery follows: discharging on battery,
// charging on mains, with the charge level moving the matching way.
package battery

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/devices"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/wait"
)

const (
	Path = "battery"

	Charging    = "charging"
	Discharging = "discharging"
	Unknown     = "unknown"

	// sysfs reports µWh (or µAh); levels are shown in mWh.
	unitFactor = 1000
	units      = "mWh"
)

var errNoAdapter = cerr.New("could not find the AC adapter")

// Status is one reading of a battery and the AC adapter.
type Status struct {
	ACPresent bool
	Level     float64
	Full      float64
	Charging  string
}

// Percent is the charge as a share of the full capacity.
func (s Status) Percent() float64 {
	if s.Full <= 0 {
		return 0
	}
	return 100 * s.Level / s.Full
}

type Test struct {
	hwtest.Base
	battery string

	// Supplies lists the power supplies under a sysfs root.
	Supplies func(sysfsRoot string) ([]devices.Record, error)
	// Interval and Attempts bound each wait for the battery to settle
	// into a charging state and for its level to move by Delta.
	Interval time.Duration
	Attempts int
	Delta    float64
}

func New(_ *config.Config) hwtest.Test {
	return &Test{
		Base: hwtest.NewBase(hwtest.NewDescriptor(Path,
			hwtest.Description("Battery charge and discharge"),
			hwtest.Interactive(true),
			hwtest.Priority(6))),
		Supplies: devices.PowerSupplies,
		Interval: 10 * time.Second,
		Attempts: 11,
		Delta:    10,
	}
}

// RequiredPackages installs upower, which reports the state when sysfs
// does not know it.
func (t *Test) RequiredPackages() []string { return []string{"upower"} }

func (t *Test) HarmfulPackages() []string { return nil }

func isBattery(r devices.Record) bool { return r.Get("POWER_SUPPLY_TYPE") == "Battery" }

func name(r devices.Record) string {
	if n := r.Get("POWER_SUPPLY_NAME"); n != "" {
		return n
	}
	return filepath.Base(r.Get("_PATH"))
}

// Plan yields one instance per battery.
func (t *Test) Plan(env *hwtest.Env) ([]hwtest.Test, error) {
	supplies, err := t.Supplies(env.Config.SysfsRoot)
	if err != nil {
		return nil, err
	}
	var planned []hwtest.Test
	for _, s := range supplies {
		if !isBattery(s) {
			continue
		}
		instance := *t
		instance.battery = name(s)
		instance.Base = hwtest.NewBase(t.Descriptor().With(hwtest.Param("battery", instance.battery)))
		planned = append(planned, &instance)
	}
	return planned, nil
}

func (t *Test) Run(env *hwtest.Env) (result.Level, error) {
	level, err := hwtest.RunSubTest(env, "Battery", "check battery status", func() (result.Level, error) {
		return t.cycle(env)
	})
	if err != nil {
		return result.Fail, err
	}
	if level.Passed() {
		env.Say("Battery test PASSED")
	} else {
		env.Say("Battery test FAILED")
	}
	return level, nil
}

// Status reads the battery this instance is bound to, or the first one
// found, along with the AC adapter.
func (t *Test) Status(env *hwtest.Env) (Status, error) {
	supplies, err := t.Supplies(env.Config.SysfsRoot)
	if err != nil {
		return Status{}, err
	}
	var battery, adapter devices.Record
	for _, s := range supplies {
		switch {
		case s.Get("POWER_SUPPLY_TYPE") == "Mains":
			adapter = s
		case isBattery(s) && battery == nil && (t.battery == "" || name(s) == t.battery):
			battery = s
		}
	}
	if battery == nil {
		return Status{}, cerr.Newf("battery %s is not present", t.battery)
	}
	if adapter == nil {
		return Status{}, errNoAdapter
	}

	st := Status{ACPresent: adapter.Get("POWER_SUPPLY_ONLINE") == "1"}
	// Some firmware reports energy rather than charge.
	if st.Full, err = reading(battery, "POWER_SUPPLY_CHARGE_FULL", "POWER_SUPPLY_ENERGY_FULL"); err != nil {
		return Status{}, err
	}
	if st.Level, err = reading(battery, "POWER_SUPPLY_CHARGE_NOW", "POWER_SUPPLY_ENERGY_NOW"); err != nil {
		return Status{}, err
	}
	st.Charging = strings.ToLower(battery.Get("POWER_SUPPLY_STATUS"))
	if st.Charging == "" || st.Charging == Unknown {
		st.Charging = upowerState(env, name(battery))
	}
	return st, nil
}

func reading(r devices.Record, keys ...string) (float64, error) {
	for _, k := range keys {
		v := r.Get(k)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, cerr.Wrapf(err, "parse %s", k)
		}
		return n / unitFactor, nil
	}
	return 0, cerr.Newf("battery reports none of %s", strings.Join(keys, ", "))
}

// upowerState asks upower for the state of the device whose object path
// ends in device. Any failure yields Unknown.
func upowerState(env *hwtest.Env, device string) string {
	log := otelzap.Ctx(env.Ctx())
	env.Say("Fetching battery status using upower command...")
	list, err := env.Exec("upower", "-e")
	if err != nil {
		log.Warn("Failed to list upower devices", zap.Error(err))
		return Unknown
	}
	var object string
	for _, line := range strings.Fields(list) {
		if strings.HasSuffix(line, "_"+device) || strings.HasSuffix(line, "/"+device) {
			object = line
			break
		}
	}
	if object == "" {
		log.Warn("upower does not know the battery", zap.String("battery", device))
		return Unknown
	}
	info, err := env.Exec("upower", "-i", object)
	if err != nil {
		log.Warn("Failed to get battery status from upower", zap.Error(err))
		return Unknown
	}
	for _, line := range strings.Split(info, "\n") {
		if key, value, ok := strings.Cut(strings.TrimSpace(line), ":"); ok && key == "state" {
			return strings.ToLower(strings.TrimSpace(value))
		}
	}
	return Unknown
}

func (t *Test) say(env *hwtest.Env, st Status) {
	state := "is"
	if !st.ACPresent {
		state = "is not"
	}
	env.Say("-------------------------------")
	env.Say(fmt.Sprintf("AC Adapter %s connected", state))
	env.Say("Battery:")
	env.Say(fmt.Sprintf("    charged to %.1f%% - %.0f %s", st.Percent(), st.Level, units))
	env.Say("    current charging status is " + st.Charging)
	env.Say("-------------------------------")
}

// cycle asks for AC power to be pulled and restored, in whichever order
// the current state calls for, checking the battery after each step.
func (t *Test) cycle(env *hwtest.Env) (result.Level, error) {
	st, err := t.Status(env)
	if err != nil {
		return result.Fail, err
	}
	t.say(env, st)

	var connected, disconnected bool
	for !connected || !disconnected {
		action := "connect"
		if st.ACPresent {
			action = "disconnect"
		}
		ok, err := env.Confirm(fmt.Sprintf("Please %s AC Power - continue?", action))
		if err != nil || !ok {
			return result.Fail, err
		}
		if st, err = t.Status(env); err != nil {
			return result.Fail, err
		}
		switch {
		case action == "connect" && !st.ACPresent:
			env.Say("AC Power is not connected!")
			continue
		case action == "disconnect" && st.ACPresent:
			env.Say("AC Power is not disconnected!")
			continue
		case action == "connect":
			connected = true
		default:
			disconnected = true
		}

		level, err := t.check(env)
		if err != nil || !level.Passed() {
			return level, err
		}
		if st, err = t.Status(env); err != nil {
			return result.Fail, err
		}
		t.say(env, st)
	}
	return result.Pass, nil
}

// check verifies the charging state agrees with the adapter, then waits for
// the level to move by Delta in the direction the state says it should.
func (t *Test) check(env *hwtest.Env) (result.Level, error) {
	ctx := env.Ctx()
	st, err := t.Status(env)
	if err != nil {
		return result.Fail, err
	}
	switch {
	case st.Charging == Discharging && st.ACPresent:
		env.Say(result.Fail.MessagePrefix() + "battery is discharging while AC adapter is connected")
		return result.Fail, nil
	case st.Charging == Charging && !st.ACPresent:
		env.Say(result.Fail.MessagePrefix() + "battery is charging while AC adapter is disconnected")
		return result.Fail, nil
	}

	opts := wait.Options{Attempts: t.Attempts, Interval: t.Interval}
	err = wait.Poll(ctx, func(context.Context) error {
		if st.Charging == Charging || st.Charging == Discharging {
			return nil
		}
		env.Say(fmt.Sprintf("battery charging status is %s, waiting...", st.Charging))
		next, err := t.Status(env)
		if err != nil {
			return wait.Break(err)
		}
		st = next
		if st.Charging == Charging || st.Charging == Discharging {
			return nil
		}
		return cerr.Newf("charging status is %s", st.Charging)
	}, opts)
	if level, done, err := t.outcome(env, err, "battery charging status is "+st.Charging+" after retry limit"); done {
		return level, err
	}

	baseline := st.Level
	err = wait.Poll(ctx, func(context.Context) error {
		next, err := t.Status(env)
		if err != nil {
			return wait.Break(err)
		}
		if (next.Charging == Charging && next.Level > baseline+t.Delta) ||
			(next.Charging == Discharging && next.Level < baseline-t.Delta) {
			env.Say("verified battery is " + next.Charging)
			return nil
		}
		env.Say(fmt.Sprintf("waiting to verify battery %s more than %.0f %s", st.Charging, t.Delta, units))
		return cerr.Newf("level moved from %.0f to %.0f", baseline, next.Level)
	}, opts)
	if level, done, err := t.outcome(env, err, "could not verify battery "+st.Charging); done {
		return level, err
	}
	return result.Pass, nil
}

// outcome turns a Poll result into a verdict. done is false when the
// condition was met and checking should go on.
func (t *Test) outcome(env *hwtest.Env, err error, exhausted string) (result.Level, bool, error) {
	switch {
	case err == nil:
		return result.Pass, false, nil
	case cerr.Is(err, wait.ErrExhausted):
		otelzap.Ctx(env.Ctx()).Warn("Battery did not settle", zap.Error(err))
		env.Say(result.Fail.MessagePrefix() + exhausted)
		return result.Fail, true, nil
	}
	return result.Fail, true, err
}
