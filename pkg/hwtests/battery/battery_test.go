package battery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/devices"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest/hwtesttest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
)

func adapter(online bool) devices.Record {
	v := "0"
	if online {
		v = "1"
	}
	return devices.Record{"POWER_SUPPLY_NAME": "AC", "POWER_SUPPLY_TYPE": "Mains", "POWER_SUPPLY_ONLINE": v}
}

func bat(name, status, now string) devices.Record {
	return devices.Record{
		"POWER_SUPPLY_NAME":        name,
		"POWER_SUPPLY_TYPE":        "Battery",
		"POWER_SUPPLY_STATUS":      status,
		"POWER_SUPPLY_ENERGY_FULL": "50000000",
		"POWER_SUPPLY_ENERGY_NOW":  now,
	}
}

// snapshot is the adapter plus BAT0 at one moment.
func snapshot(online bool, status, now string) []devices.Record {
	return []devices.Record{adapter(online), bat("BAT0", status, now)}
}

// replay returns the snapshots in order, one per call; the last one repeats.
func replay(snapshots ...[]devices.Record) func(string) ([]devices.Record, error) {
	return func(string) ([]devices.Record, error) {
		s := snapshots[0]
		if len(snapshots) > 1 {
			snapshots = snapshots[1:]
		}
		return s, nil
	}
}

func newTest(h *hwtesttest.Host, supplies func(string) ([]devices.Record, error), answers ...hwtesttest.Answer) *Test {
	h.Answer(answers...)
	test := New(h.Env.Config).(*Test)
	test.Supplies = supplies
	test.Interval = 0
	test.Attempts = 3
	return test
}

func TestPlan(t *testing.T) {
	h := hwtesttest.New(t)
	supplies := replay([]devices.Record{adapter(true), bat("BAT0", "Full", "1"), bat("BAT1", "Charging", "2")})
	template := newTest(h, supplies)

	planned, err := template.Plan(h.Env)
	require.NoError(t, err)
	require.Len(t, planned, 2)
	var names []string
	for _, p := range planned {
		v, ok := p.Descriptor().Param("battery")
		require.True(t, ok)
		names = append(names, v)
	}
	assert.Equal(t, []string{"BAT0", "BAT1"}, names)
	_, ok := template.Descriptor().Param("battery")
	assert.False(t, ok, "the template stays unbound")

	st, err := planned[1].(*Test).Status(h.Env)
	require.NoError(t, err)
	assert.Equal(t, Charging, st.Charging, "an instance reads its own battery")
}

func TestPlanDesktop(t *testing.T) {
	h := hwtesttest.New(t)
	planned, err := newTest(h, replay([]devices.Record{adapter(true)})).Plan(h.Env)
	require.NoError(t, err)
	assert.Empty(t, planned)
}

func TestStatus(t *testing.T) {
	t.Run("energy", func(t *testing.T) {
		h := hwtesttest.New(t)
		st, err := newTest(h, replay(snapshot(true, "Charging", "25000000"))).Status(h.Env)
		require.NoError(t, err)
		assert.Equal(t, Status{ACPresent: true, Level: 25000, Full: 50000, Charging: Charging}, st)
		assert.InDelta(t, 50.0, st.Percent(), 0.001)
	})

	t.Run("charge", func(t *testing.T) {
		h := hwtesttest.New(t)
		b := devices.Record{
			"POWER_SUPPLY_NAME": "BAT0", "POWER_SUPPLY_TYPE": "Battery", "POWER_SUPPLY_STATUS": "Discharging",
			"POWER_SUPPLY_CHARGE_FULL": "4000000", "POWER_SUPPLY_CHARGE_NOW": "1000000",
		}
		st, err := newTest(h, replay([]devices.Record{adapter(false), b})).Status(h.Env)
		require.NoError(t, err)
		assert.Equal(t, Status{Level: 1000, Full: 4000, Charging: Discharging}, st)
	})

	t.Run("unknown state asks upower", func(t *testing.T) {
		h := hwtesttest.New(t)
		h.Fake.On("upower -e", "/org/freedesktop/UPower/devices/line_power_AC\n/org/freedesktop/UPower/devices/battery_BAT0\n", nil)
		h.Fake.On("upower -i /org/freedesktop/UPower/devices/battery_BAT0",
			"  native-path:          BAT0\n  power supply:         yes\n    state:               discharging\n", nil)
		st, err := newTest(h, replay(snapshot(false, "Unknown", "25000000"))).Status(h.Env)
		require.NoError(t, err)
		assert.Equal(t, Discharging, st.Charging)
	})

	t.Run("upower without the battery", func(t *testing.T) {
		h := hwtesttest.New(t)
		h.Fake.On("upower -e", "/org/freedesktop/UPower/devices/line_power_AC\n", nil)
		st, err := newTest(h, replay(snapshot(false, "Unknown", "25000000"))).Status(h.Env)
		require.NoError(t, err)
		assert.Equal(t, Unknown, st.Charging)
		assert.NotContains(t, strings.Join(h.Fake.Lines(), "\n"), "upower -i")
	})

	t.Run("no adapter", func(t *testing.T) {
		h := hwtesttest.New(t)
		_, err := newTest(h, replay([]devices.Record{bat("BAT0", "Charging", "1")})).Status(h.Env)
		assert.ErrorIs(t, err, errNoAdapter)
	})

	t.Run("no level", func(t *testing.T) {
		h := hwtesttest.New(t)
		b := devices.Record{"POWER_SUPPLY_NAME": "BAT0", "POWER_SUPPLY_TYPE": "Battery"}
		_, err := newTest(h, replay([]devices.Record{adapter(true), b})).Status(h.Env)
		assert.ErrorContains(t, err, "POWER_SUPPLY_CHARGE_FULL")
	})
}

func TestRun(t *testing.T) {
	yes := hwtesttest.Answer{Text: "yes"}
	tests := []struct {
		name      string
		snapshots [][]devices.Record
		answers   []hwtesttest.Answer
		want      result.Level
	}{
		{
			name: "unplug then replug",
			snapshots: [][]devices.Record{
				snapshot(true, "Charging", "40000000"),
				snapshot(false, "Discharging", "40000000"),
				snapshot(false, "Discharging", "40000000"),
				snapshot(false, "Discharging", "39000000"),
				snapshot(false, "Discharging", "39000000"),
				snapshot(true, "Charging", "39000000"),
				snapshot(true, "Charging", "39000000"),
				snapshot(true, "Charging", "40000000"),
			},
			answers: []hwtesttest.Answer{yes, yes},
			want:    result.Pass,
		},
		{
			name: "state settles after unknown",
			snapshots: [][]devices.Record{
				snapshot(false, "Discharging", "40000000"),
				snapshot(true, "Charging", "40000000"),
				snapshot(true, "Not charging", "40000000"),
				snapshot(true, "Charging", "40000000"),
				snapshot(true, "Charging", "41000000"),
				snapshot(true, "Charging", "41000000"),
				snapshot(false, "Discharging", "41000000"),
				snapshot(false, "Discharging", "41000000"),
				snapshot(false, "Discharging", "40000000"),
			},
			answers: []hwtesttest.Answer{yes, yes},
			want:    result.Pass,
		},
		{
			name: "adapter never pulled",
			snapshots: [][]devices.Record{
				snapshot(true, "Charging", "40000000"),
			},
			answers: []hwtesttest.Answer{yes, {Text: "no"}},
			want:    result.Fail,
		},
		{
			name: "charging on battery",
			snapshots: [][]devices.Record{
				snapshot(true, "Charging", "40000000"),
				snapshot(false, "Charging", "40000000"),
			},
			answers: []hwtesttest.Answer{yes},
			want:    result.Fail,
		},
		{
			name: "level never moves",
			snapshots: [][]devices.Record{
				snapshot(true, "Charging", "40000000"),
				snapshot(false, "Discharging", "40000000"),
			},
			answers: []hwtesttest.Answer{yes},
			want:    result.Fail,
		},
		{
			name: "state stays unknown",
			snapshots: [][]devices.Record{
				snapshot(true, "Charging", "40000000"),
				snapshot(false, "Not charging", "40000000"),
			},
			answers: []hwtesttest.Answer{yes},
			want:    result.Fail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hwtesttest.New(t)
			level, err := newTest(h, replay(tt.snapshots...), tt.answers...).Run(h.Env)
			require.NoError(t, err)
			assert.True(t, level.Equal(tt.want), "got %s", level)

			out := hwtesttest.Report(t, h.Env)
			assert.Contains(t, out, `<output name="Battery">`)
			if tt.want.Passed() {
				assert.Contains(t, out, "button-success")
			} else {
				assert.Contains(t, out, "button-error")
			}
		})
	}
}

func TestRequiredPackages(t *testing.T) {
	h := hwtesttest.New(t)
	var test hwtest.PackageRequirer = newTest(h, replay(nil))
	assert.Equal(t, []string{"upower"}, test.RequiredPackages())
	assert.Empty(t, test.HarmfulPackages())
}
