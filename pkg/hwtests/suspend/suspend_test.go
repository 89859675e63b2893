package suspend

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest/hwtesttest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/release"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
)

func setup(t *testing.T, state, memSleep string) *hwtesttest.Host {
	t.Helper()
	h := hwtesttest.New(t)
	h.Env.Release = release.Info{Release: release.Parse("Rocky Linux release 9.3 (Blue Onyx)")}

	power := filepath.Join(h.Env.Config.SysfsRoot, "power")
	require.NoError(t, os.MkdirAll(power, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(power, "state"), []byte(state), 0o644))
	if memSleep != "" {
		require.NoError(t, os.WriteFile(filepath.Join(power, "mem_sleep"), []byte(memSleep), 0o644))
	}
	return h
}

func addBattery(t *testing.T, h *hwtesttest.Host) {
	t.Helper()
	dir := filepath.Join(h.Env.Config.SysfsRoot, "class", "power_supply", "BAT0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uevent"),
		[]byte("POWER_SUPPLY_NAME=BAT0\nPOWER_SUPPLY_TYPE=Battery\n"), 0o644))
}

func newTest(h *hwtesttest.Host, answers ...hwtesttest.Answer) *Test {
	h.Answer(answers...)
	test := New(h.Env.Config).(*Test)
	test.Delay = 0
	return test
}

func kernelLog(h *hwtesttest.Host, lines ...string) func() {
	return func() {
		for _, l := range lines {
			h.Journal.Add("host kernel: " + l)
		}
	}
}

func readPower(t *testing.T, h *hwtesttest.Host, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.Env.Config.SysfsRoot, "power", name))
	require.NoError(t, err)
	return string(data)
}

func TestMethods(t *testing.T) {
	tests := []struct {
		name     string
		state    string
		memSleep string
		release  string
		want     []string
	}{
		{"all", "freeze mem disk\n", "s2idle [deep]\n", "Rocky Linux release 9.3 (Blue Onyx)", []string{"freeze", "mem", "disk"}},
		{"no deep sleep", "freeze mem disk\n", "[s2idle]\n", "Rocky Linux release 9.3 (Blue Onyx)", []string{"freeze", "disk"}},
		{"no mem_sleep file", "mem standby\n", "", "Rocky Linux release 9.3 (Blue Onyx)", []string{"mem"}},
		{"freeze unknown before 8", "freeze mem\n", "deep\n", "CentOS Linux release 7.9.2009 (Core)", []string{"mem"}},
		{"nothing usable", "standby\n", "", "Rocky Linux release 9.3 (Blue Onyx)", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setup(t, tt.state, tt.memSleep)
			h.Env.Release = release.Info{Release: release.Parse(tt.release)}
			assert.Equal(t, tt.want, Methods(h.Env))
		})
	}
}

func TestPlan(t *testing.T) {
	t.Run("no battery", func(t *testing.T) {
		h := setup(t, "mem\n", "deep\n")
		planned, err := newTest(h).Plan(h.Env)
		require.NoError(t, err)
		assert.Empty(t, planned)
	})

	t.Run("battery without sleep states", func(t *testing.T) {
		h := setup(t, "standby\n", "")
		addBattery(t, h)
		planned, err := newTest(h).Plan(h.Env)
		require.NoError(t, err)
		assert.Empty(t, planned)
	})

	t.Run("battery", func(t *testing.T) {
		h := setup(t, "mem disk\n", "deep\n")
		addBattery(t, h)
		template := newTest(h)
		planned, err := template.Plan(h.Env)
		require.NoError(t, err)
		require.Len(t, planned, 1)

		methods, ok := planned[0].Descriptor().Param("methods")
		assert.True(t, ok)
		assert.Equal(t, "mem disk", methods)
		_, ok = template.Descriptor().Param("methods")
		assert.False(t, ok, "the template stays unbound")
		assert.True(t, planned[0].Descriptor().IsInteractive())
	})
}

func TestRunOSCommandMem(t *testing.T) {
	h := setup(t, "mem\n", "[s2idle] deep\n")
	test := newTest(h,
		hwtesttest.Answer{Text: "yes"},
		hwtesttest.Answer{Text: "yes", Before: kernelLog(h,
			"PM: suspend entry (deep)",
			"Freezing user space processes ... (elapsed 0.002 seconds) done.",
			"PM: Entering mem sleep",
			"Restarting tasks ... done.",
		)},
		hwtesttest.Answer{Text: "no"},
	)

	level, err := test.Run(h.Env)
	require.NoError(t, err)
	assert.True(t, level.Equal(result.Pass), "got %s", level)

	assert.Equal(t, "mem", readPower(t, h, "state"))
	assert.Equal(t, "s2idle", readPower(t, h, "mem_sleep"), "s2idle default is restored")

	out := hwtesttest.Report(t, h.Env)
	assert.Contains(t, out, `<output name="Suspend OSCommand-mem">`)
	assert.Contains(t, out, `<output name="Suspend FunctionKey-mem">`)
	assert.Equal(t, 2, strings.Count(out, "button-success"))

	log := h.Journal.Text()
	assert.Contains(t, log, "hwcert/runtests[4242]: suspend-OSCommand-mem: begin")
	assert.Contains(t, log, "hwcert/runtests[4242]: suspend-OSCommand-mem: end")
}

func TestRunWrongMethodInLog(t *testing.T) {
	h := setup(t, "mem\n", "deep\n")
	test := newTest(h,
		hwtesttest.Answer{Text: "y"},
		hwtesttest.Answer{Text: "y", Before: kernelLog(h,
			"PM: suspend entry (s2idle)",
			"Freezing user space processes",
			"Restarting tasks",
		)},
		hwtesttest.Answer{Text: "n"},
	)

	level, err := test.Run(h.Env)
	require.NoError(t, err)
	assert.True(t, level.Equal(result.Fail))
	out := hwtesttest.Report(t, h.Env)
	assert.Contains(t, out, "button-error")
}

func TestRunMissingResume(t *testing.T) {
	h := setup(t, "disk\n", "")
	test := newTest(h,
		hwtesttest.Answer{Text: "yes"},
		hwtesttest.Answer{Text: "yes", Before: kernelLog(h,
			"PM: hibernation: hibernation entry",
			"Freezing user space processes",
		)},
		hwtesttest.Answer{Text: "no"},
	)

	level, err := test.Run(h.Env)
	require.NoError(t, err)
	assert.True(t, level.Equal(result.Fail))
}

func TestRunFunctionKey(t *testing.T) {
	h := setup(t, "freeze\n", "")
	test := newTest(h,
		hwtesttest.Answer{Text: "no"}, // decline the OS-triggered suspend
		hwtesttest.Answer{Text: "yes"},
		hwtesttest.Answer{Text: "yes", Before: kernelLog(h,
			"systemd-sleep: Starting Freeze",
			"PM: suspend entry (s2idle)",
			"Freezing user space processes",
			"Restarting tasks",
		)},
		hwtesttest.Answer{Text: "yes"},
	)

	level, err := test.Run(h.Env)
	require.NoError(t, err)
	assert.True(t, level.Equal(result.Fail), "declining the OS suspend fails that block")

	out := hwtesttest.Report(t, h.Env)
	assert.Equal(t, 1, strings.Count(out, "button-error"))
	assert.Equal(t, 1, strings.Count(out, "button-success"))
}

func TestRunWithoutTerminal(t *testing.T) {
	h := setup(t, "mem\n", "deep\n")
	test := New(h.Env.Config).(*Test)
	test.Delay = 0

	level, err := test.Run(h.Env)
	require.Error(t, err)
	assert.True(t, level.Equal(result.Fail))
	assert.False(t, h.Env.Report.IsOpen())
}

var _ hwtest.Planner = (*Test)(nil)
