package runner

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_err"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest/hwtesttest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
)

// stubTest records its lifecycle calls through a testify mock.
type stubTest struct {
	hwtest.Base
	mock.Mock
	level result.Level
	err   error
}

func newStub(path string, level result.Level, opts ...hwtest.Option) *stubTest {
	return &stubTest{Base: hwtest.NewBase(hwtest.NewDescriptor(path, opts...)), level: level}
}

func (s *stubTest) Run(*hwtest.Env) (result.Level, error) {
	s.Called()
	return s.level, s.err
}

type lifecycleStub struct {
	*stubTest
	packages []string
	harmful  []string
	planned  []hwtest.Test
}

func (l *lifecycleStub) Start(*hwtest.Env) error  { l.Called(); return nil }
func (l *lifecycleStub) Finish(*hwtest.Env) error { l.Called(); return nil }
func (l *lifecycleStub) RequiredPackages() []string { return l.packages }
func (l *lifecycleStub) HarmfulPackages() []string  { return l.harmful }
func (l *lifecycleStub) Plan(*hwtest.Env) ([]hwtest.Test, error) {
	if l.planned == nil {
		return []hwtest.Test{l}, nil
	}
	return l.planned, nil
}

func paths(tests []hwtest.Test) []string {
	out := make([]string, 0, len(tests))
	for _, t := range tests {
		out = append(out, t.Descriptor().Path())
	}
	return out
}

func TestOrder(t *testing.T) {
	tests := []hwtest.Test{
		newStub("reboot", result.Pass, hwtest.Priority(10)),
		newStub("memory", result.Pass, hwtest.Priority(5)),
		newStub("cpu", result.Pass, hwtest.Priority(5)),
		newStub("suspend", result.Pass, hwtest.Priority(5), hwtest.Interactive(true)),
		newStub("audio", result.Pass, hwtest.Priority(1), hwtest.Interactive(true)),
	}
	Order(tests)
	if diff := cmp.Diff([]string{"audio", "suspend", "cpu", "memory", "reboot"}, paths(tests)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistrySelect(t *testing.T) {
	reg := NewRegistry()
	for _, p := range []string{"memory", "hardware/suspend", "hardware/battery"} {
		p := p
		reg.Register(p, func(*config.Config) hwtest.Test { return newStub(p, result.Pass) })
	}
	reg.RegisterExplicit("reboot", func(*config.Config) hwtest.Test { return newStub("reboot", result.Pass) })

	names := func(entries []Entry) []string {
		out := []string{}
		for _, e := range entries {
			out = append(out, e.Path)
		}
		return out
	}

	tests := []struct {
		name     string
		args     []string
		explicit bool
		want     []string
	}{
		{"all without reboot", nil, false, []string{"hardware/battery", "hardware/suspend", "memory"}},
		{"all with reboot", nil, true, []string{"hardware/battery", "hardware/suspend", "memory", "reboot"}},
		{"named reboot", []string{"reboot"}, false, []string{"reboot"}},
		{"suite prefix", []string{"hardware"}, false, []string{"hardware/battery", "hardware/suspend"}},
		{"named plus include", []string{"memory"}, true, []string{"memory", "reboot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Select(tt.args, tt.explicit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}

	_, err := reg.Select([]string{"floppy"}, false)
	require.Error(t, err)
	assert.Equal(t, hwcert_err.CategoryValidation, hwcert_err.CategoryOf(err))
	assert.Contains(t, err.Error(), "floppy")

	assert.Equal(t, []string{"hardware/battery", "hardware/suspend", "memory", "reboot"}, reg.Names())
	built := Build(config.Default(), []Entry{{Path: "memory", New: func(*config.Config) hwtest.Test { return newStub("memory", result.Pass) }}})
	assert.Equal(t, []string{"memory"}, paths(built))
}

func TestRunLifecycle(t *testing.T) {
	env, fake := hwtesttest.NewEnv(t)
	fake.On("rpm -q NetworkManager", "", errors.New("not installed"))

	s := &lifecycleStub{
		stubTest: newStub("memory", result.Warn, hwtest.Priority(5)),
		packages: []string{"memtester", "memtester"},
		harmful:  []string{"NetworkManager"},
	}
	s.On("Start").Return().Once()
	s.On("Run").Return().Once()
	s.On("Finish").Return().Once()

	sum, err := New(env).Run([]hwtest.Test{s})
	require.NoError(t, err)
	s.AssertExpectations(t)

	require.Len(t, sum.Records, 1)
	rec := sum.Records[0]
	assert.Equal(t, "memory", rec.Path)
	assert.True(t, rec.Result.Equal(result.Warn))
	assert.True(t, sum.Overall.Equal(result.Warn))
	assert.Equal(t, []string{"rpm -q NetworkManager", "dnf install -y memtester"}, fake.Lines())
}

func TestRunContinuesAfterFailure(t *testing.T) {
	env, _ := hwtesttest.NewEnv(t)

	broken := newStub("audio", result.Pass)
	broken.err = errors.New("no sound card")
	broken.On("Run").Return()
	good := newStub("cpu", result.Pass)
	good.On("Run").Return()

	sum, err := New(env).Run([]hwtest.Test{broken, good})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sound card")

	require.Len(t, sum.Records, 2)
	assert.True(t, sum.Records[0].Result.Equal(result.Fail))
	assert.Equal(t, "no sound card", sum.Records[0].Error)
	assert.True(t, sum.Records[1].Result.Equal(result.Pass))
	assert.True(t, sum.Overall.Equal(result.Fail))
	good.AssertCalled(t, "Run")
}

func TestRunRecoversPanic(t *testing.T) {
	env, _ := hwtesttest.NewEnv(t)
	p := newStub("video", result.Pass)
	p.On("Run").Run(func(mock.Arguments) { panic("nil display") }).Return()

	sum, err := New(env).Run([]hwtest.Test{p})
	require.Error(t, err)
	require.Len(t, sum.Records, 1)
	assert.True(t, sum.Records[0].Result.Equal(result.Fail))
	assert.Contains(t, sum.Records[0].Error, "nil display")
}

func TestRunPlanFanOut(t *testing.T) {
	env, _ := hwtesttest.NewEnv(t)
	sda := newStub("storage/sda", result.Pass)
	sda.On("Run").Return()
	sdb := newStub("storage/sdb", result.Review)
	sdb.On("Run").Return()

	template := &lifecycleStub{stubTest: newStub("storage", result.Pass), planned: []hwtest.Test{sdb, sda}}

	sum, err := New(env).Run([]hwtest.Test{template})
	require.NoError(t, err)
	require.Len(t, sum.Records, 2)
	assert.Equal(t, "storage/sda", sum.Records[0].Path)
	assert.Equal(t, "storage", sum.Records[0].Suite)
	assert.Equal(t, "sda", sum.Records[0].Name)
	assert.True(t, sum.Overall.Equal(result.Review))
	template.AssertNotCalled(t, "Run")
}

func TestRunPackageInstallFailure(t *testing.T) {
	env, fake := hwtesttest.NewEnv(t)
	fake.On("dnf", "", errors.New("no network"))

	s := &lifecycleStub{stubTest: newStub("memory", result.Pass), packages: []string{"memtester"}}
	s.On("Start").Return()
	s.On("Run").Return()
	s.On("Finish").Return()

	sum, err := New(env).Run([]hwtest.Test{s})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "install memtester")
	assert.True(t, sum.Overall.Equal(result.Pass), "the test itself still runs")
}

func TestSummaryMergeAndRender(t *testing.T) {
	first := Summary{
		RunID:   "run-1",
		Started: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Records: []Record{
			{Path: "memory", Result: result.Pass, Duration: 2 * time.Second},
			{Path: "reboot", Result: result.Fail, Error: "shutdown took too long"},
		},
	}
	resumed := Summary{
		RunID:    "run-2",
		Finished: time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC),
		Records:  []Record{{Path: "reboot", Result: result.Warn, Duration: time.Minute}},
	}

	merged := first.Merge(resumed)
	assert.Equal(t, "run-1", merged.RunID)
	require.Len(t, merged.Records, 2)
	assert.True(t, merged.Records[1].Result.Equal(result.Warn))
	assert.True(t, merged.Overall.Equal(result.Warn))
	assert.True(t, first.Records[1].Result.Equal(result.Fail), "merge must not modify the receiver")

	out := merged.Render()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Contains(t, lines[0], "Test")
	assert.Contains(t, out, "memory")
	assert.Contains(t, out, "reboot")
	assert.Contains(t, out, "Overall:")
	assert.Contains(t, out, "WARN")
}

func TestSummaryWriteLoad(t *testing.T) {
	env, _ := hwtesttest.NewEnv(t)
	sum := Summary{
		RunID:   "abc",
		Overall: result.Review,
		Records: []Record{{Path: "hardware/suspend", Suite: "hardware", Name: "suspend", Result: result.Review, Duration: 90 * time.Second}},
	}
	require.NoError(t, sum.Write(env.Ctx(), env.Config.SummaryPath))

	got, err := LoadSummary(env.Ctx(), env.Config.SummaryPath)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.RunID)
	assert.True(t, got.Overall.Equal(result.Review))
	require.Len(t, got.Records, 1)
	assert.Equal(t, 90*time.Second, got.Records[0].Duration)
}
