package lid

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest/hwtesttest"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
)

// states replays lid readings in order; the last one repeats.
func states(values ...bool) func(context.Context) (bool, error) {
	return func(context.Context) (bool, error) {
		v := values[0]
		if len(values) > 1 {
			values = values[1:]
		}
		return v, nil
	}
}

func newTest(h *hwtesttest.Host, lid func(context.Context) (bool, error), answers ...hwtesttest.Answer) *Test {
	if answers != nil {
		h.Answer(answers...)
	}
	test := New(h.Env.Config).(*Test)
	test.State = lid
	test.Interval = 0
	test.Attempts = 3
	return test
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestProcState(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  bool
	}{
		{"open", map[string]string{"LID0": "state:      open\n"}, true},
		{"closed", map[string]string{"LID0": "state:      closed\n"}, false},
		{"any open lid counts", map[string]string{"LID0": "state:      closed\n", "LID1": "state:      open\n"}, true},
		{"no lid", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for name, body := range tt.files {
				writeFile(t, filepath.Join(root, "acpi", "button", "lid", name, "state"), body)
			}
			open, err := ProcState(root)(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, open)
		})
	}
}

func TestPlan(t *testing.T) {
	h := hwtesttest.New(t)
	input := filepath.Join(h.Env.Config.SysfsRoot, "class", "input")
	writeFile(t, filepath.Join(input, "input0", "uevent"), "PRODUCT=19/0/5/0\nNAME=\"Lid Switch\"\nPHYS=\"PNP0C0D/button/input0\"\n")
	writeFile(t, filepath.Join(input, "input1", "uevent"), "PRODUCT=19/0/1/0\nNAME=\"Power Button\"\n")

	template := newTest(h, states(true))
	planned, err := template.Plan(h.Env)
	require.NoError(t, err)
	require.Len(t, planned, 1)

	device, ok := planned[0].Descriptor().Param("device")
	assert.True(t, ok)
	assert.Equal(t, "input0", device)
	assert.True(t, planned[0].Descriptor().IsInteractive())
	_, ok = template.Descriptor().Param("device")
	assert.False(t, ok, "the template stays unbound")
}

func TestPlanWithoutLid(t *testing.T) {
	h := hwtesttest.New(t)
	planned, err := newTest(h, states(true)).Plan(h.Env)
	require.NoError(t, err)
	assert.Empty(t, planned)
}

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		lid     []bool
		answers []hwtesttest.Answer
		want    result.Level
	}{
		{
			name:    "closed and reopened",
			lid:     []bool{true, true, false, true},
			answers: []hwtesttest.Answer{{Text: "yes"}, {Text: "yes"}},
			want:    result.Pass,
		},
		{
			name: "starts closed",
			lid:  []bool{false},
			want: result.Fail,
		},
		{
			name:    "operator not ready",
			lid:     []bool{true},
			answers: []hwtesttest.Answer{{Text: "no"}},
			want:    result.Fail,
		},
		{
			name:    "never closed",
			lid:     []bool{true},
			answers: []hwtesttest.Answer{{Text: "yes"}},
			want:    result.Fail,
		},
		{
			name:    "never reopened",
			lid:     []bool{true, false},
			answers: []hwtesttest.Answer{{Text: "yes"}},
			want:    result.Fail,
		},
		{
			name:    "backlight stayed on",
			lid:     []bool{true, false, true},
			answers: []hwtesttest.Answer{{Text: "yes"}, {Text: "no"}},
			want:    result.Fail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hwtesttest.New(t)
			level, err := newTest(h, states(tt.lid...), tt.answers...).Run(h.Env)
			require.NoError(t, err)
			assert.True(t, level.Equal(tt.want), "got %s", level)

			out := hwtesttest.Report(t, h.Env)
			assert.Contains(t, out, `<output name="Lid verifying">`)
			if tt.want.Passed() {
				assert.Contains(t, out, "button-success")
			} else {
				assert.Contains(t, out, "button-error")
			}
		})
	}
}

func TestRunWithoutOperator(t *testing.T) {
	h := hwtesttest.New(t)
	level, err := newTest(h, states(true)).Run(h.Env)
	assert.ErrorIs(t, err, shared.ErrNotTTY)
	assert.True(t, level.Equal(result.Fail))
}

func TestRunStateError(t *testing.T) {
	h := hwtesttest.New(t)
	calls := 0
	lid := func(context.Context) (bool, error) {
		calls++
		if calls == 1 {
			return true, nil
		}
		return false, os.ErrPermission
	}
	level, err := newTest(h, lid, hwtesttest.Answer{Text: "yes"}).Run(h.Env)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.True(t, level.Equal(result.Fail))
	assert.Equal(t, 2, calls, "a read error stops the wait")
}

var _ hwtest.Planner = (*Test)(nil)
