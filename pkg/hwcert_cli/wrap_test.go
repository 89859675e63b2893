package hwcert_cli

import (
	"errors"
	"testing"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_err"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_io"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setup(t *testing.T) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	zap.ReplaceGlobals(logger)
	otelzap.ReplaceGlobals(otelzap.New(logger))
}

func TestWrap(t *testing.T) {
	setup(t)

	t.Run("passes context and args through", func(t *testing.T) {
		var gotArgs []string
		var gotCmd string
		run := Wrap(func(rc *hwcert_io.RuntimeContext, cmd *cobra.Command, args []string) error {
			require.NotNil(t, rc.Ctx)
			require.NotNil(t, rc.Log)
			gotArgs = args
			gotCmd = rc.Command
			return nil
		})

		err := run(&cobra.Command{Use: "list"}, []string{"reboot"})
		require.NoError(t, err)
		assert.Equal(t, []string{"reboot"}, gotArgs)
		assert.Equal(t, "list", gotCmd)
	})

	t.Run("recovers panics as errors", func(t *testing.T) {
		run := Wrap(func(*hwcert_io.RuntimeContext, *cobra.Command, []string) error {
			panic("boom")
		})
		err := run(&cobra.Command{Use: "run"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("keeps expected errors unwrapped", func(t *testing.T) {
		expected := hwcert_err.NewExpectedError(errors.New("nothing armed"))
		run := Wrap(func(*hwcert_io.RuntimeContext, *cobra.Command, []string) error {
			return expected
		})
		err := run(&cobra.Command{Use: "resume"}, nil)
		assert.Same(t, expected, err)
		assert.Equal(t, 0, hwcert_err.GetExitCode(err))
	})

	t.Run("system errors keep their identity", func(t *testing.T) {
		sentinel := errors.New("journal unreadable")
		run := Wrap(func(*hwcert_io.RuntimeContext, *cobra.Command, []string) error {
			return sentinel
		})
		err := run(&cobra.Command{Use: "resume"}, nil)
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, hwcert_err.GetExitCode(err))
	})
}
