package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindWritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	got, err := findWritable([]string{
		filepath.Join(blocker, "sub", "hwcert.log"),
		filepath.Join(dir, "logs", "hwcert.log"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "logs", "hwcert.log"), got)

	_, err = findWritable([]string{filepath.Join(blocker, "hwcert.log")})
	assert.ErrorContains(t, err, "no writable log path found")
}

func TestGetLogFileWriterBadDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := GetLogFileWriter(filepath.Join(blocker, "sub", "hwcert.log"))
	assert.ErrorContains(t, err, "log directory error")
}
