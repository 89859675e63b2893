// pkg/logger/writer.go

package logger

import (
	"os"
	"path/filepath"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
)

// GetLogFileWriter opens path for appending, creating its directory if needed.
func GetLogFileWriter(path string) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(path), shared.FilePermOwnerRWX); err != nil {
		return nil, cerr.Wrap(err, "log directory error")
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, shared.FilePermOwnerReadWrite)
	if err != nil {
		return nil, cerr.Wrap(err, "failed to open log file")
	}
	return zapcore.AddSync(file), nil
}

// FindWritableLogPath returns the first usable platform log path.
func FindWritableLogPath() (string, error) {
	return findWritable(PlatformLogPaths())
}

func findWritable(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(filepath.Dir(path)); err != nil {
			if err := os.MkdirAll(filepath.Dir(path), shared.FilePermOwnerRWX); err != nil {
				continue
			}
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, shared.FilePermOwnerReadWrite)
		if err != nil {
			continue
		}
		_ = f.Close()
		return path, nil
	}
	return "", cerr.New("no writable log path found")
}
