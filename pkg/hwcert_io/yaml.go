package hwcert_io

import (
	"context"
	"os"
	"path/filepath"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
)

// WriteYAML marshals in to filePath, creating the parent directory.
func WriteYAML(ctx context.Context, filePath string, in any) error {
	logger := otelzap.Ctx(ctx)
	logger.Debug("Writing YAML file", zap.String("path", filePath))

	data, err := yaml.Marshal(in)
	if err != nil {
		return cerr.Wrap(err, "marshal YAML")
	}
	if err := os.MkdirAll(filepath.Dir(filePath), shared.DirPermStandard); err != nil {
		return cerr.Wrapf(err, "create directory for %s", filePath)
	}
	if err := os.WriteFile(filePath, data, shared.FilePermStandard); err != nil {
		return cerr.Wrapf(err, "write YAML file %s", filePath)
	}

	logger.Debug("YAML file written", zap.String("path", filePath), zap.Int("size", len(data)))
	return nil
}

// ReadYAML unmarshals filePath into out.
func ReadYAML(ctx context.Context, filePath string, out any) error {
	otelzap.Ctx(ctx).Debug("Reading YAML file", zap.String("path", filePath))

	data, err := os.ReadFile(filePath)
	if err != nil {
		return cerr.Wrapf(err, "read YAML file %s", filePath)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return cerr.Wrapf(err, "parse YAML file %s", filePath)
	}
	return nil
}
