package hwtest

import (
	"context"
	"fmt"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/wait"
)

// SyncDisks flushes filesystem buffers.
func SyncDisks(env *Env) error {
	if _, err := env.Exec("sync"); err != nil {
		return cerr.Wrap(err, "sync disks")
	}
	return nil
}

func hostLoad(ctx context.Context) (float64, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return avg.Load1, nil
}

// WaitForLull syncs disks and then waits for the one-minute load average to
// drop below the configured threshold. It gives up after the configured
// number of attempts with wait.ErrExhausted in the chain.
func WaitForLull(env *Env) error {
	ctx := env.Ctx()
	log := otelzap.Ctx(ctx)
	cfg := env.Config.Lull

	if err := SyncDisks(env); err != nil {
		log.Warn("Disk sync failed before lull wait", zap.Error(err))
	}

	loadFn := env.LoadAverage
	if loadFn == nil {
		loadFn = hostLoad
	}

	env.Say(fmt.Sprintf("waiting for load average below %.2f", cfg.LoadThreshold))
	err := wait.Poll(ctx, func(ctx context.Context) error {
		avg, err := loadFn(ctx)
		if err != nil {
			return wait.Break(cerr.Wrap(err, "read load average"))
		}
		log.Debug("Load average", zap.Float64("load1", avg), zap.Float64("threshold", cfg.LoadThreshold))
		if avg >= cfg.LoadThreshold {
			return cerr.Newf("load average %.2f", avg)
		}
		return nil
	}, wait.Options{Attempts: cfg.Attempts, Interval: cfg.Interval})
	if err != nil {
		return err
	}
	log.Info("System is idle")
	return nil
}

// SanitizeName strips characters that upset file names and report markup.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]()\/&@,`, r) {
			return -1
		}
		return r
	}, name)
}
