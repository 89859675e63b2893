package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
)

var (
	meterOnce    sync.Once
	testRuns     metric.Int64Counter
	testDuration metric.Float64Histogram
)

func instruments() {
	meterOnce.Do(func() {
		m := otel.Meter(shared.HwcertID)
		var err error
		if testRuns, err = m.Int64Counter("hwcert.tests",
			metric.WithDescription("Test instances run, by result")); err != nil {
			testRuns = noop.Int64Counter{}
		}
		if testDuration, err = m.Float64Histogram("hwcert.test.duration",
			metric.WithDescription("Wall time of one test instance"),
			metric.WithUnit("s")); err != nil {
			testDuration = noop.Float64Histogram{}
		}
	})
}

// RecordTest counts one finished test instance and its duration.
func RecordTest(ctx context.Context, path, result string, took time.Duration) {
	instruments()
	attrs := metric.WithAttributes(
		attribute.String("hwcert.test.path", path),
		attribute.String("hwcert.test.result", result),
	)
	testRuns.Add(ctx, 1, attrs)
	testDuration.Record(ctx, took.Seconds(), attrs)
}
