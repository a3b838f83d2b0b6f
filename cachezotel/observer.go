// Package cachezotel reports cachez wrapper activity as OpenTelemetry metrics.
package cachezotel

import (
	"context"
	"time"

	"github.com/goforj/cachez"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Observer records one data point per wrapper call.
type Observer struct {
	ops      metric.Int64Counter
	hits     metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

var _ cachez.Observer = (*Observer)(nil)

// NewObserver registers the cachez instruments on meter.
//
// Example: export cachez metrics
//
//	obs, err := cachezotel.NewObserver(otel.Meter("app"))
//	if err != nil {
//		return err
//	}
//	cachez.SetObserver(obs)
func NewObserver(meter metric.Meter) (*Observer, error) {
	ops, err := meter.Int64Counter(
		"cachez.ops",
		metric.WithDescription("Total number of cachez wrapper calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	hits, err := meter.Int64Counter(
		"cachez.hits",
		metric.WithDescription("Calls answered from a cached or persisted result"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter(
		"cachez.errors",
		metric.WithDescription("Calls that returned an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"cachez.duration_ms",
		metric.WithDescription("Wrapper call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{ops: ops, hits: hits, errors: errs, duration: duration}, nil
}

// OnCacheOp implements cachez.Observer. Keys are not recorded as attributes.
func (o *Observer) OnCacheOp(ctx context.Context, op string, _ string, hit bool, err error, dur time.Duration, driver cachez.Driver) {
	attrs := []attribute.KeyValue{attribute.String("cachez.op", op)}
	if driver != "" {
		attrs = append(attrs, attribute.String("cachez.driver", string(driver)))
	}
	opt := metric.WithAttributes(attrs...)

	o.ops.Add(ctx, 1, opt)
	if hit {
		o.hits.Add(ctx, 1, opt)
	}
	if err != nil {
		o.errors.Add(ctx, 1, opt)
	}
	o.duration.Record(ctx, float64(dur)/float64(time.Millisecond), opt)
}
