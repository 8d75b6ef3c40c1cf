package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/yungbote/txcore"

// MetricHooks reports unit-of-work signals as otel instruments.
type MetricHooks struct {
	ops         metric.Int64Counter
	latency     metric.Float64Histogram
	contentions metric.Int64Counter
	retries     metric.Int64Counter
}

// NewMetricHooks registers its instruments on meter, or on a no-op meter when nil.
func NewMetricHooks(meter metric.Meter) (*MetricHooks, error) {
	if meter == nil {
		meter = noopMeter()
	}
	h := &MetricHooks{}
	var err error
	if h.ops, err = meter.Int64Counter("txcore.uow.operations",
		metric.WithDescription("Unit of work operations by name and status.")); err != nil {
		return nil, err
	}
	if h.latency, err = meter.Float64Histogram("txcore.uow.duration",
		metric.WithDescription("Unit of work operation latency."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if h.contentions, err = meter.Int64Counter("txcore.uow.lock_contentions",
		metric.WithDescription("Operations that failed on a row locked elsewhere.")); err != nil {
		return nil, err
	}
	if h.retries, err = meter.Int64Counter("txcore.uow.retries",
		metric.WithDescription("Attempts re-run by a retry policy.")); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *MetricHooks) ObserveOperation(name, status string, dur time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", name),
		attribute.String("status", status),
	)
	ctx := context.Background()
	h.ops.Add(ctx, 1, attrs)
	h.latency.Record(ctx, dur.Seconds(), attrs)
}

func (h *MetricHooks) IncContention(name string) {
	h.contentions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("operation", name)))
}

func (h *MetricHooks) IncRetry(name string) {
	h.retries.Add(context.Background(), 1, metric.WithAttributes(attribute.String("operation", name)))
}

func noopMeter() metric.Meter { return noop.NewMeterProvider().Meter(meterName) }
