package grid

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/racegrid/log"
)

type metrics struct {
	events       metric.Int64Counter
	resolved     metric.Int64Counter
	reorders     metric.Int64Counter
	crashOuts    metric.Int64Counter
	resolveTime  metric.Float64Histogram
	pendingQueue metric.Int64ObservableGauge
}

//nolint:funlen // by design
func newMetrics(c *Coordinator) *metrics {
	meter := otel.GetMeterProvider().Meter("racegrid.grid")
	m := &metrics{}
	var err error
	report := func(name string, err error) {
		if err != nil {
			c.l.Error("failed to register metric",
				log.String("metric", name),
				log.ErrorField(err))
		}
	}
	m.events, err = meter.Int64Counter("racegrid.grid.events",
		metric.WithDescription("Number of processed events"),
		metric.WithUnit("{count}"))
	report("racegrid.grid.events", err)
	m.resolved, err = meter.Int64Counter("racegrid.grid.resolved",
		metric.WithDescription("Number of resolved slots"),
		metric.WithUnit("{count}"))
	report("racegrid.grid.resolved", err)
	m.reorders, err = meter.Int64Counter("racegrid.grid.reorders",
		metric.WithDescription("Number of applied reorders"),
		metric.WithUnit("{count}"))
	report("racegrid.grid.reorders", err)
	m.crashOuts, err = meter.Int64Counter("racegrid.grid.crashout.changes",
		metric.WithDescription("Number of crash-out classification changes"),
		metric.WithUnit("{count}"))
	report("racegrid.grid.crashout.changes", err)
	m.resolveTime, err = meter.Float64Histogram("racegrid.grid.resolve.duration",
		metric.WithDescription("Duration of a resolve pass"),
		metric.WithUnit("ms"))
	report("racegrid.grid.resolve.duration", err)
	m.pendingQueue, err = meter.Int64ObservableGauge("racegrid.grid.queue",
		metric.WithDescription("Number of queued events"),
		metric.WithUnit("{count}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(c.queued()))
			return nil
		}))
	report("racegrid.grid.queue", err)
	return m
}

func (m *metrics) event(ctx context.Context, ev Event) {
	if m.events == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", ev.Kind())))
}

func (m *metrics) add(ctx context.Context, c metric.Int64Counter, n int) {
	if c == nil || n == 0 {
		return
	}
	c.Add(ctx, int64(n))
}
