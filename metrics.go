package session

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/goliatone/go-session"

// Metric names.
const (
	MetricTransitions       = "session.transitions"
	MetricRejected          = "session.events.rejected"
	MetricOperations        = "session.operations"
	MetricOperationDuration = "session.operation.duration"
)

type machineMetrics struct {
	transitions metric.Int64Counter
	rejected    metric.Int64Counter
	operations  metric.Int64Counter
	duration    metric.Float64Histogram
}

func newMachineMetrics(mp metric.MeterProvider) (*machineMetrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(meterName)

	transitions, err := meter.Int64Counter(MetricTransitions,
		metric.WithDescription("State changes of the session machine."),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create transitions counter")
	}

	rejected, err := meter.Int64Counter(MetricRejected,
		metric.WithDescription("Events the current state did not accept."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create rejected counter")
	}

	operations, err := meter.Int64Counter(MetricOperations,
		metric.WithDescription("Identity provider operations by outcome."),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create operations counter")
	}

	duration, err := meter.Float64Histogram(MetricOperationDuration,
		metric.WithDescription("Latency of identity provider operations."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create duration histogram")
	}

	return &machineMetrics{
		transitions: transitions,
		rejected:    rejected,
		operations:  operations,
		duration:    duration,
	}, nil
}

func (m *machineMetrics) transition(ctx context.Context, from, to State) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

func (m *machineMetrics) reject(ctx context.Context, state State, event string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state.String()),
		attribute.String("event", event),
	))
}

func (m *machineMetrics) operation(ctx context.Context, op string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
