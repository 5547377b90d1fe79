package sync

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/telemetry"
)

const scopeName = "github.com/Mschirtzinger/arkhamdb-sync/sync"

// instruments holds the sync spans and metrics. With telemetry disabled the
// global providers are no-ops.
type instruments struct {
	tracer trace.Tracer
	runs   metric.Int64Counter
	rows   metric.Int64Counter
	errs   metric.Int64Counter
	dur    metric.Float64Histogram
}

func newInstruments() *instruments {
	m := telemetry.Meter(scopeName)
	runs, _ := m.Int64Counter("ahdb.sync.runs",
		metric.WithDescription("Sync operations started"),
	)
	rows, _ := m.Int64Counter("ahdb.sync.rows",
		metric.WithDescription("Rows inserted by sync operations"),
	)
	errs, _ := m.Int64Counter("ahdb.sync.errors",
		metric.WithDescription("Sync operations that returned an error"),
	)
	dur, _ := m.Float64Histogram("ahdb.sync.duration",
		metric.WithDescription("Sync operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &instruments{
		tracer: telemetry.Tracer(scopeName),
		runs:   runs,
		rows:   rows,
		errs:   errs,
		dur:    dur,
	}
}

// op starts a span for the named sync operation.
func (in *instruments) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("ahdb.sync.op", name)}, attrs...)
	ctx, span := in.tracer.Start(ctx, "sync."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	in.runs.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration, inserted rows and the error if any.
func (in *instruments) done(ctx context.Context, span trace.Span, start time.Time, name string, rows int, err error) {
	attrs := metric.WithAttributes(attribute.String("ahdb.sync.op", name))
	in.dur.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if rows > 0 {
		in.rows.Add(ctx, int64(rows), attrs)
		span.SetAttributes(attribute.Int("ahdb.sync.rows", rows))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		in.errs.Add(ctx, 1, attrs)
	}
	span.End()
}
