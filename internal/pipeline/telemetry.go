package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("energysense/internal/pipeline")

var (
	// readingsProcessed counts readings that completed the full
	// classification pass, labeled by ingest source.
	readingsProcessed metric.Int64Counter
	// readingsDropped counts readings rejected before classification,
	// labeled by reason (queue_full, missing_block).
	readingsDropped metric.Int64Counter
	// deviationRecorded tracks the baseline deviation distribution in
	// percent across all zones.
	deviationRecorded metric.Float64Histogram
	// actionsProposed counts automated demand-response proposals.
	actionsProposed metric.Int64Counter
	// alertsRaised counts persistent-waste alerts.
	alertsRaised metric.Int64Counter
)

func init() {
	var err error
	readingsProcessed, err = meter.Int64Counter(
		"pipeline.readings.processed",
		metric.WithDescription("Readings that completed the classification pass."),
	)
	if err != nil {
		panic("pipeline: failed to init 'pipeline.readings.processed' instrument")
	}
	readingsDropped, err = meter.Int64Counter(
		"pipeline.readings.dropped",
		metric.WithDescription("Readings rejected before classification."),
	)
	if err != nil {
		panic("pipeline: failed to init 'pipeline.readings.dropped' instrument")
	}
	deviationRecorded, err = meter.Float64Histogram(
		"pipeline.deviation.pct",
		metric.WithDescription("Baseline deviation of processed readings."),
		metric.WithUnit("%"),
	)
	if err != nil {
		panic("pipeline: failed to init 'pipeline.deviation.pct' instrument")
	}
	actionsProposed, err = meter.Int64Counter(
		"pipeline.actions.proposed",
		metric.WithDescription("Automated demand-response proposals."),
	)
	if err != nil {
		panic("pipeline: failed to init 'pipeline.actions.proposed' instrument")
	}
	alertsRaised, err = meter.Int64Counter(
		"pipeline.alerts.raised",
		metric.WithDescription("Persistent-waste alerts raised."),
	)
	if err != nil {
		panic("pipeline: failed to init 'pipeline.alerts.raised' instrument")
	}
}

func measureProcessed(ctx context.Context, source string, deviationPct float64) {
	attrs := attribute.NewSet(attribute.String("source", source))
	readingsProcessed.Add(ctx, 1, metric.WithAttributeSet(attrs))
	deviationRecorded.Record(ctx, deviationPct)
}

func measureDropped(ctx context.Context, reason string) {
	attrs := attribute.NewSet(attribute.String("reason", reason))
	readingsDropped.Add(ctx, 1, metric.WithAttributeSet(attrs))
}
