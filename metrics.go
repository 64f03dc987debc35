package bracefmt

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/jward/bracefmt"

// engineMetrics holds the counters recorded by CheckFiles.
type engineMetrics struct {
	filesChecked metric.Int64Counter
	filesSkipped metric.Int64Counter
	filesFailed  metric.Int64Counter
	linesChecked metric.Int64Counter
}

func newEngineMetrics(mp metric.MeterProvider) (*engineMetrics, error) {
	var meter metric.Meter
	if mp != nil {
		meter = mp.Meter(meterName)
	} else {
		meter = otel.Meter(meterName)
	}

	checked, err := meter.Int64Counter(
		"bracefmt.files.checked",
		metric.WithDescription("Files analyzed by the brace engine"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create files checked counter: %w", err)
	}
	skipped, err := meter.Int64Counter(
		"bracefmt.files.skipped",
		metric.WithDescription("Files skipped because their content was unchanged"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create files skipped counter: %w", err)
	}
	failed, err := meter.Int64Counter(
		"bracefmt.files.failed",
		metric.WithDescription("Files whose braces did not balance"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create files failed counter: %w", err)
	}
	lines, err := meter.Int64Counter(
		"bracefmt.lines.checked",
		metric.WithDescription("Source lines analyzed by the brace engine"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lines checked counter: %w", err)
	}

	return &engineMetrics{
		filesChecked: checked,
		filesSkipped: skipped,
		filesFailed:  failed,
		linesChecked: lines,
	}, nil
}

func (m *engineMetrics) recordChecked(ctx context.Context, r *FileReport) {
	attrs := metric.WithAttributes(attribute.String("language", r.Language))
	m.filesChecked.Add(ctx, 1, attrs)
	m.linesChecked.Add(ctx, int64(r.Stats.Lines), attrs)
	if !r.Error.OK() {
		m.filesFailed.Add(ctx, 1, attrs)
	}
}

func (m *engineMetrics) recordSkipped(ctx context.Context, r *FileReport) {
	m.filesSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("language", r.Language)))
}
