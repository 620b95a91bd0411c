package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

var (
	AttrOutcome   = attribute.Key("govkernel.outcome")
	AttrCode      = attribute.Key("govkernel.violation_code")
	AttrConverged = attribute.Key("govkernel.repair.converged")
)

// KernelMetrics records kernel outcomes as OpenTelemetry instruments.
type KernelMetrics struct {
	evaluations metric.Int64Counter
	refusals    metric.Int64Counter
	repairs     metric.Int64Counter
	integrity   metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewKernelMetrics creates the kernel instruments on meter.
func NewKernelMetrics(meter metric.Meter) (*KernelMetrics, error) {
	var (
		m   KernelMetrics
		err error
	)
	if m.evaluations, err = meter.Int64Counter("govkernel.evaluations.total",
		metric.WithDescription("Proposals evaluated, by outcome"),
		metric.WithUnit("{evaluation}"),
	); err != nil {
		return nil, err
	}
	if m.refusals, err = meter.Int64Counter("govkernel.refusals.total",
		metric.WithDescription("State-preserving refusals, by violation code"),
		metric.WithUnit("{refusal}"),
	); err != nil {
		return nil, err
	}
	if m.repairs, err = meter.Int64Counter("govkernel.repairs.total",
		metric.WithDescription("Repair attempts, by convergence"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}
	if m.integrity, err = meter.Int64Counter("govkernel.integrity_failures.total",
		metric.WithDescription("Ledger integrity failures"),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("govkernel.evaluation.duration",
		metric.WithDescription("Evaluation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *KernelMetrics) RecordOutcome(ctx context.Context, kind contracts.OutcomeKind, code contracts.ViolationCode, elapsed time.Duration) {
	outcome := metric.WithAttributes(AttrOutcome.String(string(kind)))
	m.evaluations.Add(ctx, 1, outcome)
	m.duration.Record(ctx, elapsed.Seconds(), outcome)
	if kind == contracts.OutcomeRefused {
		m.refusals.Add(ctx, 1, metric.WithAttributes(AttrCode.String(string(code))))
	}
}

func (m *KernelMetrics) RecordRepair(ctx context.Context, converged bool) {
	m.repairs.Add(ctx, 1, metric.WithAttributes(AttrConverged.Bool(converged)))
}

func (m *KernelMetrics) RecordIntegrityFailure(ctx context.Context, code contracts.ViolationCode) {
	m.integrity.Add(ctx, 1, metric.WithAttributes(AttrCode.String(string(code))))
}
