package kernel

import (
	"context"
	"time"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

// State is a stage of a single evaluation.
type State string

const (
	StateIdle       State = "IDLE"
	StateValidating State = "VALIDATING"
	StateCurating   State = "CURATING"
	StateRepairing  State = "REPAIRING"
	StateCommitting State = "COMMITTING"
	StateRefused    State = "REFUSED"
)

// StateObserver is notified of every transition of every evaluation.
// It runs synchronously on the evaluating goroutine and must not block.
type StateObserver func(ctx context.Context, requestID string, from, to State)

// Metrics receives kernel counters. observability.KernelMetrics is the
// OpenTelemetry implementation.
type Metrics interface {
	RecordOutcome(ctx context.Context, kind contracts.OutcomeKind, code contracts.ViolationCode, elapsed time.Duration)
	RecordRepair(ctx context.Context, converged bool)
	RecordIntegrityFailure(ctx context.Context, code contracts.ViolationCode)
}

type noopMetrics struct{}

func (noopMetrics) RecordOutcome(context.Context, contracts.OutcomeKind, contracts.ViolationCode, time.Duration) {
}
func (noopMetrics) RecordRepair(context.Context, bool)                              {}
func (noopMetrics) RecordIntegrityFailure(context.Context, contracts.ViolationCode) {}

// run tracks the current stage of one evaluation.
type run struct {
	k         *Kernel
	requestID string
	state     State
	started   time.Time
}

func (r *run) to(ctx context.Context, next State) {
	prev := r.state
	r.state = next
	r.k.logger.DebugContext(ctx, "state transition",
		"request_id", r.requestID,
		"from", string(prev),
		"to", string(next),
	)
	if r.k.observer != nil {
		r.k.observer(ctx, r.requestID, prev, next)
	}
}
