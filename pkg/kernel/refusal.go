package kernel

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

type refusal struct {
	code        contracts.ViolationCode
	detail      string
	delta       float64
	requestHash string
}

// refuse records a refusal in the side-log. The tip and state hash come
// from one read of the ledger head, and the state hash is stamped as both
// before and after: no refusal path mutates the ledger.
func (k *Kernel) refuse(ctx context.Context, r *run, rf refusal) (contracts.Outcome, error) {
	r.to(ctx, StateRefused)

	tip, state, err := k.snapshot()
	if err != nil {
		return contracts.Outcome{}, err
	}
	delta := rf.delta
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		delta = 0
	}

	rec := contracts.RefusalRecord{
		NodeID:          uuid.NewString(),
		ReasonCode:      rf.code,
		ViolationDetail: rf.detail,
		ViolationDelta:  delta,
		RequestHash:     rf.requestHash,
		Timestamp:       k.clock().UTC(),
		TipHash:         tip,
		StateHashBefore: state,
		StateHashAfter:  state,
	}
	stored, err := k.refusals.Append(ctx, rec)
	if err != nil {
		k.logger.ErrorContext(ctx, "failed to record refusal",
			"request_id", r.requestID,
			"code", string(rf.code),
			"error", err,
		)
		return contracts.Outcome{}, fmt.Errorf("kernel: record refusal: %w", err)
	}

	k.logger.InfoContext(ctx, "proposal refused",
		"request_id", r.requestID,
		"code", string(stored.ReasonCode),
		"node_id", stored.NodeID,
	)
	r.to(ctx, StateIdle)
	k.metrics.RecordOutcome(ctx, contracts.OutcomeRefused, rf.code, k.clock().Sub(r.started))
	return contracts.Refused(*stored), nil
}
