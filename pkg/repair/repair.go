// Package repair performs the single bounded re-curation attempted after a
// proposal fails admissibility.
package repair

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/canonicalize"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/curator"
)

// Engine owns no ledger state. Sequence, parent hash and timestamp of the
// draft gene are left for the committer.
type Engine struct {
	curator  *curator.Curator
	logger   *slog.Logger
	attempts atomic.Int64
}

func NewEngine(c *curator.Curator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{curator: c, logger: logger.With("component", "repair")}
}

// Attempts returns how many times Recompute has been called.
func (e *Engine) Attempts() int64 {
	return e.attempts.Load()
}

// Recompute re-applies the curator to failed. It succeeds only when the
// result reaches metric(failed)*K and passes VerifyContraction; otherwise it
// returns nil, false and the caller must refuse.
func (e *Engine) Recompute(ctx context.Context, failed string, anchor contracts.Anchor) (*contracts.Gene, bool) {
	e.attempts.Add(1)

	target := e.curator.Metric(failed) * e.curator.K()
	curated, trace := e.curator.Apply(failed)

	if !(trace.MetricAfter <= target) || !e.curator.VerifyContraction(failed, curated) {
		e.logger.DebugContext(ctx, "no contractive path",
			"metric_before", trace.MetricBefore,
			"metric_after", trace.MetricAfter,
			"target", target,
			"iterations", trace.Iterations,
		)
		return nil, false
	}

	failedRatio, _ := e.curator.Admissible(failed, anchor)
	score, _ := e.curator.Admissible(curated, anchor)

	gene := &contracts.Gene{
		ID:      uuid.NewString(),
		Content: curated,
		Score:   score,
		Manifest: contracts.MutationManifest{
			Mutations: []contracts.Mutation{trace.Mutation(contracts.MutationReAction)},
		},
		Lineage: contracts.Lineage{
			Kind:        contracts.LineageReAction,
			FailedHash:  canonicalize.HashString(failed),
			FailedScore: failedRatio,
		},
	}

	e.logger.DebugContext(ctx, "repair converged",
		"runes_before", trace.RunesBefore,
		"runes_after", trace.RunesAfter,
		"iterations", trace.Iterations,
	)
	return gene, true
}
