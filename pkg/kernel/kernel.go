// Package kernel is the governance gate. It runs a proposal through
// validation, curation and at most one repair, then either commits a signed
// and attested gene to the ledger or records a state-preserving refusal.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/anchor"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/attestation"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/canonicalize"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/crypto"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/curator"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/ledger"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/repair"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/validator"
)

const DefaultAttestationTimeout = 5 * time.Second

var (
	// ErrHalted is returned by every evaluation after an integrity failure
	// until Recover succeeds.
	ErrHalted = errors.New("kernel: halted after integrity failure")

	ErrMissingDependency = errors.New("kernel: missing dependency")
)

// Policy is the per-process admission policy used to synthesize actions.
type Policy struct {
	Version       string
	ActorID       string
	RevocationRef string
	// DefaultTau and DefaultPhi fill the proof and verification sections
	// when a request does not supply them. Zero leaves the section absent.
	DefaultTau float64
	DefaultPhi float64
	// WitnessQuorum, when non-empty, requires every request to carry at
	// least one witness. It is part of the state hash.
	WitnessQuorum      []string
	AttestationTimeout time.Duration
}

// Deps wires the kernel's collaborators. Anchor, Validator, Curator,
// Ledger, Refusals and Prover are required.
type Deps struct {
	Anchor    *anchor.Store
	Validator *validator.Validator
	Curator   *curator.Curator
	Repair    *repair.Engine
	Ledger    *ledger.Ledger
	Refusals  *ledger.RefusalLog
	Prover    attestation.Prover
	Signer    crypto.Signer
	Metrics   Metrics
	Observer  StateObserver
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Request is a proposal plus optional caller-supplied action sections that
// override the policy defaults.
type Request struct {
	Content      string
	Authority    *contracts.Authority
	Proof        *contracts.ActionProof
	Verification *contracts.Verification
	Witnesses    []string
}

// Kernel is safe for concurrent use. Validation and curation run
// concurrently; commits are serialized.
type Kernel struct {
	policy    Policy
	anchor    *anchor.Store
	validator *validator.Validator
	curator   *curator.Curator
	repair    *repair.Engine
	ledger    *ledger.Ledger
	refusals  *ledger.RefusalLog
	prover    attestation.Prover
	signer    crypto.Signer
	metrics   Metrics
	observer  StateObserver
	logger    *slog.Logger
	clock     func() time.Time

	commitMu sync.Mutex
	halted   atomic.Bool
}

func New(policy Policy, d Deps) (*Kernel, error) {
	switch {
	case d.Anchor == nil:
		return nil, fmt.Errorf("%w: anchor", ErrMissingDependency)
	case d.Validator == nil:
		return nil, fmt.Errorf("%w: validator", ErrMissingDependency)
	case d.Curator == nil:
		return nil, fmt.Errorf("%w: curator", ErrMissingDependency)
	case d.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger", ErrMissingDependency)
	case d.Refusals == nil:
		return nil, fmt.Errorf("%w: refusal log", ErrMissingDependency)
	case d.Prover == nil:
		return nil, fmt.Errorf("%w: prover", ErrMissingDependency)
	}
	if policy.AttestationTimeout <= 0 {
		policy.AttestationTimeout = DefaultAttestationTimeout
	}
	policy.WitnessQuorum = slices.Clone(policy.WitnessQuorum)
	slices.Sort(policy.WitnessQuorum)

	k := &Kernel{
		policy:    policy,
		anchor:    d.Anchor,
		validator: d.Validator,
		curator:   d.Curator,
		repair:    d.Repair,
		ledger:    d.Ledger,
		refusals:  d.Refusals,
		prover:    d.Prover,
		signer:    d.Signer,
		metrics:   d.Metrics,
		observer:  d.Observer,
		logger:    d.Logger,
		clock:     d.Clock,
	}
	if k.repair == nil {
		k.repair = repair.NewEngine(d.Curator, d.Logger)
	}
	if k.signer == nil {
		k.signer = d.Anchor.Signer()
	}
	if k.metrics == nil {
		k.metrics = noopMetrics{}
	}
	if k.logger == nil {
		k.logger = slog.Default()
	}
	k.logger = k.logger.With("component", "kernel")
	if k.clock == nil {
		k.clock = time.Now
	}
	return k, nil
}

// Evaluate runs raw content through the gate with the policy's default
// authority, proof and verification.
func (k *Kernel) Evaluate(ctx context.Context, raw string) (contracts.Outcome, error) {
	return k.Submit(ctx, Request{Content: raw})
}

// Submit runs a request through the gate. Admission failures come back as
// Refused outcomes with a nil error; the error is reserved for cancellation
// before commit, a halted kernel, and failures to record a refusal.
func (k *Kernel) Submit(ctx context.Context, req Request) (contracts.Outcome, error) {
	if k.halted.Load() {
		return contracts.Outcome{}, ErrHalted
	}
	if err := ctx.Err(); err != nil {
		return contracts.Outcome{}, err
	}

	r := &run{k: k, requestID: uuid.NewString(), state: StateIdle, started: k.clock()}

	normalized, err := canonicalize.NormalizeText(req.Content)
	if err != nil {
		return k.refuse(ctx, r, refusal{
			code:   contracts.ViolationInvalidCanonicalization,
			detail: err.Error(),
		})
	}
	if strings.TrimSpace(normalized) == "" {
		state, err := k.StateHash()
		if err != nil {
			return contracts.Outcome{}, err
		}
		k.logger.DebugContext(ctx, "quiescent proposal", "request_id", r.requestID)
		k.metrics.RecordOutcome(ctx, contracts.OutcomeQuiescent, "", k.clock().Sub(r.started))
		return contracts.Quiescent(state), nil
	}

	requestHash, err := canonicalize.CanonicalHash(map[string]string{"content": normalized})
	if err != nil {
		return contracts.Outcome{}, fmt.Errorf("kernel: hash request: %w", err)
	}

	r.to(ctx, StateValidating)
	if rf := k.checkWitnesses(req.Witnesses); rf != nil {
		rf.requestHash = requestHash
		return k.refuse(ctx, r, *rf)
	}
	action := k.synthesize(req, requestHash)
	if err := k.validator.Validate(ctx, action); err != nil {
		var v *validator.Violation
		if errors.As(err, &v) {
			return k.refuse(ctx, r, refusal{
				code:        v.Code,
				detail:      v.Detail,
				delta:       v.Delta,
				requestHash: requestHash,
			})
		}
		return contracts.Outcome{}, err
	}
	actionHash, err := canonicalize.CanonicalHash(action)
	if err != nil {
		return contracts.Outcome{}, fmt.Errorf("kernel: hash action: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return contracts.Outcome{}, err
	}

	r.to(ctx, StateCurating)
	draft, rf := k.curate(ctx, r, normalized)
	if rf != nil {
		rf.requestHash = requestHash
		return k.refuse(ctx, r, *rf)
	}
	draft.Manifest.RequestHash = requestHash
	draft.Manifest.ActionHash = actionHash
	if err := ctx.Err(); err != nil {
		return contracts.Outcome{}, err
	}

	r.to(ctx, StateCommitting)
	return k.commit(context.WithoutCancel(ctx), r, draft, normalized)
}

// synthesize builds the structural action for a request. The anchor section
// binds to the current tip, or to the lineage root while the ledger is empty.
func (k *Kernel) synthesize(req Request, requestHash string) *contracts.Action {
	tip, _ := k.head()
	a := &contracts.Action{
		Anchor: &contracts.ActionAnchor{
			ParentHash:  tip,
			PayloadHash: requestHash,
			AnchorKey:   k.anchor.Anchor().PublicKey,
		},
	}

	switch {
	case req.Authority != nil:
		auth := *req.Authority
		a.Authority = &auth
	case k.policy.ActorID != "" || k.policy.RevocationRef != "":
		a.Authority = &contracts.Authority{ActorID: k.policy.ActorID, RevocationRef: k.policy.RevocationRef}
	}

	switch {
	case req.Proof != nil:
		p := *req.Proof
		a.Proof = &p
	case k.policy.DefaultTau != 0:
		a.Proof = &contracts.ActionProof{ThresholdTau: k.policy.DefaultTau}
	}

	switch {
	case req.Verification != nil:
		v := *req.Verification
		a.Verification = &v
	case k.policy.DefaultPhi != 0:
		a.Verification = &contracts.Verification{PhiScore: k.policy.DefaultPhi}
	}
	return a
}

// checkWitnesses enforces the witness quorum: with a quorum configured the
// request must carry at least one non-blank witness.
func (k *Kernel) checkWitnesses(witnesses []string) *refusal {
	if len(k.policy.WitnessQuorum) == 0 {
		return nil
	}
	for _, w := range witnesses {
		if strings.TrimSpace(w) != "" {
			return nil
		}
	}
	return &refusal{
		code:   contracts.ViolationInsufficientWitness,
		detail: fmt.Sprintf("quorum of %d configured, request carries no witness", len(k.policy.WitnessQuorum)),
	}
}

// curate returns a draft gene, or the refusal to record. Admissible content
// is contracted once; inadmissible content gets at most one repair.
func (k *Kernel) curate(ctx context.Context, r *run, content string) (*contracts.Gene, *refusal) {
	anc := k.anchor.Anchor()
	ratio, ok := k.curator.Admissible(content, anc)
	if ok {
		curated, trace := k.curator.Apply(content)
		if !trace.Converged || !k.curator.VerifyContraction(content, curated) {
			target := trace.MetricBefore * k.curator.K()
			return nil, &refusal{
				code:   contracts.ViolationNoContractivePath,
				detail: fmt.Sprintf("contraction stopped at metric %.6g after %d iterations, target %.6g", trace.MetricAfter, trace.Iterations, target),
			}
		}
		score, _ := k.curator.Admissible(curated, anc)
		return &contracts.Gene{
			ID:      uuid.NewString(),
			Content: curated,
			Score:   score,
			Manifest: contracts.MutationManifest{
				Mutations: []contracts.Mutation{trace.Mutation(contracts.MutationContract)},
			},
			Lineage: contracts.Lineage{Kind: contracts.LineageFirstPass},
		}, nil
	}

	r.to(ctx, StateRepairing)
	gene, repaired := k.repair.Recompute(ctx, content, anc)
	k.metrics.RecordRepair(ctx, repaired)
	if !repaired {
		return nil, &refusal{
			code:   contracts.ViolationNoContractivePath,
			detail: fmt.Sprintf("admissibility ratio %.6g exceeds %.6g and repair did not converge", ratio, k.curator.Config().MaxRatio),
			delta:  ratio - k.curator.Config().MaxRatio,
		}
	}
	return gene, nil
}

// commit runs under the commit mutex with a context detached from the
// caller. Nothing is reported as executed before the append returns.
func (k *Kernel) commit(ctx context.Context, r *run, g *contracts.Gene, normalized string) (contracts.Outcome, error) {
	k.commitMu.Lock()
	defer k.commitMu.Unlock()

	if k.halted.Load() {
		return contracts.Outcome{}, ErrHalted
	}
	_, before, err := k.snapshot()
	if err != nil {
		return contracts.Outcome{}, err
	}

	gene := *g
	gene.Sequence = 0
	gene.ParentHash = k.anchor.Anchor().RootHash
	if tip, ok := k.ledger.Tip(); ok {
		gene.Sequence = tip.Gene.Sequence + 1
		gene.ParentHash = tip.Hash
	}
	gene.Timestamp = k.clock().UTC()

	if rf := k.emissionGate(&gene, normalized); rf != nil {
		rf.requestHash = gene.Manifest.RequestHash
		return k.refuse(ctx, r, *rf)
	}

	entryHash, err := ledger.EntryHash(&gene)
	if err != nil {
		return contracts.Outcome{}, fmt.Errorf("kernel: hash gene: %w", err)
	}
	if err := k.signer.SignGene(&gene, entryHash); err != nil {
		return contracts.Outcome{}, fmt.Errorf("kernel: sign gene: %w", err)
	}

	actx, cancel := context.WithTimeout(ctx, k.policy.AttestationTimeout)
	proof, err := k.prover.GenerateProof(actx,
		attestation.PublicInputs{EntryHash: entryHash, ParentHash: gene.ParentHash, Sequence: gene.Sequence},
		attestation.PrivateInputs{Content: gene.Content},
	)
	cancel()
	if err == nil && proof == nil {
		err = attestation.ErrNilProof
	}
	if err != nil {
		k.logger.WarnContext(ctx, "attestation failed", "request_id", r.requestID, "error", err)
		return k.refuse(ctx, r, refusal{
			code:        contracts.ViolationAttestationFailure,
			detail:      err.Error(),
			requestHash: gene.Manifest.RequestHash,
		})
	}
	gene.Proof = proof

	entry, err := k.ledger.Append(ctx, gene)
	if err != nil {
		return k.integrityFailure(ctx, r, gene.Manifest.RequestHash, err)
	}

	_, after, err := k.snapshot()
	if err != nil {
		return contracts.Outcome{}, err
	}
	k.logger.InfoContext(ctx, "gene committed",
		"request_id", r.requestID,
		"sequence", entry.Gene.Sequence,
		"hash", entry.Hash,
		"lineage", string(entry.Gene.Lineage.Kind),
	)
	r.to(ctx, StateIdle)
	k.metrics.RecordOutcome(ctx, contracts.OutcomeExecuted, "", k.clock().Sub(r.started))
	return contracts.Executed(entry.Gene, before, after), nil
}

// emissionGate bounds what may leave the kernel: the curator only removes
// material from the tail, and the manifest may only name curator operations.
func (k *Kernel) emissionGate(g *contracts.Gene, normalized string) *refusal {
	if !strings.HasPrefix(normalized, g.Content) {
		return &refusal{
			code:   contracts.ViolationEmissionGate,
			detail: "gene content is not a prefix of the proposal",
		}
	}
	if len(g.Manifest.Mutations) > 1 {
		return &refusal{
			code:   contracts.ViolationEmissionGate,
			detail: fmt.Sprintf("manifest lists %d mutations, at most one expected", len(g.Manifest.Mutations)),
		}
	}
	for _, m := range g.Manifest.Mutations {
		if m.Op != contracts.MutationContract && m.Op != contracts.MutationReAction {
			return &refusal{
				code:   contracts.ViolationEmissionGate,
				detail: fmt.Sprintf("unexpected mutation %q in manifest", m.Op),
			}
		}
	}
	return nil
}

// integrityFailure handles a rejected append: the kernel halts and the
// failure is recorded as a refusal.
func (k *Kernel) integrityFailure(ctx context.Context, r *run, requestHash string, err error) (contracts.Outcome, error) {
	k.halted.Store(true)

	underlying := contracts.ViolationLedgerIntegrity
	if code, ok := ledger.CodeOf(err); ok {
		underlying = code
	}
	k.logger.ErrorContext(ctx, "ledger append failed, kernel halted",
		"request_id", r.requestID,
		"code", string(underlying),
		"error", err,
		"alert", true,
	)
	k.metrics.RecordIntegrityFailure(ctx, underlying)

	return k.refuse(ctx, r, refusal{
		code:        contracts.ViolationLedgerIntegrity,
		detail:      err.Error(),
		requestHash: requestHash,
	})
}

// Recover reloads both chains from durable storage, verifies them and
// clears the halt if they are intact. Durable records the in-memory view
// missed, such as an append whose write landed but reported failure, are
// adopted so the next commit chains to the durable tip. A durable history
// that diverges from memory keeps the kernel halted.
func (k *Kernel) Recover(ctx context.Context) error {
	k.commitMu.Lock()
	defer k.commitMu.Unlock()

	adopted, err := k.ledger.Reload(ctx)
	if err != nil {
		return fmt.Errorf("kernel: recover: gene ledger: %w", err)
	}
	if adopted > 0 {
		k.logger.ErrorContext(ctx, "durable ledger ahead of memory, adopted entries reported as refused",
			"adopted", adopted,
			"alert", true,
		)
	}
	if _, err := k.refusals.Reload(ctx); err != nil {
		return fmt.Errorf("kernel: recover: refusal log: %w", err)
	}
	if k.halted.Swap(false) {
		k.logger.InfoContext(ctx, "kernel recovered", "entries", k.ledger.Len())
	}
	return nil
}

// Halted reports whether the kernel is refusing all work.
func (k *Kernel) Halted() bool { return k.halted.Load() }

// StateHash commits to the accepted state: ledger head, policy version,
// witness quorum and append count.
func (k *Kernel) StateHash() (string, error) {
	_, state, err := k.snapshot()
	return state, err
}

// snapshot returns the tip hash and the state hash from a single read of
// the ledger head. The tip is the lineage root while the ledger is empty.
func (k *Kernel) snapshot() (tip, state string, err error) {
	tip, count := k.head()
	quorum := k.policy.WitnessQuorum
	if quorum == nil {
		quorum = []string{}
	}
	state, err = canonicalize.CanonicalHash(map[string]any{
		"ledger_head":    tip,
		"policy_version": k.policy.Version,
		"witness_quorum": quorum,
		"append_count":   count,
	})
	if err != nil {
		return "", "", fmt.Errorf("kernel: state hash: %w", err)
	}
	return tip, state, nil
}

func (k *Kernel) head() (string, int) {
	tip, count := k.ledger.Head()
	if tip == "" {
		tip = k.anchor.Anchor().RootHash
	}
	return tip, count
}

func (k *Kernel) Anchor() contracts.Anchor { return k.anchor.Anchor() }

func (k *Kernel) Ledger() *ledger.Ledger { return k.ledger }

func (k *Kernel) Refusals() *ledger.RefusalLog { return k.refusals }

func (k *Kernel) Policy() Policy { return k.policy }
