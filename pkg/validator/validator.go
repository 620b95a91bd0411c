// Package validator performs the structural admission checks on a
// synthesized Action. It never touches the ledger.
package validator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/revocation"
)

const (
	DefaultMaxTau = 1.0
	DefaultMinPhi = 5.0
)

// Violation is the error returned for a failed check. Delta is how far a
// numeric field sits outside its admissible range, zero otherwise.
type Violation struct {
	Code   contracts.ViolationCode
	Detail string
	Delta  float64
}

func (v *Violation) Error() string {
	if v.Detail == "" {
		return string(v.Code)
	}
	return fmt.Sprintf("%s: %s", v.Code, v.Detail)
}

func violation(code contracts.ViolationCode, format string, args ...any) *Violation {
	return &Violation{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the violation code from err, if it carries one.
func CodeOf(err error) (contracts.ViolationCode, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v.Code, true
	}
	return "", false
}

// Config holds the process-wide thresholds.
type Config struct {
	MaxTau float64
	MinPhi float64
	// AdmissionExpr is an optional CEL expression over `input` that must
	// evaluate to true for the action to pass.
	AdmissionExpr string
}

func DefaultConfig() Config {
	return Config{MaxTau: DefaultMaxTau, MinPhi: DefaultMinPhi}
}

// AnchorIdentity answers whether a public key is the kernel's anchor.
// anchor.Store implements it.
type AnchorIdentity interface {
	IsAnchor(publicKeyHex string) bool
}

// Validator is safe for concurrent use.
type Validator struct {
	cfg      Config
	registry revocation.Registry
	anchor   AnchorIdentity
	policy   cel.Program
}

// New builds a validator. registry may be nil, in which case revocation
// lookups are skipped. An invalid AdmissionExpr is a configuration error.
func New(cfg Config, registry revocation.Registry) (*Validator, error) {
	if !(cfg.MaxTau > 0) {
		return nil, fmt.Errorf("validator: max_tau must be positive, got %v", cfg.MaxTau)
	}
	if math.IsNaN(cfg.MinPhi) {
		return nil, errors.New("validator: min_phi is NaN")
	}
	v := &Validator{cfg: cfg, registry: registry}
	if strings.TrimSpace(cfg.AdmissionExpr) != "" {
		prg, err := compile(cfg.AdmissionExpr)
		if err != nil {
			return nil, err
		}
		v.policy = prg
	}
	return v, nil
}

func compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("validator: create CEL env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("validator: CEL compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("validator: CEL program error: %w", err)
	}
	return prg, nil
}

// WithAnchor makes the anchor check also require that the action names the
// anchor identity. Call it before the validator is shared.
func (v *Validator) WithAnchor(id AnchorIdentity) *Validator {
	v.anchor = id
	return v
}

func (v *Validator) Config() Config { return v.cfg }

// Validate runs the checks in fixed order and returns the first *Violation,
// or nil if the action is admissible. Context cancellation is returned as is.
func (v *Validator) Validate(ctx context.Context, a *contracts.Action) error {
	if a == nil || a.Authority == nil {
		return violation(contracts.ViolationMissingAuthority, "authority section absent")
	}
	if strings.TrimSpace(a.Authority.RevocationRef) == "" {
		return violation(contracts.ViolationMissingRevocation, "revocation_ref is blank")
	}

	if v.registry != nil {
		revoked, err := v.registry.IsRevoked(ctx, a.Authority.RevocationRef)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return violation(contracts.ViolationRevoked, "revocation lookup failed: %v", err)
		}
		if revoked {
			return violation(contracts.ViolationRevoked, "revocation_ref %q is revoked", a.Authority.RevocationRef)
		}
	}

	if a.Anchor == nil {
		return violation(contracts.ViolationMissingAnchor, "anchor section absent")
	}
	if strings.TrimSpace(a.Anchor.ParentHash) == "" || strings.TrimSpace(a.Anchor.PayloadHash) == "" {
		return violation(contracts.ViolationInvalidAnchor, "parent_hash and payload_hash are required")
	}
	if v.anchor != nil && !v.anchor.IsAnchor(a.Anchor.AnchorKey) {
		return violation(contracts.ViolationInvalidAnchor, "anchor_key %q is not the kernel anchor", a.Anchor.AnchorKey)
	}

	if a.Proof == nil {
		return violation(contracts.ViolationMissingProof, "proof section absent")
	}
	tau := a.Proof.ThresholdTau
	if math.IsNaN(tau) || tau <= 0 || tau > v.cfg.MaxTau {
		viol := violation(contracts.ViolationHamiltonianDrift, "threshold_tau %v outside (0, %v]", tau, v.cfg.MaxTau)
		switch {
		case tau > v.cfg.MaxTau:
			viol.Delta = tau - v.cfg.MaxTau
		case tau <= 0:
			viol.Delta = -tau
		}
		return viol
	}

	if a.Verification == nil {
		return violation(contracts.ViolationMissingVerification, "verification section absent")
	}
	phi := a.Verification.PhiScore
	if math.IsNaN(phi) || phi < v.cfg.MinPhi {
		viol := violation(contracts.ViolationLowResonance, "phi_score %v below %v", phi, v.cfg.MinPhi)
		if !math.IsNaN(phi) {
			viol.Delta = v.cfg.MinPhi - phi
		}
		return viol
	}

	if v.policy != nil {
		if err := v.evalPolicy(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) evalPolicy(ctx context.Context, a *contracts.Action) error {
	input := map[string]interface{}{
		"actor_id":       a.Authority.ActorID,
		"revocation_ref": a.Authority.RevocationRef,
		"parent_hash":    a.Anchor.ParentHash,
		"payload_hash":   a.Anchor.PayloadHash,
		"threshold_tau":  a.Proof.ThresholdTau,
		"phi_score":      a.Verification.PhiScore,
	}
	out, _, err := v.policy.ContextEval(ctx, map[string]interface{}{"input": input})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return violation(contracts.ViolationPolicy, "admission expression failed: %v", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return violation(contracts.ViolationPolicy, "admission expression returned %T", out.Value())
	}
	if !allowed {
		return violation(contracts.ViolationPolicy, "admission expression denied action")
	}
	return nil
}
