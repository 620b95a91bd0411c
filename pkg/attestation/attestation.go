// Package attestation defines the proof-generation boundary of the kernel.
// Real zero-knowledge proving is out of scope; the local prover issues an
// EdDSA-signed token binding the public inputs to a digest of the private ones.
package attestation

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/canonicalize"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

// SchemeJWTEdDSA identifies proofs issued by JWTProver.
const SchemeJWTEdDSA = "jwt-eddsa"

var (
	ErrProofMismatch = errors.New("attestation: proof does not match public inputs")
	ErrNilProof      = errors.New("attestation: proof is nil")
)

// PublicInputs are disclosed in the proof.
type PublicInputs struct {
	EntryHash  string
	ParentHash string
	Sequence   uint64
}

// PrivateInputs are committed to but never disclosed.
type PrivateInputs struct {
	Content string
}

// Prover generates attestations. Implementations must honour ctx deadlines;
// the kernel treats an expired deadline as a refusal.
type Prover interface {
	GenerateProof(ctx context.Context, pub PublicInputs, priv PrivateInputs) (*contracts.Proof, error)
}

type proofClaims struct {
	EntryHash     string `json:"entry_hash"`
	ParentHash    string `json:"parent_hash"`
	Sequence      uint64 `json:"seq"`
	ContentDigest string `json:"content_digest"`
	jwt.RegisteredClaims
}

// JWTProver is the in-process attestation service.
type JWTProver struct {
	key    ed25519.PrivateKey
	issuer string
	clock  func() time.Time
}

// NewJWTProver creates a prover signing with key.
func NewJWTProver(key ed25519.PrivateKey, issuer string) *JWTProver {
	return &JWTProver{key: key, issuer: issuer, clock: time.Now}
}

// WithClock overrides the issuance clock (tests).
func (p *JWTProver) WithClock(clock func() time.Time) *JWTProver {
	p.clock = clock
	return p
}

func (p *JWTProver) GenerateProof(ctx context.Context, pub PublicInputs, priv PrivateInputs) (*contracts.Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("attestation: %w", err)
	}

	now := p.clock().UTC().Truncate(jwt.TimePrecision)
	claims := proofClaims{
		EntryHash:     pub.EntryHash,
		ParentHash:    pub.ParentHash,
		Sequence:      pub.Sequence,
		ContentDigest: canonicalize.HashString(priv.Content),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.New().String(),
			Issuer:   p.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(p.key)
	if err != nil {
		return nil, fmt.Errorf("attestation: sign proof: %w", err)
	}

	return &contracts.Proof{
		Scheme:   SchemeJWTEdDSA,
		Issuer:   p.issuer,
		Token:    signed,
		IssuedAt: now,
	}, nil
}

// Verify checks that proof was issued by pub's key over the given inputs.
func Verify(pubKey ed25519.PublicKey, proof *contracts.Proof, pub PublicInputs, priv PrivateInputs) error {
	if proof == nil {
		return ErrNilProof
	}
	if proof.Scheme != SchemeJWTEdDSA {
		return fmt.Errorf("attestation: unsupported scheme %q", proof.Scheme)
	}

	claims := &proofClaims{}
	_, err := jwt.ParseWithClaims(proof.Token, claims, func(t *jwt.Token) (interface{}, error) {
		return pubKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	if err != nil {
		return fmt.Errorf("attestation: invalid proof token: %w", err)
	}

	if claims.Issuer != proof.Issuer || claims.IssuedAt == nil || !claims.IssuedAt.Time.Equal(proof.IssuedAt) {
		return ErrProofMismatch
	}
	if claims.EntryHash != pub.EntryHash ||
		claims.ParentHash != pub.ParentHash ||
		claims.Sequence != pub.Sequence ||
		claims.ContentDigest != canonicalize.HashString(priv.Content) {
		return ErrProofMismatch
	}
	return nil
}

// KeyVerifier checks the proofs carried by ledger genes against one key.
type KeyVerifier struct {
	Key ed25519.PublicKey
}

func NewKeyVerifier(key ed25519.PublicKey) *KeyVerifier {
	return &KeyVerifier{Key: key}
}

// VerifyProof binds g's proof to its entry hash, position and content.
func (v *KeyVerifier) VerifyProof(g *contracts.Gene, entryHash string) error {
	return Verify(v.Key, g.Proof,
		PublicInputs{EntryHash: entryHash, ParentHash: g.ParentHash, Sequence: g.Sequence},
		PrivateInputs{Content: g.Content},
	)
}
