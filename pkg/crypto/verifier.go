package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

// Verifier checks signatures produced by a Signer.
type Verifier interface {
	VerifyGene(g *contracts.Gene, entryHash string) (bool, error)
	VerifyRefusal(r *contracts.RefusalRecord) (bool, error)
}

// Ed25519Verifier implements Verifier using Ed25519.
type Ed25519Verifier struct {
	PublicKey ed25519.PublicKey
}

// NewEd25519Verifier creates a new verifier.
func NewEd25519Verifier(pubKeyBytes []byte) (*Ed25519Verifier, error) {
	if len(pubKeyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: %d", len(pubKeyBytes))
	}
	return &Ed25519Verifier{PublicKey: ed25519.PublicKey(pubKeyBytes)}, nil
}

func (v *Ed25519Verifier) verify(payload, sigHex string) (bool, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	return ed25519.Verify(v.PublicKey, []byte(payload), sig), nil
}

func (v *Ed25519Verifier) VerifyGene(g *contracts.Gene, entryHash string) (bool, error) {
	if g.Signature == "" {
		return false, ErrMissingSignature
	}
	return v.verify(CanonicalizeGene(g.ID, entryHash), g.Signature)
}

func (v *Ed25519Verifier) VerifyRefusal(r *contracts.RefusalRecord) (bool, error) {
	if r.Signature == "" {
		return false, ErrMissingSignature
	}
	return v.verify(CanonicalizeRefusal(r.NodeID, r.Hash), r.Signature)
}
