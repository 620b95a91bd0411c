package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

// ErrMissingSignature is returned when verifying an unsigned record.
var ErrMissingSignature = errors.New("missing signature")

// Signer produces detached signatures for kernel records.
type Signer interface {
	Sign(data []byte) (string, error)
	PublicKey() string
	PublicKeyBytes() []byte
	KeyID() string
	SignGene(g *contracts.Gene, entryHash string) error
	SignRefusal(r *contracts.RefusalRecord) error
}

// Ed25519Signer implementation.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	keyID   string
}

func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  pub,
		keyID:   keyID,
	}, nil
}

func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		keyID:   keyID,
	}
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	sig := ed25519.Sign(s.privKey, data)
	return hex.EncodeToString(sig), nil
}

func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

func (s *Ed25519Signer) PublicKeyBytes() []byte {
	return s.pubKey
}

func (s *Ed25519Signer) KeyID() string {
	return s.keyID
}

// PrivateKey exposes the raw key for collaborators that sign on the
// anchor's behalf (the local attestation service).
func (s *Ed25519Signer) PrivateKey() ed25519.PrivateKey {
	return s.privKey
}

// SignGene signs the gene's ledger entry hash.
func (s *Ed25519Signer) SignGene(g *contracts.Gene, entryHash string) error {
	sig, err := s.Sign([]byte(CanonicalizeGene(g.ID, entryHash)))
	if err != nil {
		return err
	}
	g.Signature = sig
	return nil
}

// SignRefusal signs a refusal record over its chain hash.
func (s *Ed25519Signer) SignRefusal(r *contracts.RefusalRecord) error {
	if r.Hash == "" {
		return fmt.Errorf("refusal %s has no hash to sign", r.NodeID)
	}
	sig, err := s.Sign([]byte(CanonicalizeRefusal(r.NodeID, r.Hash)))
	if err != nil {
		return err
	}
	r.Signature = sig
	return nil
}
