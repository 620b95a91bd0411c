// Package anchor holds the kernel's trusted root identity: an ed25519 key
// pair and the lineage root hash every ledger chain starts from.
package anchor

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/attestation"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/canonicalize"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/crypto"
)

const (
	hkdfSalt = "governance-kernel/anchor"
	hkdfInfo = "ed25519-root-key-v1"

	// MinSeedLength guards against trivially guessable derivation seeds.
	MinSeedLength = 16
)

var (
	ErrShortSeed       = errors.New("anchor: seed must be at least 16 bytes")
	ErrInvalidDiameter = errors.New("anchor: diameter must be positive")
)

// Store owns the anchor for the lifetime of the process. It is immutable
// after construction and safe for concurrent use.
type Store struct {
	anchor contracts.Anchor
	signer *crypto.Ed25519Signer
}

// NewFromSeed derives the anchor key deterministically from seed via HKDF,
// so a restarted kernel recovers the same identity and root hash.
func NewFromSeed(seed []byte, keyID string, diameter float64) (*Store, error) {
	if len(seed) < MinSeedLength {
		return nil, ErrShortSeed
	}
	kdf := hkdf.New(sha256.New, seed, []byte(hkdfSalt), []byte(hkdfInfo))
	keySeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(kdf, keySeed); err != nil {
		return nil, fmt.Errorf("anchor: derive key: %w", err)
	}
	return newStore(crypto.NewEd25519SignerFromKey(ed25519.NewKeyFromSeed(keySeed), keyID), diameter)
}

// NewRandom creates an ephemeral anchor with a freshly generated key.
func NewRandom(keyID string, diameter float64) (*Store, error) {
	signer, err := crypto.NewEd25519Signer(keyID)
	if err != nil {
		return nil, fmt.Errorf("anchor: %w", err)
	}
	return newStore(signer, diameter)
}

func newStore(signer *crypto.Ed25519Signer, diameter float64) (*Store, error) {
	if !(diameter > 0) {
		return nil, ErrInvalidDiameter
	}
	a := contracts.Anchor{
		PublicKey: signer.PublicKey(),
		KeyID:     signer.KeyID(),
		Diameter:  diameter,
	}
	a.RootHash = RootHash(a.PublicKey, a.KeyID)
	return &Store{anchor: a, signer: signer}, nil
}

// RootHash is the lineage root for a given identity.
func RootHash(publicKeyHex, keyID string) string {
	return canonicalize.HashString("lineage-root" + crypto.SigSeparator + keyID + crypto.SigSeparator + publicKeyHex)
}

// Anchor returns a copy of the anchor.
func (s *Store) Anchor() contracts.Anchor {
	return s.anchor
}

// Signer returns the signer bound to the anchor key.
func (s *Store) Signer() *crypto.Ed25519Signer {
	return s.signer
}

// Verifier returns a verifier for signatures made by the anchor key.
func (s *Store) Verifier() *crypto.Ed25519Verifier {
	v, _ := crypto.NewEd25519Verifier(s.signer.PublicKeyBytes())
	return v
}

// ProofVerifier checks attestations issued under the anchor key.
func (s *Store) ProofVerifier() *attestation.KeyVerifier {
	return attestation.NewKeyVerifier(ed25519.PublicKey(s.signer.PublicKeyBytes()))
}

// Prover issues attestations under the anchor key.
func (s *Store) Prover() *attestation.JWTProver {
	return attestation.NewJWTProver(s.signer.PrivateKey(), s.anchor.KeyID)
}

// IsAnchor reports whether publicKeyHex is the anchor identity.
func (s *Store) IsAnchor(publicKeyHex string) bool {
	return publicKeyHex == s.anchor.PublicKey
}
