package anchor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/attestation"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

func TestNewFromSeed_Deterministic(t *testing.T) {
	seed := []byte("0123456789abcdef-operator-seed")

	a, err := NewFromSeed(seed, "root", 100)
	require.NoError(t, err)
	b, err := NewFromSeed(seed, "root", 100)
	require.NoError(t, err)

	assert.Equal(t, a.Anchor(), b.Anchor())
	assert.Equal(t, a.Anchor().RootHash, RootHash(a.Anchor().PublicKey, "root"))
	assert.True(t, b.IsAnchor(a.Anchor().PublicKey))

	c, err := NewFromSeed([]byte("another-seed-with-enough-bytes"), "root", 100)
	require.NoError(t, err)
	assert.NotEqual(t, a.Anchor().RootHash, c.Anchor().RootHash)
}

func TestNewFromSeed_Rejects(t *testing.T) {
	_, err := NewFromSeed([]byte("short"), "root", 100)
	assert.ErrorIs(t, err, ErrShortSeed)

	_, err = NewFromSeed([]byte("0123456789abcdef"), "root", 0)
	assert.ErrorIs(t, err, ErrInvalidDiameter)
}

func TestNewRandom_SignerMatchesAnchor(t *testing.T) {
	s, err := NewRandom("ephemeral", 42)
	require.NoError(t, err)

	assert.Equal(t, s.Signer().PublicKey(), s.Anchor().PublicKey)
	assert.Equal(t, "ephemeral", s.Anchor().KeyID)
	assert.InDelta(t, 42.0, s.Anchor().Diameter, 0)
	assert.NotNil(t, s.Verifier())
}

func TestProverAndVerifierShareTheAnchorKey(t *testing.T) {
	a, err := NewRandom("root", 100)
	require.NoError(t, err)
	other, err := NewRandom("root", 100)
	require.NoError(t, err)

	g := &contracts.Gene{ID: "g", Sequence: 4, ParentHash: "sha256:p", Content: "c"}
	g.Proof, err = a.Prover().GenerateProof(context.Background(),
		attestation.PublicInputs{EntryHash: "sha256:e", ParentHash: g.ParentHash, Sequence: g.Sequence},
		attestation.PrivateInputs{Content: g.Content},
	)
	require.NoError(t, err)

	require.NoError(t, a.ProofVerifier().VerifyProof(g, "sha256:e"))
	assert.Error(t, other.ProofVerifier().VerifyProof(g, "sha256:e"))
	assert.False(t, other.IsAnchor(a.Anchor().PublicKey))
}
