package attestation

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

func newKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestJWTProver_RoundTrip(t *testing.T) {
	pubKey, privKey := newKey(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	prover := NewJWTProver(privKey, "anchor-1").WithClock(func() time.Time { return fixed })

	pub := PublicInputs{EntryHash: "sha256:e", ParentHash: "sha256:p", Sequence: 7}
	priv := PrivateInputs{Content: "hello"}

	proof, err := prover.GenerateProof(context.Background(), pub, priv)
	require.NoError(t, err)
	assert.Equal(t, SchemeJWTEdDSA, proof.Scheme)
	assert.Equal(t, "anchor-1", proof.Issuer)
	assert.Equal(t, fixed, proof.IssuedAt)

	require.NoError(t, Verify(pubKey, proof, pub, priv))

	tampered := pub
	tampered.Sequence = 8
	assert.ErrorIs(t, Verify(pubKey, proof, tampered, priv), ErrProofMismatch)
	assert.ErrorIs(t, Verify(pubKey, proof, pub, PrivateInputs{Content: "other"}), ErrProofMismatch)
}

func TestVerify_RejectsEditedEnvelope(t *testing.T) {
	pubKey, privKey := newKey(t)
	prover := NewJWTProver(privKey, "anchor-1")
	pub := PublicInputs{EntryHash: "sha256:e", ParentHash: "sha256:p", Sequence: 1}

	proof, err := prover.GenerateProof(context.Background(), pub, PrivateInputs{})
	require.NoError(t, err)
	assert.Zero(t, proof.IssuedAt.Nanosecond())
	require.NoError(t, Verify(pubKey, proof, pub, PrivateInputs{}))

	reissued := *proof
	reissued.Issuer = "someone-else"
	assert.ErrorIs(t, Verify(pubKey, &reissued, pub, PrivateInputs{}), ErrProofMismatch)

	backdated := *proof
	backdated.IssuedAt = proof.IssuedAt.Add(-time.Hour)
	assert.ErrorIs(t, Verify(pubKey, &backdated, pub, PrivateInputs{}), ErrProofMismatch)

	forged := *proof
	forged.Token = "forged"
	assert.Error(t, Verify(pubKey, &forged, pub, PrivateInputs{}))
}

func TestKeyVerifier_VerifyProof(t *testing.T) {
	pubKey, privKey := newKey(t)
	g := &contracts.Gene{ParentHash: "sha256:p", Sequence: 4, Content: "admitted"}

	proof, err := NewJWTProver(privKey, "anchor-1").GenerateProof(context.Background(),
		PublicInputs{EntryHash: "sha256:e", ParentHash: g.ParentHash, Sequence: g.Sequence},
		PrivateInputs{Content: g.Content},
	)
	require.NoError(t, err)
	g.Proof = proof

	kv := NewKeyVerifier(pubKey)
	require.NoError(t, kv.VerifyProof(g, "sha256:e"))
	assert.ErrorIs(t, kv.VerifyProof(g, "sha256:other"), ErrProofMismatch)

	g.Proof = nil
	assert.ErrorIs(t, kv.VerifyProof(g, "sha256:e"), ErrNilProof)
}

func TestVerify_WrongKey(t *testing.T) {
	_, privKey := newKey(t)
	otherPub, _ := newKey(t)

	proof, err := NewJWTProver(privKey, "a").GenerateProof(context.Background(), PublicInputs{}, PrivateInputs{})
	require.NoError(t, err)

	assert.Error(t, Verify(otherPub, proof, PublicInputs{}, PrivateInputs{}))
	assert.ErrorIs(t, Verify(otherPub, nil, PublicInputs{}, PrivateInputs{}), ErrNilProof)
}

func TestJWTProver_HonoursCancelledContext(t *testing.T) {
	_, privKey := newKey(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewJWTProver(privKey, "a").GenerateProof(ctx, PublicInputs{}, PrivateInputs{})
	assert.ErrorIs(t, err, context.Canceled)
}
