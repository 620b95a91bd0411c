package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/crypto"
)

func refusal(code contracts.ViolationCode) contracts.RefusalRecord {
	return contracts.RefusalRecord{
		NodeID:          uuid.NewString(),
		ReasonCode:      code,
		ViolationDetail: "detail",
		Timestamp:       baseTime,
		TipHash:         "sha256:tip",
		StateHashBefore: "sha256:state",
		StateHashAfter:  "sha256:state",
	}
}

func TestRefusalLog_ChainsRecords(t *testing.T) {
	ctx := context.Background()
	rl := NewRefusalLog()
	assert.Equal(t, GenesisHash, rl.Head())

	first, err := rl.Append(ctx, refusal(contracts.ViolationLowResonance))
	require.NoError(t, err)
	assert.Equal(t, GenesisHash, first.PrevHash)

	second, err := rl.Append(ctx, refusal(contracts.ViolationRevoked))
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.PrevHash)
	assert.Equal(t, second.Hash, rl.Head())

	require.NoError(t, rl.VerifyChain())

	rl.records[0].ViolationDetail = "edited"
	assert.Error(t, rl.VerifyChain())
}

func TestRefusalLog_RejectsStateChange(t *testing.T) {
	rl := NewRefusalLog()
	r := refusal(contracts.ViolationLowResonance)
	r.StateHashAfter = "sha256:moved"

	_, err := rl.Append(context.Background(), r)
	assert.Error(t, err)
	assert.Zero(t, rl.Len())
}

func TestRefusalLog_SignsAndReloads(t *testing.T) {
	signer, err := crypto.NewEd25519Signer("k")
	require.NoError(t, err)
	verifier, err := crypto.NewEd25519Verifier(signer.PublicKeyBytes())
	require.NoError(t, err)

	s := &memStore{}
	rl := NewRefusalLog(WithStore(s), WithSigner(signer), WithVerifier(verifier))
	for i := 0; i < 3; i++ {
		rec, err := rl.Append(context.Background(), refusal(contracts.ViolationMissingProof))
		require.NoError(t, err)
		assert.NotEmpty(t, rec.Signature)
	}

	reloaded, err := LoadRefusalLog(context.Background(), s, WithVerifier(verifier))
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Len())
	assert.Equal(t, rl.Head(), reloaded.Head())

	s.refusals[2].Signature = s.refusals[1].Signature
	_, err = LoadRefusalLog(context.Background(), s, WithVerifier(verifier))
	assert.Error(t, err)
}

func TestRefusalLog_ReloadAdoptsDurableRecords(t *testing.T) {
	ctx := context.Background()
	s := &memStore{}
	rl := NewRefusalLog(WithStore(s))
	_, err := rl.Append(ctx, refusal(contracts.ViolationRevoked))
	require.NoError(t, err)

	// A second writer on the same store.
	other, err := LoadRefusalLog(ctx, s)
	require.NoError(t, err)
	_, err = other.Append(ctx, refusal(contracts.ViolationLowResonance))
	require.NoError(t, err)

	adopted, err := rl.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, adopted)
	assert.Equal(t, other.Head(), rl.Head())

	s.refusals = s.refusals[:1]
	_, err = rl.Reload(ctx)
	code, _ := CodeOf(err)
	assert.Equal(t, contracts.ViolationLedgerIntegrity, code)
}
