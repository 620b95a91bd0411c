package archive

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/attestation"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/crypto"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/ledger"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/merkle"
)

var exportTime = time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)

func signedChains(t *testing.T, genes, refusals int) (*ledger.Ledger, *ledger.RefusalLog, crypto.Verifier, contracts.Anchor) {
	t.Helper()
	ctx := context.Background()

	signer, err := crypto.NewEd25519Signer("archive-test")
	require.NoError(t, err)
	verifier, err := crypto.NewEd25519Verifier(signer.PublicKeyBytes())
	require.NoError(t, err)
	anchor := contracts.Anchor{RootHash: "sha256:root", PublicKey: signer.PublicKey(), KeyID: "archive-test", Diameter: 100}

	prover := attestation.NewJWTProver(signer.PrivateKey(), "archive-test")
	l := ledger.New(ledger.WithSigner(signer), ledger.WithVerifier(verifier))
	parent := anchor.RootHash
	for i := 0; i < genes; i++ {
		g := contracts.Gene{
			ID:         fmt.Sprintf("gene-%d", i),
			Sequence:   uint64(i),
			Content:    fmt.Sprintf("admitted content %d", i),
			ParentHash: parent,
			Manifest:   contracts.MutationManifest{RequestHash: "sha256:req", ActionHash: "sha256:act", Mutations: []contracts.Mutation{}},
			Score:      0.31,
			Timestamp:  exportTime.Add(-time.Duration(genes-i) * time.Minute),
			Lineage:    contracts.Lineage{Kind: contracts.LineageFirstPass},
		}
		h, err := ledger.EntryHash(&g)
		require.NoError(t, err)
		require.NoError(t, signer.SignGene(&g, h))
		g.Proof, err = prover.GenerateProof(ctx,
			attestation.PublicInputs{EntryHash: h, ParentHash: g.ParentHash, Sequence: g.Sequence},
			attestation.PrivateInputs{Content: g.Content},
		)
		require.NoError(t, err)
		e, err := l.Append(ctx, g)
		require.NoError(t, err)
		parent = e.Hash
	}

	rl := ledger.NewRefusalLog(ledger.WithSigner(signer), ledger.WithVerifier(verifier))
	for i := 0; i < refusals; i++ {
		_, err := rl.Append(ctx, contracts.RefusalRecord{
			NodeID:          fmt.Sprintf("node-%d", i),
			ReasonCode:      contracts.ViolationLowResonance,
			ViolationDelta:  0.5,
			TipHash:         parent,
			StateHashBefore: "sha256:state",
			StateHashAfter:  "sha256:state",
		})
		require.NoError(t, err)
	}
	return l, rl, verifier, anchor
}

func TestExporter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l, rl, verifier, anchor := signedChains(t, 3, 2)

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exp := NewExporter(store, anchor, "1.0.0", verifier, nil).WithClock(func() time.Time { return exportTime })

	hash, err := exp.Export(ctx, l, rl)
	require.NoError(t, err)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, hash)

	again, err := exp.Export(ctx, l, rl)
	require.NoError(t, err)
	assert.Equal(t, hash, again, "identical chains export to the same snapshot")

	snap, err := exp.Fetch(ctx, hash)
	require.NoError(t, err)
	tip, _ := l.Head()
	assert.Equal(t, tip, snap.LedgerHead)
	assert.Equal(t, rl.Head(), snap.RefusalHead)
	assert.Len(t, snap.Entries, 3)
	assert.Len(t, snap.Refusals, 2)
	assert.Equal(t, "1.0.0", snap.PolicyVersion)
	assert.True(t, exportTime.Equal(snap.ExportedAt))

	proof, err := snap.ProveEntry(1)
	require.NoError(t, err)
	assert.Equal(t, merkle.LeafHash([]byte(snap.Entries[1].Hash)), proof.LeafHash)
	assert.True(t, merkle.VerifyInclusionProof(proof, snap.MerkleRoot))
}

func TestExporter_EmptyLedger(t *testing.T) {
	ctx := context.Background()
	l, _, verifier, anchor := signedChains(t, 0, 0)

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exp := NewExporter(store, anchor, "1.0.0", verifier, nil)

	hash, err := exp.Export(ctx, l, nil)
	require.NoError(t, err)
	snap, err := exp.Fetch(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, anchor.RootHash, snap.LedgerHead)
	assert.Equal(t, ledger.GenesisHash, snap.RefusalHead)
}

func TestExporter_FetchRejectsTamperedSnapshot(t *testing.T) {
	ctx := context.Background()
	l, rl, verifier, anchor := signedChains(t, 2, 1)

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exp := NewExporter(store, anchor, "1.0.0", verifier, nil)

	hash, err := exp.Export(ctx, l, rl)
	require.NoError(t, err)
	data, err := store.Get(ctx, hash)
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	snap.Entries[1].Gene.Content = "rewritten history"
	forged, err := json.Marshal(snap)
	require.NoError(t, err)
	forgedHash, err := store.Put(ctx, forged)
	require.NoError(t, err)

	_, err = exp.Fetch(ctx, forgedHash)
	require.Error(t, err)
	code, ok := ledger.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, contracts.ViolationLedgerIntegrity, code)
}

func TestExporter_FetchRejectsForgedAttestation(t *testing.T) {
	ctx := context.Background()
	l, rl, verifier, anchor := signedChains(t, 2, 0)
	key, err := hex.DecodeString(anchor.PublicKey)
	require.NoError(t, err)

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exp := NewExporter(store, anchor, "1.0.0", verifier, nil).
		WithProofVerifier(attestation.NewKeyVerifier(ed25519.PublicKey(key)))

	hash, err := exp.Export(ctx, l, rl)
	require.NoError(t, err)
	data, err := store.Get(ctx, hash)
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	snap.Entries[1].Gene.Proof.Token = snap.Entries[0].Gene.Proof.Token
	forged, err := json.Marshal(snap)
	require.NoError(t, err)
	forgedHash, err := store.Put(ctx, forged)
	require.NoError(t, err)

	_, err = exp.Fetch(ctx, forgedHash)
	require.Error(t, err)
	code, ok := ledger.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, contracts.ViolationLedgerIntegrity, code)

	// Without a proof verifier only the signature chain is checked.
	_, err = NewExporter(store, anchor, "1.0.0", verifier, nil).Fetch(ctx, forgedHash)
	assert.NoError(t, err)
}

func TestExporter_WrongVerifier(t *testing.T) {
	ctx := context.Background()
	l, rl, _, anchor := signedChains(t, 1, 0)
	other, err := crypto.NewEd25519Signer("other")
	require.NoError(t, err)
	otherVerifier, err := crypto.NewEd25519Verifier(other.PublicKeyBytes())
	require.NoError(t, err)

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = NewExporter(store, anchor, "1.0.0", otherVerifier, nil).Export(ctx, l, rl)
	assert.Error(t, err)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)

	hash, err := store.Put(ctx, []byte(`{"a":1}`))
	require.NoError(t, err)
	ok, err := store.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	missing := "sha256:" + fmt.Sprintf("%064d", 0)
	ok, err = store.Exists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, "md5:abc")
	assert.ErrorContains(t, err, "invalid hash format")
	_, err = store.Get(ctx, "sha256:../../etc/passwd")
	assert.ErrorContains(t, err, "invalid hash hex")
}

func TestNewStoreFromEnv(t *testing.T) {
	ctx := context.Background()

	t.Run("default fs", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("ARCHIVE_STORAGE_TYPE", "")
		t.Setenv("DATA_DIR", dir)

		s, err := NewStoreFromEnv(ctx)
		require.NoError(t, err)
		fs, ok := s.(*FileStore)
		require.True(t, ok)
		assert.Equal(t, filepath.Join(dir, "snapshots"), fs.baseDir)
	})

	t.Run("s3 needs bucket", func(t *testing.T) {
		t.Setenv("ARCHIVE_STORAGE_TYPE", "s3")
		t.Setenv("ARCHIVE_S3_BUCKET", "")
		_, err := NewStoreFromEnv(ctx)
		assert.ErrorContains(t, err, "ARCHIVE_S3_BUCKET is required")
	})

	t.Run("gcs needs bucket or build tag", func(t *testing.T) {
		t.Setenv("ARCHIVE_STORAGE_TYPE", "gcs")
		t.Setenv("ARCHIVE_GCS_BUCKET", "")
		_, err := NewStoreFromEnv(ctx)
		assert.Error(t, err)
	})

	t.Run("unsupported", func(t *testing.T) {
		t.Setenv("ARCHIVE_STORAGE_TYPE", "azure")
		_, err := NewStoreFromEnv(ctx)
		assert.ErrorContains(t, err, "unsupported archive storage type")
	})
}
