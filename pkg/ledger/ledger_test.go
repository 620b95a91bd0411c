package ledger

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/attestation"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/crypto"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func gene(seq uint64, parent string) contracts.Gene {
	return contracts.Gene{
		ID:         fmt.Sprintf("gene-%d", seq),
		Sequence:   seq,
		Content:    fmt.Sprintf("content %d", seq),
		ParentHash: parent,
		Manifest: contracts.MutationManifest{
			RequestHash: "sha256:req",
			ActionHash:  "sha256:act",
			Mutations:   []contracts.Mutation{},
		},
		Score:     0.125,
		Timestamp: baseTime.Add(time.Duration(seq) * time.Second),
		Lineage:   contracts.Lineage{Kind: contracts.LineageFirstPass},
		Proof:     &contracts.Proof{Scheme: "test", Token: "t"},
	}
}

// memStore is a Store that can be told to fail.
type memStore struct {
	entries  []contracts.LedgerEntry
	refusals []contracts.RefusalRecord
	fail     error
}

func (m *memStore) AppendEntry(_ context.Context, e contracts.LedgerEntry) error {
	if m.fail != nil {
		return m.fail
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) AppendRefusal(_ context.Context, r contracts.RefusalRecord) error {
	if m.fail != nil {
		return m.fail
	}
	m.refusals = append(m.refusals, r)
	return nil
}

func (m *memStore) LoadEntries(context.Context) ([]contracts.LedgerEntry, error) {
	return append([]contracts.LedgerEntry(nil), m.entries...), nil
}

func (m *memStore) LoadRefusals(context.Context) ([]contracts.RefusalRecord, error) {
	return append([]contracts.RefusalRecord(nil), m.refusals...), nil
}

func appendChain(t *testing.T, l *Ledger, n int) {
	t.Helper()
	ctx := context.Background()
	parent := "sha256:anything"
	for i := 0; i < n; i++ {
		e, err := l.Append(ctx, gene(uint64(i), parent))
		require.NoError(t, err)
		parent = e.Hash
	}
}

func TestAppend_GenesisAcceptsAnyParent(t *testing.T) {
	l := New()
	g := gene(0, "sha256:not-a-real-parent")

	e, err := l.Append(context.Background(), g)
	require.NoError(t, err)

	tip, ok := l.Tip()
	require.True(t, ok)
	assert.Equal(t, e.Hash, tip.Hash)
	assert.Equal(t, uint64(0), tip.Gene.Sequence)

	other := New()
	_, err = other.Append(context.Background(), gene(41, "whatever"))
	assert.NoError(t, err)
}

func TestAppend_ChainsAndVerifies(t *testing.T) {
	l := New()
	appendChain(t, l, 5)
	assert.Equal(t, 5, l.Len())
	require.NoError(t, l.VerifyChain())

	entries := l.Entries()
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].Hash, entries[i].Gene.ParentHash)
	}
}

func TestAppend_CheckOrder(t *testing.T) {
	ctx := context.Background()
	l := New()
	appendChain(t, l, 2)
	tip, _ := l.Tip()

	tests := []struct {
		name string
		g    func() contracts.Gene
		want contracts.ViolationCode
	}{
		{
			name: "wrong sequence with correct parent",
			g:    func() contracts.Gene { return gene(5, tip.Hash) },
			want: contracts.ViolationSequence,
		},
		{
			name: "wrong sequence with wrong parent",
			g:    func() contracts.Gene { return gene(7, "sha256:bogus") },
			want: contracts.ViolationSequence,
		},
		{
			name: "right sequence wrong parent",
			g:    func() contracts.Gene { return gene(2, "sha256:bogus") },
			want: contracts.ViolationContinuity,
		},
		{
			name: "missing proof wins over everything",
			g: func() contracts.Gene {
				g := gene(9, "sha256:bogus")
				g.Proof = nil
				return g
			},
			want: contracts.ViolationMissingProof,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Append(ctx, tt.g())
			code, ok := CodeOf(err)
			require.True(t, ok, "expected IntegrityError, got %v", err)
			assert.Equal(t, tt.want, code)

			after, _ := l.Tip()
			assert.Equal(t, tip.Hash, after.Hash)
			assert.Equal(t, 2, l.Len())
		})
	}
}

// attested holds the keys for a chain whose genes are signed and carry
// verifiable proofs.
type attested struct {
	signer   *crypto.Ed25519Signer
	verifier crypto.Verifier
	prover   *attestation.JWTProver
	proofs   *attestation.KeyVerifier
}

func newAttested(t *testing.T) *attested {
	t.Helper()
	signer, err := crypto.NewEd25519Signer("ledger-test")
	require.NoError(t, err)
	verifier, err := crypto.NewEd25519Verifier(signer.PublicKeyBytes())
	require.NoError(t, err)
	return &attested{
		signer:   signer,
		verifier: verifier,
		prover:   attestation.NewJWTProver(signer.PrivateKey(), "ledger-test"),
		proofs:   attestation.NewKeyVerifier(ed25519.PublicKey(signer.PublicKeyBytes())),
	}
}

func (a *attested) options() []Option {
	return []Option{WithVerifier(a.verifier), WithProofVerifier(a.proofs)}
}

// seal signs g and attaches a proof bound to its entry hash.
func (a *attested) seal(t *testing.T, g *contracts.Gene) {
	t.Helper()
	h, err := EntryHash(g)
	require.NoError(t, err)
	require.NoError(t, a.signer.SignGene(g, h))
	g.Proof, err = a.prover.GenerateProof(context.Background(),
		attestation.PublicInputs{EntryHash: h, ParentHash: g.ParentHash, Sequence: g.Sequence},
		attestation.PrivateInputs{Content: g.Content},
	)
	require.NoError(t, err)
}

func (a *attested) chain(t *testing.T, l *Ledger, n int) {
	t.Helper()
	parent := "sha256:root"
	for i := 0; i < n; i++ {
		g := gene(uint64(i), parent)
		a.seal(t, &g)
		e, err := l.Append(context.Background(), g)
		require.NoError(t, err)
		parent = e.Hash
	}
}

func TestAppend_RejectsForgedProof(t *testing.T) {
	a := newAttested(t)
	l := New(a.options()...)
	a.chain(t, l, 1)
	tip, _ := l.Tip()

	g := gene(1, tip.Hash)
	a.seal(t, &g)
	g.Proof = tip.Gene.Proof
	_, err := l.Append(context.Background(), g)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, contracts.ViolationLedgerIntegrity, code)
	assert.Equal(t, 1, l.Len())
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	mutations := map[string]func(e *contracts.LedgerEntry){
		"lineage kind": func(e *contracts.LedgerEntry) { e.Gene.Lineage.Kind = contracts.LineageReAction },
		"lineage failed hash": func(e *contracts.LedgerEntry) {
			e.Gene.Lineage.FailedHash = "sha256:invented"
		},
		"lineage failed score": func(e *contracts.LedgerEntry) { e.Gene.Lineage.FailedScore = 42 },
		"signature": func(e *contracts.LedgerEntry) {
			e.Gene.Signature = strings.Repeat("0", len(e.Gene.Signature))
		},
		"proof token":  func(e *contracts.LedgerEntry) { e.Gene.Proof.Token += "x" },
		"proof issuer": func(e *contracts.LedgerEntry) { e.Gene.Proof.Issuer = "someone-else" },
		"proof swapped": func(e *contracts.LedgerEntry) {
			p := *e.Gene.Proof
			p.Token = "eyJhbGciOiJFZERTQSJ9.e30.AAAA"
			e.Gene.Proof = &p
		},
		"content":    func(e *contracts.LedgerEntry) { e.Gene.Content += "!" },
		"id":         func(e *contracts.LedgerEntry) { e.Gene.ID = "forged" },
		"score":      func(e *contracts.LedgerEntry) { e.Gene.Score += 1e-6 },
		"timestamp":  func(e *contracts.LedgerEntry) { e.Gene.Timestamp = e.Gene.Timestamp.Add(time.Nanosecond) },
		"manifest":   func(e *contracts.LedgerEntry) { e.Gene.Manifest.RequestHash = "sha256:other" },
		"hash":       func(e *contracts.LedgerEntry) { e.Hash = "sha256:beef" },
		"parent":     func(e *contracts.LedgerEntry) { e.Gene.ParentHash = "sha256:beef" },
		"sequence":   func(e *contracts.LedgerEntry) { e.Gene.Sequence += 10 },
		"proof gone": func(e *contracts.LedgerEntry) { e.Gene.Proof = nil },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			a := newAttested(t)
			l := New(a.options()...)
			a.chain(t, l, 4)
			require.NoError(t, l.VerifyChain())
			mutate(&l.entries[2])
			assert.Error(t, l.VerifyChain())
		})
	}
}

func TestVerifyEntries_ProofFromAnotherEntry(t *testing.T) {
	a := newAttested(t)
	l := New(a.options()...)
	a.chain(t, l, 3)

	entries := l.Entries()
	entries[2].Gene.Proof = entries[1].Gene.Proof
	assert.NoError(t, VerifyEntries(entries, a.verifier, nil), "presence is all that is checked without a proof verifier")
	err := VerifyEntries(entries, a.verifier, a.proofs)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, contracts.ViolationLedgerIntegrity, code)
}

// ackLostStore persists entries and then reports failure while lost is set.
type ackLostStore struct {
	memStore
	lost bool
}

func (s *ackLostStore) AppendEntry(ctx context.Context, e contracts.LedgerEntry) error {
	if err := s.memStore.AppendEntry(ctx, e); err != nil {
		return err
	}
	if s.lost {
		return errors.New("acknowledgement lost")
	}
	return nil
}

func TestReload_AdoptsDurableTail(t *testing.T) {
	ctx := context.Background()
	s := &ackLostStore{}
	l := New(WithStore(s))
	appendChain(t, l, 2)
	tip, _ := l.Tip()

	s.lost = true
	_, err := l.Append(ctx, gene(2, tip.Hash))
	require.Error(t, err)
	assert.Equal(t, 2, l.Len())
	assert.Len(t, s.entries, 3)

	s.lost = false
	adopted, err := l.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, adopted)
	require.Equal(t, 3, l.Len())

	tip, _ = l.Tip()
	_, err = l.Append(ctx, gene(3, tip.Hash))
	require.NoError(t, err)
	_, err = Load(ctx, s)
	require.NoError(t, err)
}

func TestReload_RejectsDivergence(t *testing.T) {
	ctx := context.Background()

	t.Run("durable shorter", func(t *testing.T) {
		s := &memStore{}
		l := New(WithStore(s))
		appendChain(t, l, 2)
		s.entries = s.entries[:1]
		_, err := l.Reload(ctx)
		code, _ := CodeOf(err)
		assert.Equal(t, contracts.ViolationLedgerIntegrity, code)
		assert.Equal(t, 2, l.Len())
	})

	t.Run("different history", func(t *testing.T) {
		s := &memStore{}
		l := New(WithStore(s))
		appendChain(t, l, 2)

		other := &memStore{}
		alt := New(WithStore(other))
		parent := "sha256:elsewhere"
		for i := 0; i < 3; i++ {
			e, err := alt.Append(ctx, gene(uint64(i), parent))
			require.NoError(t, err)
			parent = e.Hash
		}
		s.entries = other.entries
		_, err := l.Reload(ctx)
		code, _ := CodeOf(err)
		assert.Equal(t, contracts.ViolationContinuity, code)
		assert.Equal(t, 2, l.Len())
	})

	t.Run("no store verifies memory", func(t *testing.T) {
		l := New()
		appendChain(t, l, 2)
		adopted, err := l.Reload(ctx)
		require.NoError(t, err)
		assert.Zero(t, adopted)
		l.entries[1].Gene.Content = "edited"
		_, err = l.Reload(ctx)
		assert.Error(t, err)
	})
}

func TestAppend_SignatureVerification(t *testing.T) {
	signer, err := crypto.NewEd25519Signer("k")
	require.NoError(t, err)
	verifier, err := crypto.NewEd25519Verifier(signer.PublicKeyBytes())
	require.NoError(t, err)

	l := New(WithVerifier(verifier))
	g := gene(0, "p")

	_, err = l.Append(context.Background(), g)
	code, _ := CodeOf(err)
	assert.Equal(t, contracts.ViolationLedgerIntegrity, code, "unsigned gene must be rejected")

	h, err := EntryHash(&g)
	require.NoError(t, err)
	require.NoError(t, signer.SignGene(&g, h))
	_, err = l.Append(context.Background(), g)
	require.NoError(t, err)
	require.NoError(t, l.VerifyChain())

	l.entries[0].Gene.Signature = "00"
	assert.Error(t, l.VerifyChain())
}

func TestAppend_StoreFailureLeavesTipUntouched(t *testing.T) {
	s := &memStore{}
	l := New(WithStore(s))
	appendChain(t, l, 1)
	tip, _ := l.Tip()

	boom := errors.New("disk full")
	s.fail = boom
	_, err := l.Append(context.Background(), gene(1, tip.Hash))
	assert.ErrorIs(t, err, boom)

	after, _ := l.Tip()
	assert.Equal(t, tip.Hash, after.Hash)
	assert.Equal(t, 1, l.Len())
}

func TestLoad_RebuildsAndVerifies(t *testing.T) {
	s := &memStore{}
	l := New(WithStore(s))
	appendChain(t, l, 3)

	reloaded, err := Load(context.Background(), s)
	require.NoError(t, err)
	if diff := cmp.Diff(l.Entries(), reloaded.Entries()); diff != "" {
		t.Errorf("reloaded entries differ (-want +got):\n%s", diff)
	}

	// Further appends go to the same store.
	tip, _ := reloaded.Tip()
	_, err = reloaded.Append(context.Background(), gene(3, tip.Hash))
	require.NoError(t, err)
	assert.Len(t, s.entries, 4)

	s.entries[1].Gene.Content = "rewritten"
	_, err = Load(context.Background(), s)
	code, _ := CodeOf(err)
	assert.Equal(t, contracts.ViolationLedgerIntegrity, code)
}

func TestEntryHash_Stable(t *testing.T) {
	g := gene(1, "sha256:p")
	h1, err := EntryHash(&g)
	require.NoError(t, err)

	// Signature and proof are made over the hash and stay outside it.
	g.Signature = "sig"
	g.Proof = &contracts.Proof{Scheme: "other"}
	h2, err := EntryHash(&g)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// Lineage is inside it.
	relabeled := g
	relabeled.Lineage = contracts.Lineage{Kind: contracts.LineageReAction, FailedHash: "x"}
	hl, err := EntryHash(&relabeled)
	require.NoError(t, err)
	assert.NotEqual(t, h1, hl)

	// A non-UTC clock reading of the same instant hashes identically.
	g.Timestamp = g.Timestamp.In(time.FixedZone("x", 3600))
	h3, err := EntryHash(&g)
	require.NoError(t, err)
	assert.Equal(t, h1, h3)

	// Length prefixing keeps field boundaries unambiguous.
	a := gene(1, "sha256:p")
	a.ID, a.Content = "ab", "c"
	b := gene(1, "sha256:p")
	b.ID, b.Content = "a", "bc"
	ha, _ := EntryHash(&a)
	hb, _ := EntryHash(&b)
	assert.NotEqual(t, ha, hb)
}
