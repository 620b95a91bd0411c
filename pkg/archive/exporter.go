package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/canonicalize"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/crypto"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/ledger"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/merkle"
)

// SnapshotFormat versions the snapshot document.
const SnapshotFormat = "gk-snapshot-v1"

// Snapshot is a self-verifying export of both chains.
type Snapshot struct {
	Format        string                    `json:"format"`
	ExportedAt    time.Time                 `json:"exported_at"`
	Anchor        contracts.Anchor          `json:"anchor"`
	PolicyVersion string                    `json:"policy_version"`
	LedgerHead    string                    `json:"ledger_head"`
	MerkleRoot    string                    `json:"merkle_root,omitempty"`
	Entries       []contracts.LedgerEntry   `json:"entries"`
	RefusalHead   string                    `json:"refusal_head"`
	Refusals      []contracts.RefusalRecord `json:"refusals"`
}

// Exporter verifies chains before archiving them. Nothing unverifiable is
// ever written.
type Exporter struct {
	store    Store
	verifier crypto.Verifier
	proofs   ledger.ProofVerifier
	anchor   contracts.Anchor
	policy   string
	logger   *slog.Logger
	clock    func() time.Time
}

// NewExporter creates an exporter. verifier may be nil to skip signature checks.
func NewExporter(store Store, anchor contracts.Anchor, policyVersion string, verifier crypto.Verifier, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		store:    store,
		verifier: verifier,
		anchor:   anchor,
		policy:   policyVersion,
		logger:   logger.With("component", "archive"),
		clock:    time.Now,
	}
}

// WithClock overrides the export timestamp source (tests).
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// WithProofVerifier makes export and fetch check each gene's attestation.
func (e *Exporter) WithProofVerifier(pv ledger.ProofVerifier) *Exporter {
	e.proofs = pv
	return e
}

// Export verifies l and rl and stores a canonical snapshot, returning its
// content hash. rl may be nil.
func (e *Exporter) Export(ctx context.Context, l *ledger.Ledger, rl *ledger.RefusalLog) (string, error) {
	snap := Snapshot{
		Format:        SnapshotFormat,
		ExportedAt:    e.clock().UTC(),
		Anchor:        e.anchor,
		PolicyVersion: e.policy,
		Entries:       l.Entries(),
		RefusalHead:   ledger.GenesisHash,
		Refusals:      []contracts.RefusalRecord{},
	}
	if rl != nil {
		snap.Refusals = rl.Records()
	}

	// Verify the copies so a concurrent append cannot slip in unverified.
	if err := e.verify(&snap); err != nil {
		return "", err
	}
	snap.LedgerHead = head(snap.Entries, e.anchor.RootHash)
	snap.MerkleRoot = entryTree(snap.Entries).Root
	if n := len(snap.Refusals); n > 0 {
		snap.RefusalHead = snap.Refusals[n-1].Hash
	}

	data, err := canonicalize.JCS(snap)
	if err != nil {
		return "", fmt.Errorf("archive: encode snapshot: %w", err)
	}
	hash, err := e.store.Put(ctx, data)
	if err != nil {
		return "", fmt.Errorf("archive: store snapshot: %w", err)
	}

	e.logger.InfoContext(ctx, "snapshot exported",
		"hash", hash,
		"entries", len(snap.Entries),
		"refusals", len(snap.Refusals),
		"ledger_head", snap.LedgerHead,
	)
	return hash, nil
}

// Fetch loads a snapshot and re-verifies it against its content hash and
// both chains.
func (e *Exporter) Fetch(ctx context.Context, hash string) (*Snapshot, error) {
	data, err := e.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if got := canonicalize.HashBytes(data); got != hash {
		return nil, fmt.Errorf("archive: snapshot %s content hash is %s", hash, got)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("archive: decode snapshot: %w", err)
	}
	if snap.Format != SnapshotFormat {
		return nil, fmt.Errorf("archive: unsupported snapshot format %q", snap.Format)
	}
	if err := e.verify(&snap); err != nil {
		return nil, err
	}
	if h := head(snap.Entries, snap.Anchor.RootHash); h != snap.LedgerHead {
		return nil, fmt.Errorf("archive: ledger head %s does not match entries (%s)", snap.LedgerHead, h)
	}
	if root := entryTree(snap.Entries).Root; root != snap.MerkleRoot {
		return nil, fmt.Errorf("archive: merkle root %s does not match entries (%s)", snap.MerkleRoot, root)
	}
	return &snap, nil
}

func (e *Exporter) verify(snap *Snapshot) error {
	if err := ledger.VerifyEntries(snap.Entries, e.verifier, e.proofs); err != nil {
		return fmt.Errorf("archive: ledger verification: %w", err)
	}
	if err := ledger.VerifyRefusals(snap.Refusals, e.verifier); err != nil {
		return fmt.Errorf("archive: refusal log verification: %w", err)
	}
	return nil
}

// ProveEntry returns an inclusion proof for entry i against MerkleRoot.
func (s *Snapshot) ProveEntry(i int) (merkle.InclusionProof, error) {
	return entryTree(s.Entries).Prove(i)
}

func entryTree(entries []contracts.LedgerEntry) *merkle.Tree {
	hashes := make([]string, len(entries))
	for i := range entries {
		hashes[i] = entries[i].Hash
	}
	return merkle.FromStrings(hashes)
}

func head(entries []contracts.LedgerEntry, root string) string {
	if len(entries) == 0 {
		return root
	}
	return entries[len(entries)-1].Hash
}
