// Package ledger holds the append-only, hash-chained gene ledger and the
// refusal side-log. Both are single-writer: every mutation happens under the
// owning mutex and nothing becomes visible before the durable write returns.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/crypto"
)

// Ledger is the accepted-state history.
type Ledger struct {
	mu      sync.RWMutex
	entries []contracts.LedgerEntry
	opts    options
}

func New(opts ...Option) *Ledger {
	return &Ledger{opts: buildOptions("ledger", opts)}
}

// Load rebuilds a ledger from s and verifies the whole chain.
func Load(ctx context.Context, s Store, opts ...Option) (*Ledger, error) {
	entries, err := s.LoadEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load entries: %w", err)
	}
	l := New(append(opts, WithStore(s))...)
	if err := VerifyEntries(entries, l.opts.verifier, l.opts.proofs); err != nil {
		return nil, err
	}
	l.entries = entries
	return l, nil
}

// Append validates g against the current tip, persists it and makes it the
// new tip. The first append is the genesis and is accepted with any
// sequence and parent hash. The proof check runs before the sequence
// check, which runs before the continuity check.
func (l *Ledger) Append(ctx context.Context, g contracts.Gene) (*contracts.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if g.Proof == nil {
		return nil, integrityErr(contracts.ViolationMissingProof, "gene %s carries no proof", g.ID)
	}
	if n := len(l.entries); n > 0 {
		tip := l.entries[n-1]
		if g.Sequence != tip.Gene.Sequence+1 {
			return nil, integrityErr(contracts.ViolationSequence,
				"gene %s has sequence %d, expected %d", g.ID, g.Sequence, tip.Gene.Sequence+1)
		}
		if g.ParentHash != tip.Hash {
			return nil, integrityErr(contracts.ViolationContinuity,
				"gene %s has parent %s, tip is %s", g.ID, g.ParentHash, tip.Hash)
		}
	}

	h, err := EntryHash(&g)
	if err != nil {
		return nil, integrityErr(contracts.ViolationLedgerIntegrity, "%v", err)
	}
	if err := verifyGeneSignature(l.opts.verifier, &g, h); err != nil {
		return nil, err
	}
	if err := verifyGeneProof(l.opts.proofs, &g, h); err != nil {
		return nil, err
	}

	entry := contracts.LedgerEntry{Gene: g, Hash: h}
	if l.opts.store != nil {
		if err := l.opts.store.AppendEntry(ctx, entry); err != nil {
			return nil, fmt.Errorf("ledger: persist entry %d: %w", g.Sequence, err)
		}
	}
	l.entries = append(l.entries, entry)

	l.opts.logger.DebugContext(ctx, "gene appended", "sequence", g.Sequence, "hash", h)
	return &entry, nil
}

// Tip returns the latest entry.
func (l *Ledger) Tip() (*contracts.LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return nil, false
	}
	tip := l.entries[len(l.entries)-1]
	return &tip, true
}

// Head returns the tip hash ("" when empty) and entry count as one
// consistent reading.
func (l *Ledger) Head() (string, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return "", 0
	}
	return l.entries[len(l.entries)-1].Hash, len(l.entries)
}

// Entries returns a copy of the history in append order.
func (l *Ledger) Entries() []contracts.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]contracts.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// VerifyChain recomputes every hash and re-checks sequence and continuity.
func (l *Ledger) VerifyChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return VerifyEntries(l.entries, l.opts.verifier, l.opts.proofs)
}

// Reload re-reads the durable history and adopts it when the in-memory
// chain is a prefix of it, returning how many entries were adopted. Extra
// durable entries come from appends whose write landed but reported an
// error. Without a store it only verifies the in-memory chain.
func (l *Ledger) Reload(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.opts.store == nil {
		return 0, VerifyEntries(l.entries, l.opts.verifier, l.opts.proofs)
	}
	durable, err := l.opts.store.LoadEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: reload entries: %w", err)
	}
	if err := VerifyEntries(durable, l.opts.verifier, l.opts.proofs); err != nil {
		return 0, err
	}
	if len(durable) < len(l.entries) {
		return 0, integrityErr(contracts.ViolationLedgerIntegrity,
			"durable ledger holds %d entries, memory holds %d", len(durable), len(l.entries))
	}
	for i := range l.entries {
		if durable[i].Hash != l.entries[i].Hash {
			return 0, integrityErr(contracts.ViolationContinuity,
				"durable entry %d is %s, memory has %s", i, durable[i].Hash, l.entries[i].Hash)
		}
	}

	adopted := len(durable) - len(l.entries)
	l.entries = durable
	if adopted > 0 {
		l.opts.logger.WarnContext(ctx, "adopted durable entries", "count", adopted, "tip", durable[len(durable)-1].Hash)
	}
	return adopted, nil
}

// VerifyEntries checks an exported history. v may be nil to skip
// signatures and pv may be nil to skip attestation checks.
func VerifyEntries(entries []contracts.LedgerEntry, v crypto.Verifier, pv ProofVerifier) error {
	for i := range entries {
		e := &entries[i]
		if e.Gene.Proof == nil {
			return integrityErr(contracts.ViolationMissingProof, "entry %d carries no proof", i)
		}
		if i > 0 {
			prev := &entries[i-1]
			if e.Gene.Sequence != prev.Gene.Sequence+1 {
				return integrityErr(contracts.ViolationSequence,
					"entry %d has sequence %d after %d", i, e.Gene.Sequence, prev.Gene.Sequence)
			}
			if e.Gene.ParentHash != prev.Hash {
				return integrityErr(contracts.ViolationContinuity,
					"entry %d parent %s does not match %s", i, e.Gene.ParentHash, prev.Hash)
			}
		}
		h, err := EntryHash(&e.Gene)
		if err != nil {
			return integrityErr(contracts.ViolationLedgerIntegrity, "entry %d: %v", i, err)
		}
		if h != e.Hash {
			return integrityErr(contracts.ViolationLedgerIntegrity,
				"entry %d hash mismatch (computed %s, stored %s)", i, h, e.Hash)
		}
		if err := verifyGeneSignature(v, &e.Gene, h); err != nil {
			return err
		}
		if err := verifyGeneProof(pv, &e.Gene, h); err != nil {
			return err
		}
	}
	return nil
}

func verifyGeneProof(pv ProofVerifier, g *contracts.Gene, h string) error {
	if pv == nil {
		return nil
	}
	if err := pv.VerifyProof(g, h); err != nil {
		return integrityErr(contracts.ViolationLedgerIntegrity, "gene %s proof: %v", g.ID, err)
	}
	return nil
}

func verifyGeneSignature(v crypto.Verifier, g *contracts.Gene, h string) error {
	if v == nil {
		return nil
	}
	ok, err := v.VerifyGene(g, h)
	if err != nil {
		return integrityErr(contracts.ViolationLedgerIntegrity, "gene %s signature: %v", g.ID, err)
	}
	if !ok {
		return integrityErr(contracts.ViolationLedgerIntegrity, "gene %s signature invalid", g.ID)
	}
	return nil
}
