package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/crypto"
)

// RefusalLog is the append-only side-log of refusals. Records chain to each
// other through prev_hash; each one also names the gene tip current when it
// was written. It never touches the gene ledger.
type RefusalLog struct {
	mu      sync.RWMutex
	records []contracts.RefusalRecord
	opts    options
}

func NewRefusalLog(opts ...Option) *RefusalLog {
	return &RefusalLog{opts: buildOptions("refusal_log", opts)}
}

// LoadRefusalLog rebuilds a side-log from s and verifies it.
func LoadRefusalLog(ctx context.Context, s Store, opts ...Option) (*RefusalLog, error) {
	records, err := s.LoadRefusals(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load refusals: %w", err)
	}
	rl := NewRefusalLog(append(opts, WithStore(s))...)
	if err := VerifyRefusals(records, rl.opts.verifier); err != nil {
		return nil, err
	}
	rl.records = records
	return rl, nil
}

// Append chains r to the head, computes its hash, signs it when a signer is
// configured, and persists it. The stored record is returned.
func (rl *RefusalLog) Append(ctx context.Context, r contracts.RefusalRecord) (*contracts.RefusalRecord, error) {
	if !r.StatePreserving() {
		return nil, integrityErr(contracts.ViolationLedgerIntegrity,
			"refusal %s changes state (%s -> %s)", r.NodeID, r.StateHashBefore, r.StateHashAfter)
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	r.PrevHash = GenesisHash
	if n := len(rl.records); n > 0 {
		r.PrevHash = rl.records[n-1].Hash
	}
	r.Timestamp = r.Timestamp.UTC()
	r.Signature = ""

	h, err := RefusalHash(&r)
	if err != nil {
		return nil, err
	}
	r.Hash = h

	if rl.opts.signer != nil {
		if err := rl.opts.signer.SignRefusal(&r); err != nil {
			return nil, fmt.Errorf("ledger: sign refusal: %w", err)
		}
	}
	if rl.opts.store != nil {
		if err := rl.opts.store.AppendRefusal(ctx, r); err != nil {
			return nil, fmt.Errorf("ledger: persist refusal: %w", err)
		}
	}
	rl.records = append(rl.records, r)
	return &r, nil
}

// Head returns the hash of the latest record, or GenesisHash.
func (rl *RefusalLog) Head() string {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if len(rl.records) == 0 {
		return GenesisHash
	}
	return rl.records[len(rl.records)-1].Hash
}

func (rl *RefusalLog) Records() []contracts.RefusalRecord {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	out := make([]contracts.RefusalRecord, len(rl.records))
	copy(out, rl.records)
	return out
}

func (rl *RefusalLog) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.records)
}

// Reload re-reads the durable side-log and adopts it when the in-memory
// records are a prefix of it. See Ledger.Reload.
func (rl *RefusalLog) Reload(ctx context.Context) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.opts.store == nil {
		return 0, VerifyRefusals(rl.records, rl.opts.verifier)
	}
	durable, err := rl.opts.store.LoadRefusals(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: reload refusals: %w", err)
	}
	if err := VerifyRefusals(durable, rl.opts.verifier); err != nil {
		return 0, err
	}
	if len(durable) < len(rl.records) {
		return 0, integrityErr(contracts.ViolationLedgerIntegrity,
			"durable side-log holds %d refusals, memory holds %d", len(durable), len(rl.records))
	}
	for i := range rl.records {
		if durable[i].Hash != rl.records[i].Hash {
			return 0, integrityErr(contracts.ViolationContinuity,
				"durable refusal %d is %s, memory has %s", i, durable[i].Hash, rl.records[i].Hash)
		}
	}
	adopted := len(durable) - len(rl.records)
	rl.records = durable
	return adopted, nil
}

func (rl *RefusalLog) VerifyChain() error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return VerifyRefusals(rl.records, rl.opts.verifier)
}

// VerifyRefusals checks an exported side-log. v may be nil to skip signatures.
func VerifyRefusals(records []contracts.RefusalRecord, v crypto.Verifier) error {
	prev := GenesisHash
	for i := range records {
		r := &records[i]
		if r.PrevHash != prev {
			return integrityErr(contracts.ViolationContinuity,
				"refusal %d prev_hash %s does not match %s", i, r.PrevHash, prev)
		}
		if !r.StatePreserving() {
			return integrityErr(contracts.ViolationLedgerIntegrity, "refusal %d changes state", i)
		}
		h, err := RefusalHash(r)
		if err != nil {
			return integrityErr(contracts.ViolationLedgerIntegrity, "refusal %d: %v", i, err)
		}
		if h != r.Hash {
			return integrityErr(contracts.ViolationLedgerIntegrity,
				"refusal %d hash mismatch (computed %s, stored %s)", i, h, r.Hash)
		}
		if v != nil {
			ok, err := v.VerifyRefusal(r)
			if err != nil || !ok {
				return integrityErr(contracts.ViolationLedgerIntegrity, "refusal %d signature invalid", i)
			}
		}
		prev = r.Hash
	}
	return nil
}
