package ledger

import (
	"context"
	"log/slog"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/crypto"
)

// Store is the durable backing for a Ledger and its RefusalLog. Appends must
// be durable when they return nil. Loads return records in append order.
type Store interface {
	AppendEntry(ctx context.Context, entry contracts.LedgerEntry) error
	AppendRefusal(ctx context.Context, rec contracts.RefusalRecord) error
	LoadEntries(ctx context.Context) ([]contracts.LedgerEntry, error)
	LoadRefusals(ctx context.Context) ([]contracts.RefusalRecord, error)
}

// ProofVerifier checks the attestation a gene carries against its entry
// hash. attestation.KeyVerifier is the implementation for JWT proofs.
type ProofVerifier interface {
	VerifyProof(g *contracts.Gene, entryHash string) error
}

type options struct {
	store    Store
	verifier crypto.Verifier
	proofs   ProofVerifier
	signer   crypto.Signer
	logger   *slog.Logger
}

// Option configures a Ledger or RefusalLog.
type Option func(*options)

// WithStore writes every append through s before it becomes visible.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithVerifier enables signature checks on append and in VerifyChain.
func WithVerifier(v crypto.Verifier) Option {
	return func(o *options) { o.verifier = v }
}

// WithProofVerifier enables attestation checks on append and in VerifyChain.
func WithProofVerifier(pv ProofVerifier) Option {
	return func(o *options) { o.proofs = pv }
}

// WithSigner makes the RefusalLog sign each record once its hash is known.
func WithSigner(s crypto.Signer) Option {
	return func(o *options) { o.signer = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(component string, opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", component)
	return o
}
