package contracts

import "time"

// LineageKind distinguishes first-pass admission from repaired admission.
type LineageKind string

const (
	LineageFirstPass LineageKind = "FIRST_PASS"
	LineageReAction  LineageKind = "RE_ACTION"
)

// Lineage records how a gene came to be admitted.
type Lineage struct {
	Kind LineageKind `json:"kind"`
	// FailedHash is the content hash of the input that failed admission.
	// Set only for RE_ACTION genes.
	FailedHash string `json:"failed_hash,omitempty"`
	// FailedScore is the admissibility ratio of the failed input.
	FailedScore float64 `json:"failed_score,omitempty"`
}

// MutationOp names a transformation applied to proposal content.
type MutationOp string

const (
	MutationContract MutationOp = "CONTRACT"
	MutationReAction MutationOp = "RE_ACTION"
)

// Mutation is a single entry in a gene's mutation manifest.
type Mutation struct {
	Op           MutationOp `json:"op"`
	Iterations   int        `json:"iterations"`
	MetricBefore float64    `json:"metric_before"`
	MetricAfter  float64    `json:"metric_after"`
	RunesBefore  int        `json:"runes_before"`
	RunesAfter   int        `json:"runes_after"`
}

// MutationManifest lists everything the kernel did to the proposal between
// admission and commit. It is hashed in canonical JSON form.
type MutationManifest struct {
	RequestHash string     `json:"request_hash"`
	ActionHash  string     `json:"action_hash"`
	Mutations   []Mutation `json:"mutations"`
}

// Proof is an opaque attestation produced by the attestation service.
type Proof struct {
	Scheme   string    `json:"scheme"`
	Issuer   string    `json:"issuer"`
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// Gene is the unit appended to the ledger on successful admission.
type Gene struct {
	ID         string           `json:"gene_id"`
	Sequence   uint64           `json:"sequence"`
	Content    string           `json:"content"`
	ParentHash string           `json:"parent_hash"`
	Manifest   MutationManifest `json:"mutation_manifest"`
	Score      float64          `json:"score"`
	Timestamp  time.Time        `json:"timestamp"`
	Lineage    Lineage          `json:"lineage"`
	Signature  string           `json:"signature,omitempty"`
	Proof      *Proof           `json:"proof,omitempty"`
}

// LedgerEntry pairs a gene with the hash computed over its fields.
type LedgerEntry struct {
	Gene Gene   `json:"gene"`
	Hash string `json:"hash"`
}
