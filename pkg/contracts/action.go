package contracts

// Action is the structural admission request the kernel synthesizes from a
// proposal and the current ledger tip. Sub-objects are pointers so that an
// absent section is distinguishable from a zero-valued one.
type Action struct {
	Authority    *Authority    `json:"authority,omitempty"`
	Anchor       *ActionAnchor `json:"anchor,omitempty"`
	Proof        *ActionProof  `json:"proof,omitempty"`
	Verification *Verification `json:"verification,omitempty"`
}

// Authority identifies who is acting and the revocation handle for that grant.
type Authority struct {
	ActorID       string `json:"actor_id"`
	RevocationRef string `json:"revocation_ref"`
}

// ActionAnchor binds the action to the lineage it extends and to the
// identity that lineage is rooted in.
type ActionAnchor struct {
	ParentHash  string `json:"parent_hash"`
	PayloadHash string `json:"payload_hash"`
	AnchorKey   string `json:"anchor_key,omitempty"`
}

// ActionProof carries the caller-supplied proof threshold.
type ActionProof struct {
	ThresholdTau float64 `json:"threshold_tau"`
}

// Verification carries the caller-supplied resonance score.
type Verification struct {
	PhiScore float64 `json:"phi_score"`
}

// Proposal is the raw content submitted for admission.
type Proposal struct {
	RawContent string `json:"raw_content"`
}

// Anchor is the single trusted root identity of a kernel process.
type Anchor struct {
	RootHash  string `json:"root_hash"`
	PublicKey string `json:"public_key"`
	KeyID     string `json:"key_id"`
	// Diameter is the baseline distance the admissibility ratio is measured against.
	Diameter float64 `json:"diameter"`
}
