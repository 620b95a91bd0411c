package contracts

import "time"

// RefusalRecord is the evidence that the gate said no. It never alters the
// accepted-state view: StateHashBefore and StateHashAfter are always equal.
type RefusalRecord struct {
	NodeID          string        `json:"node_id"`
	ReasonCode      ViolationCode `json:"reason"`
	ViolationDetail string        `json:"violation_detail"`
	// ViolationDelta quantifies how far the proposal was from admission,
	// e.g. the admissibility ratio overshoot. Zero when not applicable.
	ViolationDelta  float64   `json:"violation_delta"`
	RequestHash     string    `json:"request_hash,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	TipHash         string    `json:"tip_hash"`
	StateHashBefore string    `json:"state_hash_before"`
	StateHashAfter  string    `json:"state_hash_after"`
	PrevHash        string    `json:"prev_hash"`
	Hash            string    `json:"hash"`
	Signature       string    `json:"signature,omitempty"`
}

// StatePreserving reports whether the record honours the refusal invariant.
func (r *RefusalRecord) StatePreserving() bool {
	return r.StateHashBefore == r.StateHashAfter
}
