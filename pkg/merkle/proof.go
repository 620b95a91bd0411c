package merkle

import "strings"

// Side says which side of the running hash a sibling sits on.
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
)

type InclusionProof struct {
	Index      int         `json:"index"`
	LeafHash   string      `json:"leaf_hash"`
	MerkleRoot string      `json:"merkle_root"`
	Path       []ProofStep `json:"path"`
}

type ProofStep struct {
	Side        Side   `json:"side"`
	SiblingHash string `json:"sibling_hash"`
}

// LeafHash returns the leaf hash Build would assign to data.
func LeafHash(data []byte) string { return leafHash(data) }

// VerifyInclusionProof folds the proof path and compares the result with
// expectedRoot. An empty expectedRoot trusts the root carried in the proof.
func VerifyInclusionProof(proof InclusionProof, expectedRoot string) bool {
	if expectedRoot != "" && !strings.EqualFold(proof.MerkleRoot, expectedRoot) {
		return false
	}
	current := proof.LeafHash
	for _, step := range proof.Path {
		if step.Side == SideLeft {
			current = nodeHash(step.SiblingHash, current)
		} else {
			current = nodeHash(current, step.SiblingHash)
		}
	}
	return strings.EqualFold(current, proof.MerkleRoot)
}
