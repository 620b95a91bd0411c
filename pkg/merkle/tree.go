// Package merkle builds binary Merkle trees over ordered ledger entries so a
// snapshot can prove that one entry belongs to it without shipping the rest.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	leafDomain = "gk:merkle:leaf:v1"
	nodeDomain = "gk:merkle:node:v1"
)

// Tree is a Merkle tree over ordered leaves. Odd levels duplicate their
// last node. An empty tree has an empty Root.
type Tree struct {
	Leaves []string   // leaf hashes, hex
	Levels [][]string // Levels[0] == Leaves, last level is [Root]
	Root   string
}

// Build hashes each item as a leaf and folds them into a tree.
func Build(items [][]byte) *Tree {
	t := &Tree{}
	if len(items) == 0 {
		return t
	}
	t.Leaves = make([]string, len(items))
	for i, it := range items {
		t.Leaves[i] = leafHash(it)
	}

	level := t.Leaves
	for len(level) > 1 {
		t.Levels = append(t.Levels, level)
		level = nextLevel(level)
	}
	t.Levels = append(t.Levels, level)
	t.Root = level[0]
	return t
}

// FromStrings builds a tree whose leaves are the given strings, typically
// ledger entry hashes in sequence order.
func FromStrings(items []string) *Tree {
	raw := make([][]byte, len(items))
	for i, s := range items {
		raw[i] = []byte(s)
	}
	return Build(raw)
}

// Prove returns the inclusion proof for leaf i.
func (t *Tree) Prove(i int) (InclusionProof, error) {
	if i < 0 || i >= len(t.Leaves) {
		return InclusionProof{}, fmt.Errorf("merkle: leaf %d out of range [0,%d)", i, len(t.Leaves))
	}
	p := InclusionProof{Index: i, LeafHash: t.Leaves[i], MerkleRoot: t.Root}
	idx := i
	for _, level := range t.Levels[:len(t.Levels)-1] {
		sib := idx ^ 1
		if sib >= len(level) {
			sib = idx
		}
		side := SideRight
		if sib < idx {
			side = SideLeft
		}
		p.Path = append(p.Path, ProofStep{Side: side, SiblingHash: level[sib]})
		idx /= 2
	}
	return p, nil
}

func nextLevel(hashes []string) []string {
	if len(hashes)%2 != 0 {
		hashes = append(hashes[:len(hashes):len(hashes)], hashes[len(hashes)-1])
	}
	out := make([]string, len(hashes)/2)
	for i := 0; i < len(hashes); i += 2 {
		out[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return out
}

func leafHash(data []byte) string {
	var buf bytes.Buffer
	buf.WriteString(leafDomain)
	buf.WriteByte(0)
	buf.Write(data)
	return sha256Hex(buf.Bytes())
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodeDomain)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
