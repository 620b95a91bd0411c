package crypto

import "fmt"

// Signature payload separators and domain prefixes.
const (
	SigSeparator = ":"

	domainGene    = "gene"
	domainRefusal = "refusal"
)

// CanonicalizeGene creates the string a gene signature covers.
func CanonicalizeGene(geneID, entryHash string) string {
	return fmt.Sprintf("%s%s%s%s%s", domainGene, SigSeparator, geneID, SigSeparator, entryHash)
}

// CanonicalizeRefusal creates the string a refusal signature covers.
func CanonicalizeRefusal(nodeID, hash string) string {
	return fmt.Sprintf("%s%s%s%s%s", domainRefusal, SigSeparator, nodeID, SigSeparator, hash)
}
