package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"time"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/canonicalize"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

// HashVersion is mixed into every entry hash. Changing the field order or
// encoding below requires a new version.
const HashVersion = "gk-v2"

// GenesisHash is the prev_hash of the first record in a refusal log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// EntryHash computes the chain hash of a gene. Fields are written in the
// order gene_id, sequence, content, parent_hash, mutation_manifest, score,
// timestamp, lineage, each prefixed by its length. Signature and proof are
// made over this hash and so are not covered by it.
func EntryHash(g *contracts.Gene) (string, error) {
	manifest, err := canonicalize.JCS(g.Manifest)
	if err != nil {
		return "", fmt.Errorf("ledger: canonicalize manifest: %w", err)
	}

	h := sha256.New()
	writeField(h, []byte(HashVersion))
	writeField(h, []byte(g.ID))
	writeField(h, []byte(strconv.FormatUint(g.Sequence, 10)))
	writeField(h, []byte(g.Content))
	writeField(h, []byte(g.ParentHash))
	writeField(h, manifest)
	writeField(h, []byte(strconv.FormatFloat(g.Score, 'g', 12, 64)))
	writeField(h, []byte(g.Timestamp.UTC().Format(time.RFC3339Nano)))
	writeField(h, []byte(g.Lineage.Kind))
	writeField(h, []byte(g.Lineage.FailedHash))
	writeField(h, []byte(strconv.FormatFloat(g.Lineage.FailedScore, 'g', 12, 64)))
	return canonicalize.HashPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

func writeField(h hash.Hash, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}

// RefusalHash is the canonical hash of a refusal record with its own hash
// and signature blanked.
func RefusalHash(r *contracts.RefusalRecord) (string, error) {
	c := *r
	c.Hash = ""
	c.Signature = ""
	c.Timestamp = c.Timestamp.UTC()
	h, err := canonicalize.CanonicalHash(c)
	if err != nil {
		return "", fmt.Errorf("ledger: canonicalize refusal: %w", err)
	}
	return h, nil
}
