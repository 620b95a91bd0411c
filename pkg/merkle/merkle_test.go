package merkle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_ThreeLeaves(t *testing.T) {
	tree := FromStrings([]string{"a", "b", "c"})
	require.Len(t, tree.Leaves, 3)

	//       root
	//      /    \
	//    n1      n2
	//   /  \    /  \
	//  a    b  c    c
	n1 := nodeHash(tree.Leaves[0], tree.Leaves[1])
	n2 := nodeHash(tree.Leaves[2], tree.Leaves[2])
	assert.Equal(t, nodeHash(n1, n2), tree.Root)
	assert.Equal(t, LeafHash([]byte("c")), tree.Leaves[2])
}

func TestBuild_EmptyAndSingle(t *testing.T) {
	assert.Empty(t, Build(nil).Root)

	one := FromStrings([]string{"only"})
	assert.Equal(t, one.Leaves[0], one.Root)
	p, err := one.Prove(0)
	require.NoError(t, err)
	assert.Empty(t, p.Path)
	assert.True(t, VerifyInclusionProof(p, one.Root))
}

func TestProve_EveryLeaf(t *testing.T) {
	for n := 1; n <= 9; n++ {
		items := make([]string, n)
		for i := range items {
			items[i] = fmt.Sprintf("sha256:%02d", i)
		}
		tree := FromStrings(items)

		for i := range items {
			p, err := tree.Prove(i)
			require.NoError(t, err)
			assert.True(t, VerifyInclusionProof(p, tree.Root), "n=%d i=%d", n, i)

			bad := p
			bad.LeafHash = LeafHash([]byte("forged"))
			assert.False(t, VerifyInclusionProof(bad, tree.Root), "n=%d i=%d", n, i)
		}
	}
}

func TestVerify_RejectsForeignRoot(t *testing.T) {
	tree := FromStrings([]string{"a", "b"})
	p, err := tree.Prove(1)
	require.NoError(t, err)
	assert.False(t, VerifyInclusionProof(p, FromStrings([]string{"a", "c"}).Root))

	_, err = tree.Prove(2)
	assert.Error(t, err)
}

func TestBuild_OrderMatters(t *testing.T) {
	assert.NotEqual(t, FromStrings([]string{"a", "b"}).Root, FromStrings([]string{"b", "a"}).Root)
}
